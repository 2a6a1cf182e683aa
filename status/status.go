//
// Copyright 2024 The NOVA Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package status defines the closed set of outcomes every syscall and
// kernel object operation returns. The kernel never unwinds on a
// user-induced error: every fallible path returns a Code instead of a Go
// error, and the first failure detected in a syscall is the only one a
// caller ever observes.
package status

// Code is the outcome of a syscall or an internal object operation that
// feeds one. The zero value is Success.
type Code uint8

const (
	Success Code = iota
	Timeout
	Aborted
	BadHyp
	BadCap
	BadPar
	BadFtr
	BadCpu
	BadDev
	Ovrflow
	InsMem
	ComTim
)

var names = [...]string{
	Success: "SUCCESS",
	Timeout: "TIMEOUT",
	Aborted: "ABORTED",
	BadHyp:  "BAD_HYP",
	BadCap:  "BAD_CAP",
	BadPar:  "BAD_PAR",
	BadFtr:  "BAD_FTR",
	BadCpu:  "BAD_CPU",
	BadDev:  "BAD_DEV",
	Ovrflow: "OVRFLOW",
	InsMem:  "INS_MEM",
	ComTim:  "COM_TIM",
}

func (c Code) String() string {
	if int(c) < len(names) && names[c] != "" {
		return names[c]
	}
	return "BAD_HYP"
}

// Error satisfies the error interface so a Code can cross a boundary layer
// (tests, the debug CLI) that expects one without the kernel itself ever
// constructing a Go error on a hot path.
func (c Code) Error() string { return c.String() }

// OK reports whether c is Success.
func (c Code) OK() bool { return c == Success }
