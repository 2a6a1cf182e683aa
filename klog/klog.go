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

// Package klog is the kernel's structured-logging surface. Every package
// that wants a diagnostic log line goes through here instead of reaching
// for logrus directly, so that the cpu=/pd=/sel= field set stays uniform
// repo-wide.
package klog

import (
	"github.com/sirupsen/logrus"
)

// Base is the root logger; tests may swap its output/level.
var Base = logrus.New()

// For returns an entry scoped to a subsystem name, e.g. klog.For("ipc").
func For(subsystem string) *logrus.Entry {
	return Base.WithField("subsys", subsystem)
}

// CPU annotates an entry with the logical CPU it concerns.
func CPU(e *logrus.Entry, cpu int) *logrus.Entry {
	return e.WithField("cpu", cpu)
}

// PD annotates an entry with a protection domain identifier.
func PD(e *logrus.Entry, id uint64) *logrus.Entry {
	return e.WithField("pd", id)
}

// Sel annotates an entry with a capability selector.
func Sel(e *logrus.Entry, sel uint64) *logrus.Entry {
	return e.WithField("sel", sel)
}
