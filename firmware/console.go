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

package firmware

import "github.com/sirupsen/logrus"

// LogConsole is the Console implementation bound when no physical UART
// driver is present: every print goes through the same klog/logrus
// pipeline as the rest of the core's diagnostics, so a host with no real
// console still sees kernel output on its own log stream.
type LogConsole struct {
	log *logrus.Entry
}

// NewLogConsole binds log as the Console backend.
func NewLogConsole(log *logrus.Entry) *LogConsole {
	return &LogConsole{log: log}
}

func (c *LogConsole) Printf(format string, args ...interface{}) {
	c.log.Infof(format, args...)
}
