// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package logger

import "github.com/fatih/color"

// Color helpers for terminal status output; kept separate from glog since
// they decorate terminal UX text, not log lines. cmd/treebcastctl does not
// use them: it calls fatih/color directly.
var (
	ColorGreen   = color.New(color.FgGreen).SprintFunc()
	ColorRed     = color.New(color.FgRed).SprintFunc()
	ColorBlue    = color.New(color.FgCyan).SprintFunc()
	ColorYellow  = color.New(color.FgYellow).SprintFunc()
	ColorMagenta = color.New(color.FgMagenta).SprintFunc()
)
