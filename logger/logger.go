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

// Package logger provides the severity-level vocabulary used with
// package glog (glog.V(logger.Debug).Infof(...)) across treebcast.
package logger

import "github.com/distcompute/treebcast/logger/glog"

// Verbosity levels, in the order documented by the -verbosity flag usage
// string: 0=silent, 1=error, 2=warn, 3=info, 4=core, 5=debug, 6=detail.
const (
	Silent glog.Level = iota
	Error
	Warn
	Info
	Core
	Debug
	Detail
)

var mlogEnabled bool

// SetMlogEnabled turns structured mlog emission on or off process-wide.
// Off by default: most deployments only want the plain glog stream.
func SetMlogEnabled(v bool) {
	mlogEnabled = v
}

// MlogEnabled reports whether structured mlog lines should be computed and
// sent. Call sites guard expensive detail-value construction with this,
// the same pattern the teacher's eth/downloader.go uses around
// mlogDownloader.Send(...).
func MlogEnabled() bool {
	return mlogEnabled
}
