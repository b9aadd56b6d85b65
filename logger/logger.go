//
// Copyright (c) 2018
// Mainflux
//
// SPDX-License-Identifier: Apache-2.0
//

package logger

import (
	"io"

	"github.com/go-kit/kit/log"
)

// Logger specifies logging API.
type Logger interface {
	// Debug logs any object in JSON format on debug level.
	Debug(string)
	// Info logs any object in JSON format on info level.
	Info(string)
	// Warn logs any object in JSON format on warning level.
	Warn(string)
	// Error logs any object in JSON format on error level.
	Error(string)
}

var _ Logger = (*logger)(nil)

type logger struct {
	kitLogger log.Logger
	level     Level
}

// New returns a wrapped go-kit logger that discards messages below
// levelText (one of debug, info, warn, error).
func New(out io.Writer, levelText string) (Logger, error) {
	var lvl Level
	if err := lvl.UnmarshalText(levelText); err != nil {
		return nil, err
	}

	l := log.NewJSONLogger(log.NewSyncWriter(out))
	l = log.With(l, "ts", log.DefaultTimestampUTC)
	return &logger{kitLogger: l, level: lvl}, nil
}

func (l logger) Debug(msg string) {
	l.log(Debug, msg)
}

func (l logger) Info(msg string) {
	l.log(Info, msg)
}

func (l logger) Warn(msg string) {
	l.log(Warn, msg)
}

func (l logger) Error(msg string) {
	l.log(Error, msg)
}

func (l logger) log(lvl Level, msg string) {
	if !lvl.isAllowed(l.level) {
		return
	}
	l.kitLogger.Log("level", lvl.String(), "message", msg)
}
