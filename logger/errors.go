// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package logger

import "errors"

// ErrInvalidLogLevel is returned when a log level string does not match
// one of debug, info, warn, or error.
var ErrInvalidLogLevel = errors.New("unrecognized log level")
