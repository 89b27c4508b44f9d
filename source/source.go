// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package source provides the sequential byte streams a capture decoder reads
// from: plain or zstd-compressed capture files and live TCP connections to a
// tracked process. All sources are plain io.ReadClosers with an idempotent
// Close; the decoder does its own buffering on top.
package source // import "github.com/pensieve-profiler/pensieve-go/source"

import "errors"

// ErrConnect reports a failure to reach a tracked process serving its capture
// stream over a socket.
var ErrConnect = errors.New("failed to connect to trace source")
