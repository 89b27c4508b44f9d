// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

package source // import "github.com/pensieve-profiler/pensieve-go/source"

import (
	"fmt"
	"net"
)

// SocketSource reads a capture streamed over TCP by a tracked process that
// was started with a socket destination. The tracked process listens; the
// decoder side connects.
type SocketSource struct {
	conn   *net.TCPConn
	closed bool
}

// Dial connects to a tracked process serving its capture at addr
// (host:port).
func Dial(addr string) (*SocketSource, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to resolve host IP and port: %v", ErrConnect, err)
	}
	conn, err := net.DialTCP("tcp", nil, tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return &SocketSource{conn: conn}, nil
}

func (s *SocketSource) Read(p []byte) (int, error) {
	return s.conn.Read(p)
}

// Close shuts the connection down. It is safe to call multiple times.
func (s *SocketSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
