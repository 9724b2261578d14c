// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package network contains TCP endpoint helpers for capture connections.
package network

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// DefaultPort is the port the capture device listens on.
const DefaultPort = 42069

// DefaultDialTimeout bounds how long Dial waits for a connection.
const DefaultDialTimeout = 5 * time.Second

// ParseEndpoint parses v as "host", "host:port" or ":port". A missing port is
// DefaultPort, and a missing host is "127.0.0.1".
func ParseEndpoint(v string) (string, error) {
	host, port := v, ""
	if h, p, err := net.SplitHostPort(v); err == nil {
		host, port = h, p
	}

	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = strconv.Itoa(DefaultPort)
	} else if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 0xFFFF {
		return "", errors.Errorf("invalid port %q in %q", port, v)
	}
	return net.JoinHostPort(host, port), nil
}

// Dial connects to the TCP endpoint addr, parsed with ParseEndpoint.
//
// If ctx has no deadline, DefaultDialTimeout applies.
func Dial(ctx context.Context, addr string) (*net.TCPConn, error) {
	endpoint, err := ParseEndpoint(addr)
	if err != nil {
		return nil, err
	}

	d := net.Dialer{}
	if _, ok := ctx.Deadline(); !ok {
		d.Timeout = DefaultDialTimeout
	}
	conn, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", endpoint)
	}
	return conn.(*net.TCPConn), nil
}

// Listen opens a TCP listener on addr, parsed with ParseEndpoint.
func Listen(addr string) (*net.TCPListener, error) {
	endpoint, err := ParseEndpoint(addr)
	if err != nil {
		return nil, err
	}

	laddr, err := net.ResolveTCPAddr("tcp", endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", endpoint)
	}
	l, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", endpoint)
	}
	return l, nil
}

// CloseWrite half-closes conn if it supports it.
func CloseWrite(conn net.Conn) error {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}
