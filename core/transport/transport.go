// Package transport defines the connection abstraction between the
// charge point and the central system.
package transport

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when the central system refuses the
// connection credentials. It is terminal: retrying will not help.
var ErrUnauthorized = errors.New("transport: unauthorized")

// ErrClosed is returned when operating on a closed connection.
var ErrClosed = errors.New("transport: connection closed")

// Conn is an established message-oriented connection.
type Conn interface {
	// Send writes one text message.
	Send(ctx context.Context, data []byte) error
	// Receive blocks for the next text message.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens connections to the central system.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}
