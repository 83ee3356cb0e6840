package gateway

import (
	"context"
)

// Gateway opens an authenticated messaging session.
// Open may block for a long time, e.g. while the user scans a login QR code.
type Gateway interface {
	Open(ctx context.Context) (Session, error)
}

// Session sends messages over one exclusive, already authenticated session.
// It is not safe for concurrent use.
type Session interface {
	// Send delivers text to phone (already normalised, e.g. +5511999998888).
	// An ordinary delivery failure is reported as (false, nil); a non-nil
	// error means the session itself is unusable.
	Send(ctx context.Context, phone, text string) (bool, error)
	// Close releases the underlying browser or connection.
	Close() error
}
