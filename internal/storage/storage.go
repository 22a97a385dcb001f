package storage

import "context"

// Handle refers to one stored object.
type Handle interface {
	// URL is where the object can be fetched from.
	URL() string
	// Release removes the object. It is safe to call more than once.
	Release(ctx context.Context) error
}

// Store places exported archives somewhere a user can download them.
type Store interface {
	Name() string
	Put(ctx context.Context, key, contentType string, data []byte) (Handle, error)
}
