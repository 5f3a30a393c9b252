// Package objectstore defines the capability the upload stage calls into
// to ship archives to a remote blob store. The wire protocol itself is
// treated as an external collaborator: this package only fixes the
// interface and a generic HTTPS PUT implementation of it.
package objectstore

import "context"

// ErrorClass is the closed set of error categories the upload stage
// distinguishes between.
type ErrorClass int

const (
	// ErrUnknown covers errors that couldn't be classified, including a
	// nil error.
	ErrUnknown ErrorClass = iota
	ErrNotFound
	ErrAccessDenied
	ErrOther
)

func (c ErrorClass) String() string {
	switch c {
	case ErrNotFound:
		return "NOT_FOUND"
	case ErrAccessDenied:
		return "ACCESS_DENIED"
	case ErrOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// Credentials bundles the account/bucket details the pipeline is handed
// already resolved; sourcing them from config/env is out of scope here.
type Credentials struct {
	AccountID  string
	SecretKey  string
	BucketName string
	Endpoint   string // optional, for S3-compatible non-AWS endpoints
}

// Client is the capability the upload stage needs from a remote object
// store. Implementations must be safe for concurrent use by a single
// upload worker (no internal concurrency is required beyond that).
type Client interface {
	// Enabled reports whether uploads should be attempted at all: false
	// when credentials are missing, the bucket name is empty, or the
	// configured transport is unavailable.
	Enabled() bool

	// Login establishes (or reuses a cached) session. Idempotent.
	Login(ctx context.Context) error

	// Upload puts the bytes at sourcePath under destinationKey. ok is
	// true iff the number of bytes the far end reports receiving equals
	// the local file size.
	Upload(ctx context.Context, sourcePath, destinationKey string) (ok bool, uploadedBytes int64, err error)

	// DecodeError classifies an error returned by Upload/Login into one
	// of the closed set of ErrorClass values.
	DecodeError(err error) ErrorClass
}
