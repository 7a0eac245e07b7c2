package blob

import (
	"context"
	"io"

	"github.com/avfoundry/proxa/internal/verr"
)

// Store is a durable mapping from opaque references to binary content.
type Store interface {
	// Put stores the content under the provided key and returns the
	// reference to use for later retrieval or removal.
	Put(ctx context.Context, key string, r io.Reader) (string, error)

	// Remove deletes the content for the provided reference. Removing an
	// unknown reference is not an error.
	Remove(ctx context.Context, ref string) error

	// URL returns a browser-facing locator for the content behind the
	// reference.
	URL(ref string) string

	// URI returns the canonical machine-readable locator handed to the
	// remote transcoding provider (an s3:// URI for the s3 driver, a
	// plain path for the local driver).
	URI(ref string) string
}

// NewStore constructs the store selected by the config driver.
func NewStore(config Config) (Store, error) {
	switch config.Driver {
	case "", "local":
		return NewLocalStore(config.BaseDir)
	case "s3":
		return NewS3Store(config.Bucket, config.Region)
	default:
		return nil, verr.Newf(verr.Configuration, "unknown blob store driver '%s'", config.Driver)
	}
}
