package domain

import (
	"context"
	"io"
)

// PutOptions describes how an object is stored.
type PutOptions struct {
	ContentType string
	// Metadata is stored as user-defined object metadata.
	Metadata map[string]string
	// PartSize > 0 switches to a multipart upload with parts of that size.
	PartSize int64
}

// BlobWriter uploads data to object storage under key.
type BlobWriter interface {
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error
}
