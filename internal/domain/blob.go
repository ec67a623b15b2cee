package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver exports the event journal of matured markets to cold storage.
type Archiver interface {
	// ArchiveEvents uploads, as one JSONL object per market, all events of
	// markets whose maturity passed before the cutoff. It returns the number
	// of events archived.
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
}
