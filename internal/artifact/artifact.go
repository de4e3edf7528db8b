// Package artifact stores the files a Job produces — per-tile masks, the
// composited preview, manifest.json, and the final artifacts.zip — behind
// a small interface so the tiled-execution driver never calls os.* or s3.*
// directly. The write-temp-then-rename idiom here is the same one the
// teacher's HTTP stager uses for downloaded files.
package artifact

import (
	"context"
	"io"
)

// Store persists one job's artifacts under an implementation-defined root
// keyed by jobID. WriteFile calls may happen concurrently for different
// relPaths within the same job; Finalize is called once, after every
// WriteFile for that job has returned successfully, and must make every
// prior write durable before manifest.json itself is written.
type Store interface {
	// WriteFile durably writes r's contents to relPath within jobID's
	// artifact directory so a reader never observes a partially written
	// file (LocalStore via a temp name then rename; S3Store via a single
	// upload to the final key).
	WriteFile(ctx context.Context, jobID, relPath string, r io.Reader) error

	// ReadFile opens a previously written artifact for reading.
	ReadFile(ctx context.Context, jobID, relPath string) (io.ReadCloser, error)

	// Finalize is a durability barrier: once it returns, every prior
	// WriteFile for jobID is guaranteed durable.
	Finalize(ctx context.Context, jobID string) error

	// WriteZip writes the full contents of r (an in-progress zip build) and
	// atomically exposes it as finalName (LocalStore via a temp file then
	// rename; S3Store via a single upload to the final key).
	WriteZip(ctx context.Context, jobID, finalName string, r io.Reader) error
}
