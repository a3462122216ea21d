package core

import (
	"context"
	"io"
)

// FileStorage stores an uploaded blob and returns a durable reference key.
// Validation of what may be stored (size, extension) happens before the
// handoff; implementations only persist.
type FileStorage interface {
	Save(ctx context.Context, filename string, r io.Reader) (key string, err error)
}
