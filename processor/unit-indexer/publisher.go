package unitindexer

import (
	"context"

	"github.com/c360studio/semunit/processor/tags"
)

// Publisher receives the results of indexing. Implementations store,
// print, or forward them.
type Publisher interface {
	// Publish records the tags of one file, replacing earlier ones.
	Publish(ctx context.Context, result *tags.ParseResult) error

	// Retract forgets a file that no longer exists.
	Retract(ctx context.Context, path string) error
}

// HashSource reports the content hash last published for a file.
// storage.Store implements it.
type HashSource interface {
	FileHash(ctx context.Context, path string) (string, error)
}
