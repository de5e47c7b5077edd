package mirror

import (
	"context"
	"encoding/json"

	"beeftrace/internal/cache"
)

// Store persists the mirrored ledger document. Payloads are stored exactly as
// received; the mirror never re-encodes them, which keeps decimal-string
// integers intact.
type Store interface {
	Get(ctx context.Context, entityType, id string) (json.RawMessage, error)
	List(ctx context.Context, entityType string) (map[string]json.RawMessage, error)
	BulkUpsert(ctx context.Context, entityType string, data map[string]json.RawMessage) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (cache.Stats, error)
	Close() error
}
