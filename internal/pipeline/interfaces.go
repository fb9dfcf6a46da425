package pipeline

import (
	"context"
	"time"
)

// StateStore persists the next-item offset across runs.
type StateStore interface {
	// Load returns the persisted offset, or 1 when no usable state exists.
	Load() int
	// Save durably replaces the offset. Callers treat failures as
	// non-fatal; a crash right after merely reprocesses a few items.
	Save(offset int) error
}

// ItemStream yields board items in increasing sequence order. A stream is
// finite and not restartable; after Next returns an error (including
// ErrCursorExpired) the stream must be discarded.
type ItemStream interface {
	Next(ctx context.Context) (Item, bool, error)
}

// Source builds item streams starting at the given 1-based offset.
type Source interface {
	Stream(startOffset int) ItemStream
}

// AssetProcessor migrates a single attachment and reports the destination
// link. Failures resolve to ok=false, never to an error; retries and
// logging happen inside the processor. Implementations must be safe for
// concurrent use across assets.
type AssetProcessor interface {
	Process(ctx context.Context, asset AssetRef, itemName string) (link string, ok bool)
}

// DocProcessor resolves an item's rich document to a destination URL.
type DocProcessor interface {
	Process(ctx context.Context, item Item) (docURL string, ok bool)
}

// Ledger maintains the authoritative destination record set. The index maps
// source IDs to 1-based row positions and is owned by a single caller; it
// is not safe for concurrent mutation.
type Ledger interface {
	BuildIndex(ctx context.Context) (map[string]int, error)
	SyncBatch(ctx context.Context, records []SinkRecord, index map[string]int) error
}

// Notifier announces migrated items. Delivery is best effort and must
// never fail the run.
type Notifier interface {
	ItemMigrated(ctx context.Context, name string, links []string)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// URLCollector is a DocProcessor that records the source document URL
// without exporting it. Used by the URL-collection-only mode.
type URLCollector struct{}

// Process returns the item's doc URL as-is.
func (URLCollector) Process(_ context.Context, item Item) (string, bool) {
	return item.DocURL, item.DocURL != ""
}
