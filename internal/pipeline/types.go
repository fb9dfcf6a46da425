// Package pipeline defines core migration types shared across subsystems.
package pipeline

import "errors"

// ErrCursorExpired signals that the upstream pagination token aged out.
// The stream that raised it is dead; the caller rebuilds a fresh one from
// the last persisted offset.
var ErrCursorExpired = errors.New("pagination cursor expired")

// AssetRef identifies one file attached to a board item. PublicURL is a
// time-limited signed URL and is only valid for the page it was fetched
// with; it must never be reused across re-pagination.
type AssetRef struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PublicURL     string `json:"public_url"`
	FileExtension string `json:"file_extension"`
}

// Item is one migration unit produced by the paginator.
type Item struct {
	// Seq is the 1-based position of the item in the board stream. It is
	// assigned by the stream, not by the upstream API.
	Seq      int        `json:"seq"`
	SourceID string     `json:"source_id"`
	Name     string     `json:"name"`
	Assets   []AssetRef `json:"assets"`
	// DocURL points at the item's rich document, when the board has a doc
	// column configured. Empty otherwise.
	DocURL string `json:"doc_url,omitempty"`
}

// SinkRecord is one row staged for the destination ledger, keyed by SourceID.
type SinkRecord struct {
	Name     string   `json:"name"`
	SourceID string   `json:"source_id"`
	Date     string   `json:"date"`
	Links    []string `json:"links"`
	DocURL   string   `json:"doc_url,omitempty"`
}

// Column describes one board column, as reported by the columns command.
type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}
