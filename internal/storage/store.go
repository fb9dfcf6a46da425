// Package storage defines the destination object store for migrated files.
package storage

import "context"

// ObjectStore persists migrated files under stable names and hands back
// shareable links. Find supports the pre-upload duplicate check: re-runs
// short-circuit to the existing link instead of uploading twice.
type ObjectStore interface {
	Find(ctx context.Context, name string) (link string, found bool, err error)
	Create(ctx context.Context, name string, contentType string, data []byte) (link string, err error)
}
