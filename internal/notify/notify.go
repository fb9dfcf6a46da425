// Package notify announces migrated items to downstream channels.
package notify

import (
	"context"

	"boardmigrate/internal/pipeline"
)

// Noop is a notifier that does nothing. Used when no channel is configured.
type Noop struct{}

func (Noop) ItemMigrated(context.Context, string, []string) {}

// Multi fans one notification out to every child notifier.
type Multi struct {
	children []pipeline.Notifier
}

// NewMulti builds a fan-out notifier. Nil children are skipped.
func NewMulti(children ...pipeline.Notifier) *Multi {
	m := &Multi{}
	for _, c := range children {
		if c != nil {
			m.children = append(m.children, c)
		}
	}
	return m
}

func (m *Multi) ItemMigrated(ctx context.Context, name string, links []string) {
	for _, c := range m.children {
		c.ItemMigrated(ctx, name, links)
	}
}
