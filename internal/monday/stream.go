package monday

import (
	"context"

	"go.uber.org/zap"

	"boardmigrate/internal/pipeline"
)

// Stream lazily walks the board page by page, yielding items with 1-based
// sequence numbers and dropping the ones before the resume offset. Signed
// asset URLs always come from the page that yielded the item, so re-built
// streams never serve stale links. A Stream is single-use: once Next
// returns an error or ok=false it must be discarded.
type Stream struct {
	client      *Client
	startOffset int
	cursor      string
	buf         []pipeline.Item
	seq         int
	started     bool
	done        bool
}

// Stream implements pipeline.Source.
func (c *Client) Stream(startOffset int) pipeline.ItemStream {
	if startOffset < 1 {
		startOffset = 1
	}
	return &Stream{client: c, startOffset: startOffset}
}

// Next returns the next item at or past the start offset. ok=false marks
// the natural end of the stream.
func (s *Stream) Next(ctx context.Context) (pipeline.Item, bool, error) {
	for {
		if len(s.buf) > 0 {
			item := s.buf[0]
			s.buf = s.buf[1:]
			return item, true, nil
		}
		if s.done || (s.started && s.cursor == "") {
			s.done = true
			return pipeline.Item{}, false, nil
		}

		// Fast-forward: pages that cannot reach the resume offset are
		// fetched without asset fields. The page size margin covers a
		// final short page.
		includeAssets := s.seq+s.client.cfg.PageSize >= s.startOffset

		page, err := s.client.FetchPage(ctx, s.cursor, includeAssets)
		if err != nil {
			s.done = true
			return pipeline.Item{}, false, err
		}
		s.started = true
		s.cursor = page.Cursor

		if len(page.Items) > 0 {
			s.client.logger.Info("fetched page",
				zap.Int("items", len(page.Items)),
				zap.Int("seen", s.seq),
				zap.Bool("with_assets", includeAssets),
			)
		}
		for _, item := range page.Items {
			s.seq++
			item.Seq = s.seq
			if s.seq >= s.startOffset {
				s.buf = append(s.buf, item)
			}
		}
		if len(page.Items) == 0 && s.cursor == "" {
			s.done = true
			return pipeline.Item{}, false, nil
		}
	}
}
