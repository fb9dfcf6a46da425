package monday

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"boardmigrate/internal/pipeline"
)

func pageJSON(first bool, cursor string, ids ...string) string {
	var items []string
	for _, id := range ids {
		items = append(items, fmt.Sprintf(
			`{"id": %q, "name": "item %s", "assets": [{"id": "a-%s", "name": "f.png", "public_url": "https://files/%s", "file_extension": "png"}]}`,
			id, id, id, id))
	}
	page := fmt.Sprintf(`{"cursor": %q, "items": [%s]}`, cursor, strings.Join(items, ","))
	if first {
		return fmt.Sprintf(`{"data": {"boards": [{"items_page": %s}]}}`, page)
	}
	return fmt.Sprintf(`{"data": {"next_items_page": %s}}`, page)
}

func drain(t *testing.T, stream pipeline.ItemStream) []pipeline.Item {
	t.Helper()
	var items []pipeline.Item
	for {
		item, ok, err := stream.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return items
		}
		items = append(items, item)
	}
}

func TestStreamAssignsSequenceNumbers(t *testing.T) {
	srv, _ := newTestServer(t,
		pageJSON(true, "c1", "111", "222"),
		pageJSON(false, "", "333"),
	)
	client := newTestClient(srv.URL)

	items := drain(t, client.Stream(1))
	require.Len(t, items, 3)
	for i, item := range items {
		require.Equal(t, i+1, item.Seq)
	}
	require.Equal(t, "111", items[0].SourceID)
	require.Equal(t, "333", items[2].SourceID)
}

func TestStreamSkipsItemsBeforeStartOffset(t *testing.T) {
	srv, _ := newTestServer(t,
		pageJSON(true, "c1", "111", "222"),
		pageJSON(false, "", "333", "444"),
	)
	client := newTestClient(srv.URL)

	items := drain(t, client.Stream(3))
	require.Len(t, items, 2)
	require.Equal(t, 3, items[0].Seq)
	require.Equal(t, "333", items[0].SourceID)
	require.Equal(t, 4, items[1].Seq)
}

func TestStreamFastForwardsWithoutAssetFields(t *testing.T) {
	srv, captured := newTestServer(t,
		pageJSON(true, "c1", "111", "222"),
		pageJSON(false, "", "333", "444"),
	)
	client := newTestClient(srv.URL)

	// Page size 2 and offset 3: the first page cannot reach the offset,
	// so it is fetched without asset fields; the second page can.
	_ = drain(t, client.Stream(3))

	require.Len(t, *captured, 2)
	require.NotContains(t, (*captured)[0].query, "assets")
	require.Contains(t, (*captured)[1].query, "assets")
}

func TestStreamEndsOnEmptyCursor(t *testing.T) {
	srv, captured := newTestServer(t, pageJSON(true, "", "111"))
	client := newTestClient(srv.URL)

	stream := client.Stream(1)
	items := drain(t, stream)
	require.Len(t, items, 1)
	require.Len(t, *captured, 1)

	// A finished stream stays finished.
	_, ok, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStreamSurfacesCursorExpiry(t *testing.T) {
	srv, _ := newTestServer(t,
		pageJSON(true, "c1", "111"),
		`{"errors": [{"message": "CursorExpiredError"}]}`,
	)
	client := newTestClient(srv.URL)

	stream := client.Stream(1)
	_, ok, err := stream.Next(context.Background())
	require.True(t, ok)
	require.NoError(t, err)

	_, ok, err = stream.Next(context.Background())
	require.False(t, ok)
	require.ErrorIs(t, err, pipeline.ErrCursorExpired)
}
