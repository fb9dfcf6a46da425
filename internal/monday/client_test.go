package monday

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"boardmigrate/internal/pipeline"
)

type capturedRequest struct {
	auth  string
	query string
	vars  map[string]any
}

// newTestServer answers each GraphQL POST with the next scripted response
// and records what the client sent.
func newTestServer(t *testing.T, responses ...string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	var call int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		captured = append(captured, capturedRequest{
			auth:  r.Header.Get("Authorization"),
			query: req.Query,
			vars:  req.Variables,
		})
		if call >= len(responses) {
			http.Error(w, "unexpected call", http.StatusInternalServerError)
			return
		}
		resp := responses[call]
		call++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func newTestClient(url string) *Client {
	c := NewClient(Config{
		APIURL:      url,
		APIKey:      "test-token",
		BoardID:     "12345",
		PageSize:    2,
		DocColumnID: "doc_col",
		Timeout:     5 * time.Second,
	}, zap.NewNop())
	// Keep retry waits out of test runtime.
	c.backoff = pipeline.NewBackoffPolicy(3, time.Millisecond)
	return c
}

const firstPageResponse = `{
  "data": {
    "boards": [{
      "items_page": {
        "cursor": "cursor-1",
        "items": [
          {
            "id": "111",
            "name": "widget",
            "assets": [
              {"id": "a1", "name": "photo.png", "public_url": "https://files/a1", "file_extension": "png"}
            ],
            "column_values": [
              {"id": "doc_col", "file": {"doc": {"url": "https://board/docs/7"}}}
            ]
          },
          {"id": "222", "name": "gadget", "assets": []}
        ]
      }
    }]
  }
}`

func TestFetchFirstPage(t *testing.T) {
	srv, captured := newTestServer(t, firstPageResponse)
	client := newTestClient(srv.URL)

	page, err := client.FetchPage(t.Context(), "", true)
	require.NoError(t, err)
	require.Equal(t, "cursor-1", page.Cursor)
	require.Len(t, page.Items, 2)

	first := page.Items[0]
	require.Equal(t, "111", first.SourceID)
	require.Equal(t, "widget", first.Name)
	require.Len(t, first.Assets, 1)
	require.Equal(t, "https://files/a1", first.Assets[0].PublicURL)
	require.Equal(t, "https://board/docs/7", first.DocURL)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	require.Equal(t, "test-token", req.auth)
	require.Contains(t, req.query, "boards (ids: 12345)")
	require.Contains(t, req.query, "items_page (limit: 2)")
	require.Contains(t, req.query, "assets")
	require.Contains(t, req.query, `column_values (ids: ["doc_col"])`)
	require.Empty(t, req.vars)
}

func TestFetchContinuationPageUsesCursor(t *testing.T) {
	srv, captured := newTestServer(t, `{
	  "data": {
	    "next_items_page": {
	      "cursor": "",
	      "items": [{"id": "333", "name": "last one", "assets": []}]
	    }
	  }
	}`)
	client := newTestClient(srv.URL)

	page, err := client.FetchPage(t.Context(), "cursor-1", true)
	require.NoError(t, err)
	require.Empty(t, page.Cursor)
	require.Len(t, page.Items, 1)

	req := (*captured)[0]
	require.Contains(t, req.query, "next_items_page")
	require.Equal(t, "cursor-1", req.vars["cursor"])
}

func TestFetchPageWithoutAssetsOmitsSelections(t *testing.T) {
	srv, captured := newTestServer(t, firstPageResponse)
	client := newTestClient(srv.URL)

	_, err := client.FetchPage(t.Context(), "", false)
	require.NoError(t, err)

	req := (*captured)[0]
	require.NotContains(t, req.query, "assets")
	require.NotContains(t, req.query, "column_values")
}

func TestFetchPageCursorExpiry(t *testing.T) {
	srv, _ := newTestServer(t,
		`{"errors": [{"message": "CursorExpiredError: cursor is no longer valid"}]}`)
	client := newTestClient(srv.URL)

	_, err := client.FetchPage(t.Context(), "stale", true)
	require.ErrorIs(t, err, pipeline.ErrCursorExpired)
}

func TestFetchPageOtherGraphQLErrorEndsStream(t *testing.T) {
	srv, captured := newTestServer(t,
		`{"errors": [{"message": "ComplexityBudgetExhausted"}]}`)
	client := newTestClient(srv.URL)

	page, err := client.FetchPage(t.Context(), "", true)
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.Empty(t, page.Cursor)
	// No retry for a well-formed error response.
	require.Len(t, *captured, 1)
}

func TestFetchPageRetriesThenTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(srv.URL)

	page, err := client.FetchPage(t.Context(), "", true)
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.Empty(t, page.Cursor)
}

func TestFetchPageRecoversAfterTransientFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "flaky", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(firstPageResponse))
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(srv.URL)

	page, err := client.FetchPage(t.Context(), "", true)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, 2, calls)
}

func TestItemFieldsSkipsDocColumnWhenUnconfigured(t *testing.T) {
	client := NewClient(Config{APIURL: "http://unused", APIKey: "k", BoardID: "1"}, zap.NewNop())
	fields := client.itemFields(true)
	require.Contains(t, fields, "assets")
	require.False(t, strings.Contains(fields, "column_values"))
}
