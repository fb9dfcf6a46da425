// Package monday implements the board API client and cursor-based item
// pagination.
package monday

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"boardmigrate/internal/metrics"
	"boardmigrate/internal/pipeline"
)

// cursorExpiredCode is the error code the API embeds in the GraphQL error
// message when a pagination token ages out.
const cursorExpiredCode = "CursorExpiredError"

const defaultPageSize = 25

// Config captures the parameters required to talk to the board API.
type Config struct {
	APIURL      string
	APIKey      string
	BoardID     string
	PageSize    int
	DocColumnID string
	// RequestsPerSecond caps the GraphQL call rate (the API meters by
	// complexity budget). Zero disables the limiter.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client issues GraphQL queries against one board. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *rate.Limiter
	backoff    pipeline.BackoffPolicy
	logger     *zap.Logger
}

// NewClient builds a Client for the configured board.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		limiter:    limiter,
		backoff:    pipeline.NewBackoffPolicy(3, time.Second),
		logger:     logger,
	}
}

// Page is one page of board items plus the cursor for the next one. An
// empty Cursor means the stream is exhausted.
type Page struct {
	Items  []pipeline.Item
	Cursor string
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type apiAsset struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PublicURL     string `json:"public_url"`
	FileExtension string `json:"file_extension"`
}

type apiColumnValue struct {
	ID   string `json:"id"`
	File *struct {
		Doc *struct {
			URL string `json:"url"`
		} `json:"doc"`
	} `json:"file"`
}

type apiItem struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Assets       []apiAsset       `json:"assets"`
	ColumnValues []apiColumnValue `json:"column_values"`
}

type itemsPage struct {
	Cursor string    `json:"cursor"`
	Items  []apiItem `json:"items"`
}

type pageEnvelope struct {
	Data struct {
		Boards []struct {
			ItemsPage itemsPage `json:"items_page"`
		} `json:"boards"`
		NextItemsPage *itemsPage `json:"next_items_page"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// itemFields returns the per-item GraphQL selection. Pages known to be
// entirely before the resume offset are fetched without the assets and doc
// sub-selections, which keeps fast-forwarding cheap.
func (c *Client) itemFields(includeAssets bool) string {
	var b strings.Builder
	b.WriteString("id\nname\n")
	if includeAssets {
		b.WriteString("assets {\n  id\n  name\n  public_url\n  file_extension\n}\n")
		if c.cfg.DocColumnID != "" {
			fmt.Fprintf(&b,
				"column_values (ids: [%q]) {\n  id\n  ... on DocValue {\n    file {\n      doc {\n        url\n      }\n    }\n  }\n}\n",
				c.cfg.DocColumnID)
		}
	}
	return b.String()
}

// FetchPage retrieves one page of items. An empty cursor fetches the first
// page of the board; a non-empty one continues from that token. Transient
// transport failures are retried with exponential backoff; exhausting the
// retries ends the stream (empty page, empty cursor) rather than failing
// the run, with a counter so the truncation is not invisible. A cursor
// expiry reported by the API surfaces as pipeline.ErrCursorExpired.
func (c *Client) FetchPage(ctx context.Context, cursor string, includeAssets bool) (Page, error) {
	req := graphQLRequest{}
	if cursor != "" {
		req.Query = fmt.Sprintf(
			"query ($cursor: String!) {\n  next_items_page (cursor: $cursor, limit: %d) {\n    cursor\n    items {\n%s    }\n  }\n}",
			c.cfg.PageSize, c.itemFields(includeAssets))
		req.Variables = map[string]any{"cursor": cursor}
	} else {
		req.Query = fmt.Sprintf(
			"query {\n  boards (ids: %s) {\n    items_page (limit: %d) {\n      cursor\n      items {\n%s      }\n    }\n  }\n}",
			c.cfg.BoardID, c.cfg.PageSize, c.itemFields(includeAssets))
	}

	for attempt := 0; attempt < c.backoff.MaxAttempts(); attempt++ {
		if attempt > 0 {
			metrics.ObserveRetry("page_fetch")
			if err := c.backoff.Sleep(ctx, attempt-1); err != nil {
				return Page{}, err
			}
		}

		env, err := c.post(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return Page{}, ctx.Err()
			}
			c.logger.Warn("page fetch failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		if len(env.Errors) > 0 {
			for _, gerr := range env.Errors {
				if strings.Contains(gerr.Message, cursorExpiredCode) {
					c.logger.Warn("cursor expiry reported by API")
					return Page{}, fmt.Errorf("fetch page: %w", pipeline.ErrCursorExpired)
				}
			}
			c.logger.Error("graphql errors in page response",
				zap.String("first_error", env.Errors[0].Message),
				zap.Int("errors", len(env.Errors)),
			)
			return Page{}, nil
		}

		return c.decodePage(env, cursor != ""), nil
	}

	c.logger.Error("page fetch retries exhausted; ending stream early",
		zap.Int("attempts", c.backoff.MaxAttempts()),
	)
	metrics.ObserveStreamTruncation()
	return Page{}, nil
}

func (c *Client) post(ctx context.Context, gql graphQLRequest) (pageEnvelope, error) {
	var env pageEnvelope
	body, err := c.do(ctx, gql)
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("decode page response: %w", err)
	}
	return env, nil
}

// do issues one authenticated GraphQL POST and returns the raw body.
func (c *Client) do(ctx context.Context, gql graphQLRequest) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait rate limiter: %w", err)
		}
	}

	payload, err := json.Marshal(gql)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post graphql query: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read graphql response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graphql endpoint returned status %d", resp.StatusCode)
	}
	return body, nil
}

func (c *Client) decodePage(env pageEnvelope, continuation bool) Page {
	var page itemsPage
	switch {
	case continuation:
		if env.Data.NextItemsPage == nil {
			c.logger.Warn("response is missing next_items_page data")
			return Page{}
		}
		page = *env.Data.NextItemsPage
	default:
		if len(env.Data.Boards) == 0 {
			c.logger.Warn("response contains no board data")
			return Page{}
		}
		page = env.Data.Boards[0].ItemsPage
	}

	items := make([]pipeline.Item, 0, len(page.Items))
	for _, raw := range page.Items {
		item := pipeline.Item{
			SourceID: raw.ID,
			Name:     raw.Name,
		}
		for _, a := range raw.Assets {
			item.Assets = append(item.Assets, pipeline.AssetRef{
				ID:            a.ID,
				Name:          a.Name,
				PublicURL:     a.PublicURL,
				FileExtension: a.FileExtension,
			})
		}
		for _, cv := range raw.ColumnValues {
			if cv.File != nil && cv.File.Doc != nil && cv.File.Doc.URL != "" {
				item.DocURL = cv.File.Doc.URL
				break
			}
		}
		items = append(items, item)
	}
	return Page{Items: items, Cursor: page.Cursor}
}
