// Package ledger maintains the destination spreadsheet record set: one row
// per migrated item, keyed by source id, written in batches.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"boardmigrate/internal/metrics"
	"boardmigrate/internal/pipeline"
)

// Config captures the parameters required to reach the ledger sheet.
type Config struct {
	SpreadsheetID string
	// SheetName is the tab holding the ledger. Defaults to Sheet1.
	SheetName string
	// CredentialsFile points at a service account key. Empty falls back to
	// Application Default Credentials.
	CredentialsFile string
	// MaxAttempts caps rate-limit retries per ledger call. Defaults to 5.
	MaxAttempts int
}

// SheetsLedger implements pipeline.Ledger on Google Sheets. All mutation
// must come from a single owner; the index it maintains is not safe for
// concurrent use.
type SheetsLedger struct {
	svc     *sheets.Service
	cfg     Config
	backoff pipeline.BackoffPolicy
	logger  *zap.Logger
}

// New builds a SheetsLedger and its API client.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*SheetsLedger, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Sheet1"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &SheetsLedger{
		svc:     svc,
		cfg:     cfg,
		backoff: pipeline.NewBackoffPolicy(cfg.MaxAttempts, time.Second),
		logger:  logger,
	}, nil
}

// BuildIndex reads the id column once and maps every source id to its
// 1-based row. Read failures degrade to an empty index: the run proceeds
// append-only, at the documented risk of duplicate rows.
func (l *SheetsLedger) BuildIndex(ctx context.Context) (map[string]int, error) {
	index := make(map[string]int)
	resp, err := l.svc.Spreadsheets.Values.
		Get(l.cfg.SpreadsheetID, l.rangeRef("B:B")).
		Context(ctx).Do()
	if err != nil {
		l.logger.Error("read ledger id column failed; falling back to append-only",
			zap.Error(err))
		return index, nil
	}
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id != "" {
			index[id] = i + 1
		}
	}
	return index, nil
}

// AppendOrUpdate writes a single record, updating in place when the index
// already knows its source id.
func (l *SheetsLedger) AppendOrUpdate(ctx context.Context, rec pipeline.SinkRecord, index map[string]int) error {
	return l.SyncBatch(ctx, []pipeline.SinkRecord{rec}, index)
}

// SyncBatch partitions records into in-place updates and fresh appends and
// issues at most one batched update call plus one append call. Rate-limit
// responses back off exponentially; any other error surfaces to the
// caller. Appended records get their new row positions recorded in the
// index so later writes in the same run hit the right rows.
func (l *SheetsLedger) SyncBatch(ctx context.Context, records []pipeline.SinkRecord, index map[string]int) error {
	updates, appendRows, appendIDs := l.partition(records, index)

	if len(updates) > 0 {
		req := &sheets.BatchUpdateValuesRequest{
			ValueInputOption: "RAW",
			Data:             updates,
		}
		err := l.withBackoff(ctx, "batch update", func() error {
			_, err := l.svc.Spreadsheets.Values.
				BatchUpdate(l.cfg.SpreadsheetID, req).
				Context(ctx).Do()
			return err
		})
		if err != nil {
			return fmt.Errorf("batch update %d rows: %w", len(updates), err)
		}
		l.logger.Info("ledger rows updated", zap.Int("rows", len(updates)))
	}

	if len(appendRows) > 0 {
		var resp *sheets.AppendValuesResponse
		err := l.withBackoff(ctx, "append", func() error {
			r, err := l.svc.Spreadsheets.Values.
				Append(l.cfg.SpreadsheetID, l.rangeRef("A1"), &sheets.ValueRange{Values: appendRows}).
				ValueInputOption("RAW").
				InsertDataOption("INSERT_ROWS").
				Context(ctx).Do()
			resp = r
			return err
		})
		if err != nil {
			return fmt.Errorf("append %d rows: %w", len(appendRows), err)
		}
		l.logger.Info("ledger rows appended", zap.Int("rows", len(appendRows)))

		l.recordAppendedRows(resp, appendIDs, index)
	}

	return nil
}

// partition splits records by index membership. Updates become per-row
// value ranges; appends keep their order so the response range can be
// mapped back to source ids.
func (l *SheetsLedger) partition(
	records []pipeline.SinkRecord,
	index map[string]int,
) (updates []*sheets.ValueRange, appendRows [][]any, appendIDs []string) {
	for _, rec := range records {
		if row, ok := index[rec.SourceID]; ok {
			updates = append(updates, &sheets.ValueRange{
				Range:  l.rowRange(row),
				Values: [][]any{recordRow(rec)},
			})
			continue
		}
		appendRows = append(appendRows, recordRow(rec))
		appendIDs = append(appendIDs, rec.SourceID)
	}
	return updates, appendRows, appendIDs
}

func (l *SheetsLedger) recordAppendedRows(resp *sheets.AppendValuesResponse, appendIDs []string, index map[string]int) {
	if resp == nil || resp.Updates == nil {
		l.logger.Warn("append response carries no range; index not updated")
		return
	}
	start, err := startRowOf(resp.Updates.UpdatedRange)
	if err != nil {
		l.logger.Warn("cannot parse append range; index not updated",
			zap.String("range", resp.Updates.UpdatedRange), zap.Error(err))
		return
	}
	for i, id := range appendIDs {
		index[id] = start + i
	}
}

func (l *SheetsLedger) withBackoff(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isRateLimited(err) || attempt >= l.cfg.MaxAttempts-1 {
			return err
		}
		metrics.ObserveRetry("ledger")
		l.logger.Warn("ledger call rate limited; backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", l.backoff.Delay(attempt)),
		)
		if serr := l.backoff.Sleep(ctx, attempt); serr != nil {
			return serr
		}
	}
}

// recordRow lays a record out positionally: name, source id, date, joined
// links, doc url.
func recordRow(rec pipeline.SinkRecord) []any {
	return []any{
		rec.Name,
		rec.SourceID,
		rec.Date,
		strings.Join(rec.Links, ", "),
		rec.DocURL,
	}
}

func isRateLimited(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests ||
			apiErr.Code == http.StatusServiceUnavailable
	}
	return false
}

var a1RowRef = regexp.MustCompile(`![A-Z]+(\d+)`)

// startRowOf extracts the first row number from an A1 range reference
// such as "Sheet1!A12:E14".
func startRowOf(ref string) (int, error) {
	m := a1RowRef.FindStringSubmatch(ref)
	if m == nil {
		return 0, fmt.Errorf("no row reference in range %q", ref)
	}
	row, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("parse row from range %q: %w", ref, err)
	}
	return row, nil
}

func (l *SheetsLedger) rangeRef(cells string) string {
	return fmt.Sprintf("%s!%s", l.cfg.SheetName, cells)
}

func (l *SheetsLedger) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:E%d", l.cfg.SheetName, row, row)
}
