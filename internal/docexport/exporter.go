// Package docexport drives a real browser to export board documents as
// Markdown. The document editor renders entirely client side and offers
// no export API, so the exporter walks the UI the way a user would.
package docexport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrNotAuthenticated indicates the saved session is missing or expired.
var ErrNotAuthenticated = errors.New("browser session not authenticated")

// Config controls the exporter.
type Config struct {
	// AuthFile stores the captured session cookies as JSON.
	AuthFile string
	// DownloadDir receives exported files. Created if missing.
	DownloadDir string
	// BoardURL is the workspace page used for interactive login.
	BoardURL string
	// NavTimeout bounds page navigation and element waits. Defaults to 60s.
	NavTimeout time.Duration
	// ExportTimeout bounds a whole export including the download, which
	// the editor generates client side and can be slow. Defaults to 120s.
	ExportTimeout time.Duration
	// MaxParallel caps concurrent export tabs. Defaults to 1.
	MaxParallel int
}

// Exporter owns a shared browser process and opens one tab per export.
type Exporter struct {
	cfg         Config
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
	sem         chan struct{}
	logger      *zap.Logger
}

// New launches the browser. headless=false keeps the window visible for
// interactive authentication.
func New(cfg Config, headless bool, logger *zap.Logger) (*Exporter, error) {
	if cfg.AuthFile == "" {
		cfg.AuthFile = "auth.json"
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "downloads"
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}
	if cfg.ExportTimeout <= 0 {
		cfg.ExportTimeout = 120 * time.Second
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserStop()
		allocCancel()
		return nil, fmt.Errorf("browser warmup: %w", err)
	}

	return &Exporter{
		cfg:         cfg,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		browserStop: browserStop,
		sem:         make(chan struct{}, cfg.MaxParallel),
		logger:      logger,
	}, nil
}

// Close tears down the browser and allocator.
func (e *Exporter) Close() {
	if e == nil {
		return
	}
	e.browserStop()
	e.allocCancel()
}

// Authenticate waits for a manual login in the visible browser window and
// captures the session cookies to the auth file. The wait is long because
// a human is typing credentials.
func (e *Exporter) Authenticate(ctx context.Context) error {
	if e.cfg.BoardURL == "" {
		return fmt.Errorf("board url is required for authentication")
	}
	tabCtx, cancelTab := chromedp.NewContext(e.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, 5*time.Minute)
	defer cancelTask()
	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	e.logger.Info("waiting for manual login", zap.String("url", e.cfg.BoardURL))

	var cookies []*network.Cookie
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(e.cfg.BoardURL),
		chromedp.WaitVisible(`div[class*="avatar"]`, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return fmt.Errorf("authentication wait: %w", err)
	}

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cookies: %w", err)
	}
	if err := os.WriteFile(e.cfg.AuthFile, data, 0o600); err != nil {
		return fmt.Errorf("write auth file: %w", err)
	}
	e.logger.Info("session saved",
		zap.String("file", e.cfg.AuthFile), zap.Int("cookies", len(cookies)))
	return nil
}

// Export opens the document, walks the export menu, and waits for the
// generated Markdown download. Returns the local path of the file.
func (e *Exporter) Export(ctx context.Context, docURL string) (string, error) {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return "", fmt.Errorf("wait export slot: %w", ctx.Err())
	}

	cookies, err := e.loadCookies()
	if err != nil {
		return "", err
	}

	tabCtx, cancelTab := chromedp.NewContext(e.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, e.cfg.ExportTimeout)
	defer cancelTask()
	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	done := make(chan string, 1)
	e.watchDownloads(taskCtx, done)

	downloadDir, err := filepath.Abs(e.cfg.DownloadDir)
	if err != nil {
		return "", fmt.Errorf("resolve download dir: %w", err)
	}

	var currentURL string
	err = chromedp.Run(taskCtx,
		setCookies(cookies),
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
		chromedp.Navigate(docURL),
		chromedp.Location(&currentURL),
	)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	if isLoginURL(currentURL) {
		return "", ErrNotAuthenticated
	}

	err = chromedp.Run(taskCtx,
		chromedp.WaitVisible(`.ReactModal__Content`, chromedp.ByQuery),
		chromedp.WaitVisible(`#editor-content`, chromedp.ByQuery),
		chromedp.Click(`#doc-in-file-more-actions-button`, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.Click(exportMenuItem, chromedp.BySearch),
		chromedp.Sleep(time.Second),
		chromedp.Click(markdownMenuItem, chromedp.BySearch),
	)
	if err != nil {
		return "", fmt.Errorf("walk export menu: %w", err)
	}

	select {
	case name := <-done:
		path := filepath.Join(downloadDir, name)
		e.logger.Info("document exported",
			zap.String("url", docURL), zap.String("file", path))
		return path, nil
	case <-taskCtx.Done():
		return "", fmt.Errorf("wait for download: %w", taskCtx.Err())
	}
}

// Menu items carry no stable ids, so they are matched by visible text.
const (
	exportMenuItem   = `//*[@role="menuitem"][not(@aria-disabled="true")][.//span[contains(text(),"Export")]]`
	markdownMenuItem = `//*[@role="menuitem"][contains(.,"Markdown (.md)")]`
)

// watchDownloads renames the finished download from its browser-assigned
// guid to the suggested filename and reports it on done.
func (e *Exporter) watchDownloads(tabCtx context.Context, done chan<- string) {
	suggested := make(map[string]string)
	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch v := ev.(type) {
		case *browser.EventDownloadWillBegin:
			suggested[v.GUID] = v.SuggestedFilename
		case *browser.EventDownloadProgress:
			if v.State != browser.DownloadProgressStateCompleted {
				return
			}
			name, ok := suggested[v.GUID]
			if !ok || name == "" {
				name = v.GUID
			}
			go func() {
				dir, err := filepath.Abs(e.cfg.DownloadDir)
				if err != nil {
					return
				}
				from := filepath.Join(dir, v.GUID)
				to := filepath.Join(dir, name)
				if err := os.Rename(from, to); err != nil {
					e.logger.Warn("rename download failed", zap.Error(err))
					name = v.GUID
				}
				select {
				case done <- name:
				default:
				}
			}()
		}
	})
}

func (e *Exporter) loadCookies() ([]*network.Cookie, error) {
	data, err := os.ReadFile(e.cfg.AuthFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: auth file %s missing", ErrNotAuthenticated, e.cfg.AuthFile)
		}
		return nil, fmt.Errorf("read auth file: %w", err)
	}
	var cookies []*network.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parse auth file: %w", err)
	}
	return cookies, nil
}

func setCookies(cookies []*network.Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			param := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				param = param.WithExpires(&expires)
			}
			if err := param.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

func isLoginURL(rawURL string) bool {
	return strings.Contains(rawURL, "login")
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
