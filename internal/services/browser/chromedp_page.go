package browser

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
)

// ChromeDPDriver opens one isolated browser context per scenario on a ChromeDPPool
type ChromeDPDriver struct {
	pool   *ChromeDPPool
	logger arbor.ILogger
}

// NewChromeDPDriver creates the driver, Start launches the pool
func NewChromeDPDriver(config ChromeDPPoolConfig, logger arbor.ILogger) *ChromeDPDriver {
	return &ChromeDPDriver{
		pool:   NewChromeDPPool(config, logger),
		logger: logger,
	}
}

func (d *ChromeDPDriver) Name() string { return "chromedp" }

// Supports reports chromium only: chromedp speaks CDP to Chrome
func (d *ChromeDPDriver) Supports(browser models.BrowserName) bool {
	return browser == models.BrowserChromium
}

func (d *ChromeDPDriver) Start(ctx context.Context) error {
	return d.pool.Start(ctx)
}

func (d *ChromeDPDriver) Stop() error {
	if stats := d.pool.Stats(); stats.Leased > 0 {
		d.logger.Warn().Int("leased", stats.Leased).Msg("Stopping Chrome with tabs still open")
	}
	return d.pool.Shutdown()
}

// Acquire opens a tab in a fresh browser context with listeners attached
func (d *ChromeDPDriver) Acquire(ctx context.Context, opts interfaces.PageOptions) (interfaces.Page, func(), error) {
	browserCtx, releaseLease, err := d.pool.Lease()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lease browser: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext())
	page := &ChromeDPPage{
		ctx:         tabCtx,
		cancel:      tabCancel,
		logger:      d.logger,
		requestURLs: make(map[network.RequestID]string),
	}
	page.domQueries = domQueries{eval: page}
	chromedp.ListenTarget(tabCtx, page.handleEvent)

	actions := []chromedp.Action{network.Enable(), runtime.Enable(), cdplog.Enable()}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		actions = append(actions, emulation.SetDeviceMetricsOverride(int64(opts.Viewport.Width), int64(opts.Viewport.Height), 1, opts.Viewport.Mobile))
	}
	if opts.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(opts.UserAgent))
	}
	// The first Run creates the target and its event loop lives on the Run
	// context, so it must be tabCtx itself. Later calls go through bind.
	stopOnCancel := context.AfterFunc(ctx, tabCancel)
	err = chromedp.Run(tabCtx, actions...)
	if !stopOnCancel() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		tabCancel()
		releaseLease()
		return nil, nil, fmt.Errorf("failed to open tab: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := page.Close(); err != nil {
				d.logger.Warn().Err(err).Msg("Failed to close chromedp tab")
			}
			releaseLease()
		})
	}
	return page, release, nil
}

// ChromeDPPage is one chromedp tab
type ChromeDPPage struct {
	domQueries

	ctx    context.Context
	cancel context.CancelFunc
	logger arbor.ILogger

	mu          sync.Mutex
	url         string
	consoleFns  []func(models.ConsoleEntry)
	responseFns []func(models.NetworkEntry)
	requestURLs map[network.RequestID]string
	document    *interfaces.NavigationResult
	closed      bool
	closeOnce   sync.Once
}

// bind derives a chromedp context that is cancelled along with ctx
func (p *ChromeDPPage) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *ChromeDPPage) evalString(ctx context.Context, expression string) (string, error) {
	runCtx, cancel := p.bind(ctx)
	defer cancel()
	var out string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(expression, &out)); err != nil {
		return "", fmt.Errorf("failed to evaluate script: %w", err)
	}
	return out, nil
}

// handleEvent runs synchronously on the chromedp event loop and must not block
func (p *ChromeDPPage) handleEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		args := make([]string, 0, len(ev.Args))
		for _, arg := range ev.Args {
			if arg.Value != nil {
				args = append(args, unquoteJSON(string(arg.Value)))
			} else if arg.Description != "" {
				args = append(args, arg.Description)
			}
		}
		level := string(ev.Type)
		if ev.Type == runtime.APITypeWarning {
			level = "warning"
		}
		p.emitConsole(models.ConsoleEntry{Level: level, Text: strings.Join(args, " "), At: time.Now()})

	case *cdplog.EventEntryAdded:
		if ev.Entry == nil {
			return
		}
		if ev.Entry.Level == cdplog.LevelError || ev.Entry.Level == cdplog.LevelWarning {
			p.emitConsole(models.ConsoleEntry{Level: string(ev.Entry.Level), Text: ev.Entry.Text, URL: ev.Entry.URL, At: time.Now()})
		}

	case *network.EventRequestWillBeSent:
		if ev.Request != nil {
			p.mu.Lock()
			p.requestURLs[ev.RequestID] = ev.Request.URL
			p.mu.Unlock()
		}

	case *network.EventResponseReceived:
		if ev.Response == nil {
			return
		}
		entry := models.NetworkEntry{
			URL:          ev.Response.URL,
			Status:       int(ev.Response.Status),
			ResourceType: strings.ToLower(string(ev.Type)),
			At:           time.Now(),
		}
		if ev.Type == network.ResourceTypeDocument {
			p.mu.Lock()
			if p.document == nil {
				p.document = &interfaces.NavigationResult{
					URL:     ev.Response.URL,
					Status:  int(ev.Response.Status),
					Headers: headerMap(map[string]interface{}(ev.Response.Headers)),
				}
			}
			p.mu.Unlock()
		}
		p.emitResponse(entry)

	case *network.EventLoadingFailed:
		if ev.Canceled {
			return
		}
		p.mu.Lock()
		u := p.requestURLs[ev.RequestID]
		p.mu.Unlock()
		p.emitResponse(models.NetworkEntry{
			URL:          u,
			ResourceType: strings.ToLower(string(ev.Type)),
			Failed:       true,
			ErrorText:    ev.ErrorText,
			At:           time.Now(),
		})
	}
}

func unquoteJSON(s string) string {
	if strings.HasPrefix(s, `"`) {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}

func (p *ChromeDPPage) emitConsole(entry models.ConsoleEntry) {
	p.mu.Lock()
	fns := append([]func(models.ConsoleEntry){}, p.consoleFns...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(entry)
	}
}

func (p *ChromeDPPage) emitResponse(entry models.NetworkEntry) {
	p.mu.Lock()
	fns := append([]func(models.NetworkEntry){}, p.responseFns...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(entry)
	}
}

func (p *ChromeDPPage) Navigate(ctx context.Context, url string, timeout time.Duration) (*interfaces.NavigationResult, error) {
	start := time.Now()

	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()
	runCtx, cancel := p.bind(ctx)
	defer cancel()

	p.mu.Lock()
	p.document = nil
	p.mu.Unlock()

	var location string
	if err := chromedp.Run(runCtx, chromedp.Navigate(url), chromedp.Location(&location)); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = location
	result := &interfaces.NavigationResult{URL: location, Elapsed: time.Since(start)}
	if p.document != nil {
		result.Status = p.document.Status
		result.Headers = p.document.Headers
	}
	return result, nil
}

func (p *ChromeDPPage) WaitForLoad(ctx context.Context, state models.LoadState, timeout time.Duration) error {
	return waitForReadyState(ctx, p, state, timeout)
}

func (p *ChromeDPPage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return evaluateJSON(ctx, p, expression, out)
}

func (p *ChromeDPPage) Title(ctx context.Context) (string, error) {
	runCtx, cancel := p.bind(ctx)
	defer cancel()
	var title string
	if err := chromedp.Run(runCtx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

func (p *ChromeDPPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *ChromeDPPage) Content(ctx context.Context) (string, error) {
	runCtx, cancel := p.bind(ctx)
	defer cancel()
	var markup string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &markup, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return markup, nil
}

func (p *ChromeDPPage) SetViewport(ctx context.Context, viewport models.Viewport) error {
	runCtx, cancel := p.bind(ctx)
	defer cancel()
	return chromedp.Run(runCtx, emulation.SetDeviceMetricsOverride(int64(viewport.Width), int64(viewport.Height), 1, viewport.Mobile))
}

func (p *ChromeDPPage) Screenshot(ctx context.Context, path string, fullPage bool) error {
	runCtx, cancel := p.bind(ctx)
	defer cancel()

	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 90)
	}
	if err := chromedp.Run(runCtx, action); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to write screenshot %s: %w", path, err)
	}
	return nil
}

func (p *ChromeDPPage) OnConsoleMessage(fn func(models.ConsoleEntry)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consoleFns = append(p.consoleFns, fn)
}

func (p *ChromeDPPage) OnResponse(fn func(models.NetworkEntry)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responseFns = append(p.responseFns, fn)
}

// Close cancels the tab context, which closes the target and its browser context
func (p *ChromeDPPage) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.consoleFns = nil
		p.responseFns = nil
		p.mu.Unlock()
		p.cancel()
	})
	return nil
}
