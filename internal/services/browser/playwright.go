package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
)

// PlaywrightDriverConfig configures the playwright driver
type PlaywrightDriverConfig struct {
	Headless  bool
	Install   bool // Download driver and browsers on Start
	UserAgent string
}

// PlaywrightDriver drives chromium, firefox and webkit. Engines launch on first use.
type PlaywrightDriver struct {
	config PlaywrightDriverConfig
	logger arbor.ILogger

	mu       sync.Mutex
	pw       *playwright.Playwright
	browsers map[models.BrowserName]playwright.Browser
}

// NewPlaywrightDriver creates the driver, Start boots the playwright server
func NewPlaywrightDriver(config PlaywrightDriverConfig, logger arbor.ILogger) *PlaywrightDriver {
	return &PlaywrightDriver{
		config:   config,
		logger:   logger,
		browsers: make(map[models.BrowserName]playwright.Browser),
	}
}

func (d *PlaywrightDriver) Name() string { return "playwright" }

func (d *PlaywrightDriver) Supports(browser models.BrowserName) bool {
	switch browser {
	case models.BrowserChromium, models.BrowserFirefox, models.BrowserWebKit:
		return true
	}
	return false
}

func (d *PlaywrightDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw != nil {
		return nil
	}

	if d.config.Install {
		d.logger.Info().Msg("Installing playwright driver and browsers")
		if err := playwright.Install(); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	d.pw = pw
	d.logger.Info().Bool("headless", d.config.Headless).Msg("Playwright started")
	return nil
}

func (d *PlaywrightDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw == nil {
		return nil
	}
	for name, b := range d.browsers {
		if err := b.Close(); err != nil {
			d.logger.Warn().Err(err).Str("browser", string(name)).Msg("Failed to close browser")
		}
	}
	d.browsers = make(map[models.BrowserName]playwright.Browser)
	err := d.pw.Stop()
	d.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	d.logger.Info().Msg("Playwright stopped")
	return nil
}

func (d *PlaywrightDriver) browser(name models.BrowserName) (playwright.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw == nil {
		return nil, fmt.Errorf("playwright driver not started")
	}
	if b, ok := d.browsers[name]; ok {
		return b, nil
	}

	var engine playwright.BrowserType
	switch name {
	case models.BrowserChromium:
		engine = d.pw.Chromium
	case models.BrowserFirefox:
		engine = d.pw.Firefox
	case models.BrowserWebKit:
		engine = d.pw.WebKit
	default:
		return nil, fmt.Errorf("browser %q: %w", name, interfaces.ErrUnsupported)
	}

	start := time.Now()
	b, err := engine.Launch(playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(d.config.Headless)})
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", name, err)
	}
	d.browsers[name] = b
	d.logger.Info().Str("browser", string(name)).Dur("startup_time", time.Since(start)).Msg("Playwright browser launched")
	return b, nil
}

// Acquire opens a page in a new browser context sized to the viewport
func (d *PlaywrightDriver) Acquire(ctx context.Context, opts interfaces.PageOptions) (interfaces.Page, func(), error) {
	name := opts.Browser
	if name == "" {
		name = models.BrowserChromium
	}
	b, err := d.browser(name)
	if err != nil {
		return nil, nil, err
	}

	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
		// firefox rejects isMobile
		if name != models.BrowserFirefox {
			ctxOpts.IsMobile = playwright.Bool(opts.Viewport.Mobile)
		}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = d.config.UserAgent
	}
	if ua != "" {
		ctxOpts.UserAgent = playwright.String(ua)
	}

	bctx, err := b.NewContext(ctxOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, nil, fmt.Errorf("failed to create page: %w", err)
	}

	pp := newPlaywrightPage(bctx, page, d.logger)
	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := pp.Close(); err != nil {
				d.logger.Warn().Err(err).Msg("Failed to close playwright page")
			}
		})
	}
	return pp, release, nil
}

// PlaywrightPage is one page in its own browser context
type PlaywrightPage struct {
	domQueries

	bctx   playwright.BrowserContext
	page   playwright.Page
	logger arbor.ILogger

	mu          sync.Mutex
	consoleFns  []func(models.ConsoleEntry)
	responseFns []func(models.NetworkEntry)
	closeOnce   sync.Once
}

func newPlaywrightPage(bctx playwright.BrowserContext, page playwright.Page, logger arbor.ILogger) *PlaywrightPage {
	p := &PlaywrightPage{bctx: bctx, page: page, logger: logger}
	p.domQueries = domQueries{eval: p}

	page.OnConsole(func(msg playwright.ConsoleMessage) {
		p.emitConsole(models.ConsoleEntry{Level: msg.Type(), Text: msg.Text(), At: time.Now()})
	})
	page.OnPageError(func(err error) {
		p.emitConsole(models.ConsoleEntry{Level: "error", Text: err.Error(), At: time.Now()})
	})
	page.OnResponse(func(r playwright.Response) {
		p.emitResponse(models.NetworkEntry{
			URL:          r.URL(),
			Status:       r.Status(),
			ResourceType: r.Request().ResourceType(),
			At:           time.Now(),
		})
	})
	page.OnRequestFailed(func(r playwright.Request) {
		text := "request failed"
		if f := r.Failure(); f != nil {
			text = f.Error()
		}
		p.emitResponse(models.NetworkEntry{
			URL:          r.URL(),
			ResourceType: r.ResourceType(),
			Failed:       true,
			ErrorText:    text,
			At:           time.Now(),
		})
	})
	return p
}

// await bounds a blocking playwright call by ctx
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (p *PlaywrightPage) evalString(ctx context.Context, expression string) (string, error) {
	v, err := await(ctx, func() (interface{}, error) { return p.page.Evaluate(expression) })
	if err != nil {
		return "", fmt.Errorf("failed to evaluate script: %w", err)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("script returned %T, want string", v)
	}
	return s, nil
}

func (p *PlaywrightPage) emitConsole(entry models.ConsoleEntry) {
	p.mu.Lock()
	fns := append([]func(models.ConsoleEntry){}, p.consoleFns...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(entry)
	}
}

func (p *PlaywrightPage) emitResponse(entry models.NetworkEntry) {
	p.mu.Lock()
	fns := append([]func(models.NetworkEntry){}, p.responseFns...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(entry)
	}
}

func (p *PlaywrightPage) Navigate(ctx context.Context, url string, timeout time.Duration) (*interfaces.NavigationResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := await(ctx, func() (playwright.Response, error) {
		return p.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateCommit,
			Timeout:   playwright.Float(float64(timeout / time.Millisecond)),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	result := &interfaces.NavigationResult{URL: p.page.URL(), Elapsed: time.Since(start)}
	if resp != nil {
		result.Status = resp.Status()
		headers := resp.Headers()
		result.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			result.Headers[strings.ToLower(k)] = v
		}
	}
	return result, nil
}

func (p *PlaywrightPage) WaitForLoad(ctx context.Context, state models.LoadState, timeout time.Duration) error {
	var ls *playwright.LoadState
	switch state {
	case models.LoadStateDOMContentLoaded:
		ls = playwright.LoadStateDomcontentloaded
	case models.LoadStateLoad:
		ls = playwright.LoadStateLoad
	case models.LoadStateNetworkIdle:
		ls = playwright.LoadStateNetworkidle
	default:
		return fmt.Errorf("unknown load state %q", state)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := await(ctx, func() (struct{}, error) {
		return struct{}{}, p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   ls,
			Timeout: playwright.Float(float64(timeout / time.Millisecond)),
		})
	})
	if err != nil {
		return fmt.Errorf("load state %s not reached within %s: %w", state, timeout, err)
	}
	return nil
}

func (p *PlaywrightPage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return evaluateJSON(ctx, p, expression, out)
}

func (p *PlaywrightPage) Title(ctx context.Context) (string, error) {
	return await(ctx, p.page.Title)
}

func (p *PlaywrightPage) URL() string { return p.page.URL() }

func (p *PlaywrightPage) Content(ctx context.Context) (string, error) {
	return await(ctx, p.page.Content)
}

func (p *PlaywrightPage) SetViewport(ctx context.Context, viewport models.Viewport) error {
	if err := p.page.SetViewportSize(viewport.Width, viewport.Height); err != nil {
		return fmt.Errorf("failed to set viewport %s: %w", viewport, err)
	}
	return nil
}

func (p *PlaywrightPage) Screenshot(ctx context.Context, path string, fullPage bool) error {
	_, err := await(ctx, func() ([]byte, error) {
		return p.page.Screenshot(playwright.PageScreenshotOptions{
			Path:     playwright.String(path),
			FullPage: playwright.Bool(fullPage),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return nil
}

func (p *PlaywrightPage) OnConsoleMessage(fn func(models.ConsoleEntry)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consoleFns = append(p.consoleFns, fn)
}

func (p *PlaywrightPage) OnResponse(fn func(models.NetworkEntry)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responseFns = append(p.responseFns, fn)
}

// Close closes the page and its browser context
func (p *PlaywrightPage) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.consoleFns = nil
		p.responseFns = nil
		p.mu.Unlock()
		if cerr := p.page.Close(); cerr != nil {
			p.logger.Debug().Err(cerr).Msg("Page already closed")
		}
		err = p.bctx.Close()
	})
	return err
}
