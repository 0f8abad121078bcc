package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
)

// RodDriverConfig configures the rod driver
type RodDriverConfig struct {
	Headless  bool
	NoSandbox bool
	Stealth   bool
	UserAgent string
	RemoteURL string // Connect to an existing browser instead of launching one
}

// RodDriver runs every scenario in its own incognito context of one launched Chrome
type RodDriver struct {
	config RodDriverConfig
	logger arbor.ILogger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewRodDriver creates the driver, Start launches the browser
func NewRodDriver(config RodDriverConfig, logger arbor.ILogger) *RodDriver {
	return &RodDriver{config: config, logger: logger}
}

func (d *RodDriver) Name() string { return "rod" }

func (d *RodDriver) Supports(browser models.BrowserName) bool {
	return browser == models.BrowserChromium
}

func (d *RodDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser != nil {
		return nil
	}

	controlURL := d.config.RemoteURL
	if controlURL == "" {
		l := launcher.New().Context(ctx).Headless(d.config.Headless)
		if d.config.NoSandbox {
			l = l.Set("no-sandbox")
		}
		l = l.Set("disable-dev-shm-usage").Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("failed to launch chrome: %w", err)
		}
		d.launcher = l
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if d.launcher != nil {
			d.launcher.Kill()
		}
		return fmt.Errorf("failed to connect to chrome: %w", err)
	}
	d.browser = b

	d.logger.Info().
		Bool("headless", d.config.Headless).
		Bool("stealth", d.config.Stealth).
		Msg("Rod browser started")
	return nil
}

func (d *RodDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher.Cleanup()
	}
	d.browser = nil
	d.launcher = nil
	if err != nil {
		return fmt.Errorf("failed to close chrome: %w", err)
	}
	d.logger.Info().Msg("Rod browser stopped")
	return nil
}

// Acquire creates an incognito context and a page inside it
func (d *RodDriver) Acquire(ctx context.Context, opts interfaces.PageOptions) (interfaces.Page, func(), error) {
	d.mu.Lock()
	b := d.browser
	d.mu.Unlock()
	if b == nil {
		return nil, nil, fmt.Errorf("rod driver not started")
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create incognito context: %w", err)
	}

	var page *rod.Page
	if d.config.Stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		_ = incognito.Close()
		return nil, nil, fmt.Errorf("failed to create page: %w", err)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = d.config.UserAgent
	}
	if ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to set user agent")
		}
	}

	rp := newRodPage(incognito, page, d.logger)
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		if err := rp.SetViewport(ctx, opts.Viewport); err != nil {
			_ = rp.Close()
			return nil, nil, err
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := rp.Close(); err != nil {
				d.logger.Warn().Err(err).Msg("Failed to close rod page")
			}
		})
	}
	return rp, release, nil
}

// RodPage is one rod page in its own incognito context
type RodPage struct {
	domQueries

	incognito *rod.Browser
	page      *rod.Page
	logger    arbor.ILogger
	stopEvts  context.CancelFunc

	mu          sync.Mutex
	url         string
	document    *interfaces.NavigationResult
	requestURLs map[proto.NetworkRequestID]string
	consoleFns  []func(models.ConsoleEntry)
	responseFns []func(models.NetworkEntry)
	closeOnce   sync.Once
}

func newRodPage(incognito *rod.Browser, page *rod.Page, logger arbor.ILogger) *RodPage {
	p := &RodPage{
		incognito:   incognito,
		page:        page,
		logger:      logger,
		requestURLs: make(map[proto.NetworkRequestID]string),
	}
	p.domQueries = domQueries{eval: p}

	evCtx, cancel := context.WithCancel(context.Background())
	p.stopEvts = cancel
	wait := page.Context(evCtx).EachEvent(
		func(e *proto.RuntimeConsoleAPICalled) {
			args := make([]string, 0, len(e.Args))
			for _, arg := range e.Args {
				if arg.Description != "" && arg.Value.Nil() {
					args = append(args, arg.Description)
					continue
				}
				args = append(args, arg.Value.Str())
			}
			p.emitConsole(models.ConsoleEntry{Level: string(e.Type), Text: strings.Join(args, " "), At: time.Now()})
		},
		func(e *proto.NetworkRequestWillBeSent) {
			if e.Request != nil {
				p.mu.Lock()
				p.requestURLs[e.RequestID] = e.Request.URL
				p.mu.Unlock()
			}
		},
		func(e *proto.NetworkResponseReceived) {
			if e.Response == nil {
				return
			}
			if e.Type == proto.NetworkResourceTypeDocument {
				headers := make(map[string]string, len(e.Response.Headers))
				for k, v := range e.Response.Headers {
					headers[strings.ToLower(k)] = v.Str()
				}
				p.mu.Lock()
				if p.document == nil {
					p.document = &interfaces.NavigationResult{URL: e.Response.URL, Status: e.Response.Status, Headers: headers}
				}
				p.mu.Unlock()
			}
			p.emitResponse(models.NetworkEntry{
				URL:          e.Response.URL,
				Status:       e.Response.Status,
				ResourceType: strings.ToLower(string(e.Type)),
				At:           time.Now(),
			})
		},
		func(e *proto.NetworkLoadingFailed) {
			if e.Canceled {
				return
			}
			p.mu.Lock()
			u := p.requestURLs[e.RequestID]
			p.mu.Unlock()
			p.emitResponse(models.NetworkEntry{
				URL:          u,
				ResourceType: strings.ToLower(string(e.Type)),
				Failed:       true,
				ErrorText:    e.ErrorText,
				At:           time.Now(),
			})
		},
	)
	go wait()
	return p
}

func (p *RodPage) evalString(ctx context.Context, expression string) (string, error) {
	res, err := p.page.Context(ctx).Eval("() => " + expression)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate script: %w", err)
	}
	return res.Value.Str(), nil
}

func (p *RodPage) emitConsole(entry models.ConsoleEntry) {
	p.mu.Lock()
	fns := append([]func(models.ConsoleEntry){}, p.consoleFns...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(entry)
	}
}

func (p *RodPage) emitResponse(entry models.NetworkEntry) {
	p.mu.Lock()
	fns := append([]func(models.NetworkEntry){}, p.responseFns...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(entry)
	}
}

func (p *RodPage) Navigate(ctx context.Context, url string, timeout time.Duration) (*interfaces.NavigationResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p.mu.Lock()
	p.document = nil
	p.mu.Unlock()

	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to read page info: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = info.URL
	result := &interfaces.NavigationResult{URL: info.URL, Elapsed: time.Since(start)}
	if p.document != nil {
		result.Status = p.document.Status
		result.Headers = p.document.Headers
	}
	return result, nil
}

func (p *RodPage) WaitForLoad(ctx context.Context, state models.LoadState, timeout time.Duration) error {
	return waitForReadyState(ctx, p, state, timeout)
}

func (p *RodPage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return evaluateJSON(ctx, p, expression, out)
}

func (p *RodPage) Title(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval("() => document.title")
	if err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return res.Value.Str(), nil
}

func (p *RodPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *RodPage) Content(ctx context.Context) (string, error) {
	markup, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return markup, nil
}

func (p *RodPage) SetViewport(ctx context.Context, viewport models.Viewport) error {
	err := p.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewport.Width,
		Height:            viewport.Height,
		DeviceScaleFactor: 1,
		Mobile:            viewport.Mobile,
	})
	if err != nil {
		return fmt.Errorf("failed to set viewport %s: %w", viewport, err)
	}
	return nil
}

func (p *RodPage) Screenshot(ctx context.Context, path string, fullPage bool) error {
	buf, err := p.page.Context(ctx).Screenshot(fullPage, nil)
	if err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to write screenshot %s: %w", path, err)
	}
	return nil
}

func (p *RodPage) OnConsoleMessage(fn func(models.ConsoleEntry)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consoleFns = append(p.consoleFns, fn)
}

func (p *RodPage) OnResponse(fn func(models.NetworkEntry)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responseFns = append(p.responseFns, fn)
}

// Close disposes the incognito context along with its page
func (p *RodPage) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.stopEvts()
		p.mu.Lock()
		p.consoleFns = nil
		p.responseFns = nil
		p.mu.Unlock()
		if cerr := p.page.Close(); cerr != nil {
			p.logger.Debug().Err(cerr).Msg("Page already closed")
		}
		err = p.incognito.Close()
	})
	return err
}
