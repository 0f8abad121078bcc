// -----------------------------------------------------------------------
// Static Driver - HTTP fetch + goquery document, no JavaScript engine
// -----------------------------------------------------------------------

package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/ternarybob/arbor"
	"golang.org/x/net/html"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
)

const maxDocumentBytes = 10 * 1024 * 1024

// skippedTags never count as text matches and are never visible
var skippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"head": true, "title": true, "meta": true, "link": true,
}

// StaticDriverConfig configures the static driver
type StaticDriverConfig struct {
	UserAgent   string
	HTTPTimeout time.Duration
	Client      *http.Client // Optional, mainly for tests
}

// StaticDriver serves pages parsed from a plain HTTP fetch.
// Every browser name is accepted because no engine is involved.
type StaticDriver struct {
	client    *http.Client
	userAgent string
	logger    arbor.ILogger
}

// NewStaticDriver creates a static driver
func NewStaticDriver(config StaticDriverConfig, logger arbor.ILogger) *StaticDriver {
	client := config.Client
	if client == nil {
		timeout := config.HTTPTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	ua := config.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &StaticDriver{client: client, userAgent: ua, logger: logger}
}

func (d *StaticDriver) Name() string { return "static" }

func (d *StaticDriver) Supports(browser models.BrowserName) bool { return true }

func (d *StaticDriver) Start(ctx context.Context) error { return nil }

func (d *StaticDriver) Stop() error { return nil }

// Acquire returns a fresh page; the release func is idempotent
func (d *StaticDriver) Acquire(ctx context.Context, opts interfaces.PageOptions) (interfaces.Page, func(), error) {
	ua := opts.UserAgent
	if ua == "" {
		ua = d.userAgent
	}
	page := &StaticPage{client: d.client, userAgent: ua, logger: d.logger, viewport: opts.Viewport}
	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := page.Close(); err != nil {
				d.logger.Warn().Err(err).Msg("Failed to close static page")
			}
		})
	}
	return page, release, nil
}

// StaticPage is a parsed document. Queries are safe for concurrent use.
type StaticPage struct {
	client    *http.Client
	userAgent string
	logger    arbor.ILogger

	mu          sync.RWMutex
	doc         *goquery.Document
	content     string
	url         string
	refs        map[*html.Node]string
	nodes       map[string]*html.Node
	viewport    models.Viewport
	consoleFns  []func(models.ConsoleEntry)
	responseFns []func(models.NetworkEntry)
	closed      bool
}

// NewStaticPage creates an empty page, load it with SetContent or Navigate
func NewStaticPage(logger arbor.ILogger) *StaticPage {
	return &StaticPage{client: &http.Client{Timeout: 30 * time.Second}, userAgent: defaultUserAgent, logger: logger}
}

// SetContent replaces the document with markup as if it had been served from pageURL
func (p *StaticPage) SetContent(pageURL, markup string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}
	p.load(pageURL, markup, doc)
	return nil
}

func (p *StaticPage) load(pageURL, markup string, doc *goquery.Document) {
	refs := make(map[*html.Node]string)
	nodes := make(map[string]*html.Node)
	doc.Find("*").Each(func(i int, s *goquery.Selection) {
		ref := fmt.Sprintf("n%d", i)
		node := s.Get(0)
		refs[node] = ref
		nodes[ref] = node
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc = doc
	p.content = markup
	p.url = pageURL
	p.refs = refs
	p.nodes = nodes
}

func (p *StaticPage) Navigate(ctx context.Context, url string, timeout time.Duration) (*interfaces.NavigationResult, error) {
	if p.isClosed() {
		return nil, fmt.Errorf("page is closed")
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		p.emitResponse(models.NetworkEntry{URL: url, Failed: true, ErrorText: err.Error(), ResourceType: "document", At: time.Now()})
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w", url, err)
	}

	finalURL := resp.Request.URL.String()
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	p.emitResponse(models.NetworkEntry{URL: finalURL, Status: resp.StatusCode, ResourceType: "document", At: time.Now()})

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document from %s: %w", finalURL, err)
	}
	p.load(finalURL, string(body), doc)

	return &interfaces.NavigationResult{
		URL:     finalURL,
		Status:  resp.StatusCode,
		Headers: headers,
		Elapsed: time.Since(start),
	}, nil
}

// WaitForLoad returns at once: a fetched document is fully loaded
func (p *StaticPage) WaitForLoad(ctx context.Context, state models.LoadState, timeout time.Duration) error {
	if _, err := p.document(); err != nil {
		return err
	}
	return nil
}

func (p *StaticPage) document() (*goquery.Document, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.doc == nil {
		return nil, interfaces.ErrNoDocument
	}
	return p.doc, nil
}

func (p *StaticPage) node(el interfaces.Element) (*goquery.Selection, error) {
	doc, err := p.document()
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	n, ok := p.nodes[el.Ref]
	p.mu.RUnlock()
	if !ok {
		return nil, interfaces.ErrElementDetached
	}
	return doc.FindNodes(n), nil
}

func (p *StaticPage) toElements(sel *goquery.Selection) []interfaces.Element {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]interfaces.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if ref, ok := p.refs[n]; ok {
			out = append(out, interfaces.Element{Ref: ref, Tag: goquery.NodeName(s)})
		}
	})
	return out
}

func (p *StaticPage) QueryAll(ctx context.Context, q interfaces.Query, scope *interfaces.Element) ([]interfaces.Element, error) {
	doc, err := p.document()
	if err != nil {
		return nil, err
	}

	root := doc.Selection
	if scope != nil {
		if root, err = p.node(*scope); err != nil {
			return nil, err
		}
	}

	switch q.Kind {
	case interfaces.QueryCSS:
		if _, err := cascadia.Compile(q.Selector); err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", q.Selector, err)
		}
		return p.toElements(root.Find(q.Selector)), nil

	case interfaces.QueryText:
		pattern := q.Pattern
		if !q.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid text pattern %q: %w", q.Pattern, err)
		}
		base := root
		if scope == nil {
			base = doc.Find("body").First()
		}
		return p.toElements(deepestTextMatches(base, re)), nil

	default:
		return nil, fmt.Errorf("unknown query kind %q", q.Kind)
	}
}

// deepestTextMatches returns base and its descendants whose text matches re
// and none of whose element children match
func deepestTextMatches(base *goquery.Selection, re *regexp.Regexp) *goquery.Selection {
	matches := func(s *goquery.Selection) bool {
		return !skippedTags[goquery.NodeName(s)] && re.MatchString(renderedText(s))
	}
	candidates := base.AddSelection(base.Find("*"))
	return candidates.FilterFunction(func(_ int, s *goquery.Selection) bool {
		if !matches(s) {
			return false
		}
		deeper := false
		s.Children().EachWithBreak(func(_ int, c *goquery.Selection) bool {
			if matches(c) {
				deeper = true
				return false
			}
			return true
		})
		return !deeper
	})
}

// renderedText concatenates the text nodes under s, leaving out the subtrees
// of skipped descendants such as inline scripts
func renderedText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				b.WriteString(c.Data)
			case html.ElementNode:
				if !skippedTags[c.Data] {
					walk(c)
				}
			}
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return b.String()
}

var hiddenStyle = regexp.MustCompile(`(?i)(display\s*:\s*none|visibility\s*:\s*hidden)`)

// IsVisible approximates rendering from markup: hidden attributes, inline styles
// and non-rendered ancestors hide an element
func (p *StaticPage) IsVisible(ctx context.Context, el interfaces.Element) (bool, error) {
	sel, err := p.node(el)
	if err != nil {
		return false, err
	}
	if t, _ := sel.Attr("type"); goquery.NodeName(sel) == "input" && strings.EqualFold(t, "hidden") {
		return false, nil
	}
	for s := sel; s.Length() > 0; s = s.Parent() {
		if s.Get(0).Type != html.ElementNode {
			break
		}
		if skippedTags[goquery.NodeName(s)] {
			return false, nil
		}
		if _, hidden := s.Attr("hidden"); hidden {
			return false, nil
		}
		if style, ok := s.Attr("style"); ok && hiddenStyle.MatchString(style) {
			return false, nil
		}
	}
	return true, nil
}

func (p *StaticPage) Attribute(ctx context.Context, el interfaces.Element, name string) (string, bool, error) {
	sel, err := p.node(el)
	if err != nil {
		return "", false, err
	}
	v, ok := sel.Attr(name)
	return v, ok, nil
}

func (p *StaticPage) TextContent(ctx context.Context, el interfaces.Element) (string, error) {
	sel, err := p.node(el)
	if err != nil {
		return "", err
	}
	return renderedText(sel), nil
}

// Evaluate needs a JavaScript engine
func (p *StaticPage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return fmt.Errorf("evaluate: %w", interfaces.ErrUnsupported)
}

func (p *StaticPage) Title(ctx context.Context) (string, error) {
	doc, err := p.document()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}

func (p *StaticPage) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

func (p *StaticPage) Content(ctx context.Context) (string, error) {
	if _, err := p.document(); err != nil {
		return "", err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.content, nil
}

// SetViewport is recorded only: static layout has no width
func (p *StaticPage) SetViewport(ctx context.Context, viewport models.Viewport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewport = viewport
	return nil
}

func (p *StaticPage) Screenshot(ctx context.Context, path string, fullPage bool) error {
	return fmt.Errorf("screenshot: %w", interfaces.ErrUnsupported)
}

// OnConsoleMessage registers fn; no script runs so it never fires
func (p *StaticPage) OnConsoleMessage(fn func(models.ConsoleEntry)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consoleFns = append(p.consoleFns, fn)
}

// OnResponse registers fn for the document response
func (p *StaticPage) OnResponse(fn func(models.NetworkEntry)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responseFns = append(p.responseFns, fn)
}

func (p *StaticPage) emitResponse(entry models.NetworkEntry) {
	p.mu.RLock()
	fns := append([]func(models.NetworkEntry){}, p.responseFns...)
	p.mu.RUnlock()
	for _, fn := range fns {
		fn(entry)
	}
}

func (p *StaticPage) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *StaticPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.doc = nil
	p.refs = nil
	p.nodes = nil
	p.consoleFns = nil
	p.responseFns = nil
	return nil
}
