package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/siteprobe/internal/models"
)

var (
	// ErrUnsupported is returned when a driver cannot perform an operation
	ErrUnsupported = errors.New("operation not supported by driver")

	// ErrElementDetached is returned when an element handle no longer resolves
	ErrElementDetached = errors.New("element is no longer attached to the document")

	// ErrNoDocument is returned by queries made before a successful navigation
	ErrNoDocument = errors.New("page has no document loaded")
)

// QueryKind is a primitive query understood by every driver
type QueryKind string

const (
	QueryCSS  QueryKind = "css"
	QueryText QueryKind = "text"
)

// Query is one primitive element query compiled from a Descriptor
type Query struct {
	Kind          QueryKind
	Selector      string // css
	Pattern       string // text regex
	CaseSensitive bool   // text
}

// Element is an opaque handle to one element of the current document
type Element struct {
	Ref string `json:"ref"`
	Tag string `json:"tag"`
}

// NavigationResult describes the main document response
type NavigationResult struct {
	URL     string
	Status  int
	Headers map[string]string
	Elapsed time.Duration
}

// Page is one isolated browser tab. Element operations never mutate the document.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) (*NavigationResult, error)
	WaitForLoad(ctx context.Context, state models.LoadState, timeout time.Duration) error

	QueryAll(ctx context.Context, q Query, scope *Element) ([]Element, error)
	IsVisible(ctx context.Context, el Element) (bool, error)
	Attribute(ctx context.Context, el Element, name string) (string, bool, error)
	TextContent(ctx context.Context, el Element) (string, error)

	// Evaluate runs a JavaScript expression and decodes its JSON value into out
	Evaluate(ctx context.Context, expression string, out interface{}) error
	Title(ctx context.Context) (string, error)
	URL() string
	Content(ctx context.Context) (string, error)

	SetViewport(ctx context.Context, viewport models.Viewport) error
	Screenshot(ctx context.Context, path string, fullPage bool) error

	OnConsoleMessage(fn func(models.ConsoleEntry))
	OnResponse(fn func(models.NetworkEntry))

	Close() error
}

// PageOptions configures a page at acquisition
type PageOptions struct {
	Browser   models.BrowserName
	Viewport  models.Viewport
	UserAgent string
}

// Driver hands out isolated pages on top of a pooled browser engine
type Driver interface {
	Name() string
	Supports(browser models.BrowserName) bool
	Start(ctx context.Context) error
	// Acquire returns a fresh page and an idempotent release func that must always be called
	Acquire(ctx context.Context, opts PageOptions) (Page, func(), error)
	Stop() error
}
