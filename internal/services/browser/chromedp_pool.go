// -----------------------------------------------------------------------
// ChromeDP Pool - warm Chrome instances shared by scenario tabs
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// ChromeDPPoolConfig holds configuration for the browser pool
type ChromeDPPoolConfig struct {
	MaxInstances   int           `json:"max_instances"`
	UserAgent      string        `json:"user_agent"`
	Headless       bool          `json:"headless"`
	DisableGPU     bool          `json:"disable_gpu"`
	NoSandbox      bool          `json:"no_sandbox"`
	RequestTimeout time.Duration `json:"request_timeout"` // Startup probe bound per instance
}

// chromeInstance is one launched Chrome process and the tabs leased on it
type chromeInstance struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	leases      int
}

func (c *chromeInstance) stop() {
	c.cancel()
	c.allocCancel()
}

// PoolStats is a snapshot of pool usage
type PoolStats struct {
	Instances int  `json:"instances"`
	Leased    int  `json:"leased"`
	Started   bool `json:"started"`
}

// ChromeDPPool launches a fixed set of Chrome instances.
// Each scenario leases the least busy one and opens its own tab on it.
type ChromeDPPool struct {
	config    ChromeDPPoolConfig
	logger    arbor.ILogger
	mu        sync.Mutex
	instances []*chromeInstance
	next      int
	started   bool
}

// NewChromeDPPool creates an unstarted pool
func NewChromeDPPool(config ChromeDPPoolConfig, logger arbor.ILogger) *ChromeDPPool {
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	return &ChromeDPPool{config: config, logger: logger}
}

// Start launches the instances. It fails only when none could be started.
func (p *ChromeDPPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}
	if p.config.MaxInstances <= 0 {
		return fmt.Errorf("pool_size must be greater than 0, got: %d", p.config.MaxInstances)
	}

	p.logger.Info().
		Int("pool_size", p.config.MaxInstances).
		Bool("headless", p.config.Headless).
		Msg("Launching Chrome instances")

	var lastErr error
	for i := 0; i < p.config.MaxInstances; i++ {
		inst, err := p.launch(ctx)
		if err != nil {
			lastErr = err
			p.logger.Warn().Err(err).Int("instance", i).Msg("Chrome instance failed to start")
			continue
		}
		p.instances = append(p.instances, inst)
	}

	if len(p.instances) == 0 {
		return fmt.Errorf("failed to start any Chrome instance: %w", lastErr)
	}
	if len(p.instances) < p.config.MaxInstances {
		p.logger.Warn().
			Int("requested", p.config.MaxInstances).
			Int("started", len(p.instances)).
			Msg("Running with fewer Chrome instances than requested")
	}

	p.started = true
	return nil
}

// launch starts one Chrome process and checks it can load about:blank
func (p *ChromeDPPool) launch(ctx context.Context) (*chromeInstance, error) {
	started := time.Now()

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("disable-gpu", p.config.DisableGPU),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", false),
		chromedp.UserAgent(p.config.UserAgent),
	)

	// Instances outlive the Start context
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	inst := &chromeInstance{ctx: browserCtx, cancel: browserCancel, allocCancel: allocCancel}

	// The first Run allocates the process and ties it to the Run context,
	// so the check runs on browserCtx and is bounded from outside
	overrun := time.AfterFunc(p.config.RequestTimeout, inst.stop)
	stopOnCancel := context.AfterFunc(ctx, inst.stop)
	err := chromedp.Run(browserCtx, chromedp.Navigate("about:blank"))
	timedOut := !overrun.Stop()
	cancelled := !stopOnCancel()

	switch {
	case timedOut:
		inst.stop()
		return nil, fmt.Errorf("startup check exceeded %s", p.config.RequestTimeout)
	case cancelled:
		inst.stop()
		return nil, fmt.Errorf("startup check cancelled: %w", ctx.Err())
	case err != nil:
		inst.stop()
		return nil, fmt.Errorf("startup check failed: %w", err)
	}

	p.logger.Debug().Dur("startup_time", time.Since(started)).Msg("Chrome instance ready")
	return inst, nil
}

// Lease returns the browser context with the fewest open tabs, round-robin
// on ties. The release func is idempotent.
func (p *ChromeDPPool) Lease() (context.Context, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || len(p.instances) == 0 {
		return nil, nil, fmt.Errorf("browser pool not started")
	}

	n := len(p.instances)
	best := p.next % n
	for i := 1; i < n; i++ {
		candidate := (p.next + i) % n
		if p.instances[candidate].leases < p.instances[best].leases {
			best = candidate
		}
	}
	p.next = (best + 1) % n

	inst := p.instances[best]
	inst.leases++

	var once sync.Once
	release := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if inst.leases > 0 {
				inst.leases--
			}
		})
	}
	return inst.ctx, release, nil
}

// Shutdown stops every instance, waiting at most 30s
func (p *ChromeDPPool) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}

	count := len(p.instances)
	done := make(chan struct{})
	go func(instances []*chromeInstance) {
		for _, inst := range instances {
			inst.stop()
		}
		close(done)
	}(p.instances)

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		p.logger.Warn().Int("instances", count).Msg("Chrome shutdown timed out")
	}

	p.instances = nil
	p.next = 0
	p.started = false
	p.logger.Info().Int("instances", count).Msg("Chrome instances stopped")
	return nil
}

// Stats returns current pool usage
func (p *ChromeDPPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{Instances: len(p.instances), Started: p.started}
	for _, inst := range p.instances {
		stats.Leased += inst.leases
	}
	return stats
}
