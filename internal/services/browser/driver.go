package browser

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/common"
	"github.com/ternarybob/siteprobe/internal/interfaces"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 SiteProbe/1.0"

// NewDriver builds the configured driver. It is not started.
func NewDriver(config *common.Config, logger arbor.ILogger) (interfaces.Driver, error) {
	bc := config.Browser

	switch bc.Driver {
	case "chromedp":
		return NewChromeDPDriver(ChromeDPPoolConfig{
			MaxInstances:   bc.PoolSize,
			UserAgent:      bc.UserAgent,
			Headless:       bc.Headless,
			DisableGPU:     bc.DisableGPU,
			NoSandbox:      bc.NoSandbox,
			RequestTimeout: 30 * time.Second,
		}, logger), nil

	case "rod":
		return NewRodDriver(RodDriverConfig{
			Headless:  bc.Headless,
			NoSandbox: bc.NoSandbox,
			Stealth:   bc.Stealth,
			UserAgent: bc.UserAgent,
		}, logger), nil

	case "playwright":
		return NewPlaywrightDriver(PlaywrightDriverConfig{
			Headless:  bc.Headless,
			Install:   bc.InstallPlaywright,
			UserAgent: bc.UserAgent,
		}, logger), nil

	case "static":
		timeout := 30 * time.Second
		if bc.HTTPTimeout != "" {
			d, err := time.ParseDuration(bc.HTTPTimeout)
			if err != nil {
				return nil, fmt.Errorf("invalid http_timeout %q: %w", bc.HTTPTimeout, err)
			}
			timeout = d
		}
		return NewStaticDriver(StaticDriverConfig{UserAgent: bc.UserAgent, HTTPTimeout: timeout}, logger), nil

	default:
		return nil, fmt.Errorf("unknown browser driver %q", bc.Driver)
	}
}
