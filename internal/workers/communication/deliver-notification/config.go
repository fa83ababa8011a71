package delivernotification

import (
	"fmt"
	"time"

	"tucomercio/internal/common/config"
)

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	// SiteURL prefixes relative notification links in emails.
	SiteURL string
	Timeout time.Duration
}

func NewConfig(cfg *config.Config) *Config {
	return &Config{
		EmailEnabled: cfg.Notifications.Email.Enabled,
		SMSEnabled:   cfg.Notifications.SMS.Enabled,
		SiteURL:      cfg.App.PublicURL,
		Timeout:      config.GetDuration(config.GetWorkerConfig(cfg, TaskType).Timeout),
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
