package config

import (
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MEMOSCAN_LISTEN_ADDR", ":9999")
	t.Setenv("SCRAPE_API_KEY", "scrape-key")
	t.Setenv("OPENAI_API_KEY", "llm-key")
	t.Setenv("MEMOSCAN_SCANS_PER_DAY", "3")
	t.Setenv("MEMOSCAN_DISCOVERY_ROLLOUT", "25")

	cfg := FromEnv(DefaultConfig())

	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Fetcher.ScrapeAPIKey != "scrape-key" || cfg.LLM.APIKey != "llm-key" {
		t.Error("API keys not picked up from environment")
	}
	if cfg.Quota.ScansPerWindow != 3 {
		t.Errorf("ScansPerWindow = %d", cfg.Quota.ScansPerWindow)
	}
	if cfg.Session.DiscoveryRolloutPercent != 25 {
		t.Errorf("DiscoveryRolloutPercent = %d", cfg.Session.DiscoveryRolloutPercent)
	}
}

func TestFromEnvIgnoresBadNumbers(t *testing.T) {
	t.Setenv("MEMOSCAN_SCANS_PER_DAY", "not-a-number")
	t.Setenv("MEMOSCAN_DISCOVERY_ROLLOUT", "150")

	cfg := FromEnv(DefaultConfig())
	def := DefaultConfig()

	if cfg.Quota.ScansPerWindow != def.Quota.ScansPerWindow {
		t.Errorf("ScansPerWindow = %d, want default", cfg.Quota.ScansPerWindow)
	}
	if cfg.Session.DiscoveryRolloutPercent != def.Session.DiscoveryRolloutPercent {
		t.Errorf("DiscoveryRolloutPercent = %d, want default", cfg.Session.DiscoveryRolloutPercent)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero extractor concurrency", func(c *Config) { c.Extractor.Concurrency = 0 }},
		{"zero page budget", func(c *Config) { c.Extractor.PageBudget = 0 }},
		{"zero concurrent sessions", func(c *Config) { c.Quota.MaxConcurrentSessions = 0 }},
		{"zero cache bytes", func(c *Config) { c.Cache.MaxBytes = 0 }},
		{"zero cache items", func(c *Config) { c.Cache.MaxItems = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("want validation error")
			}
		})
	}
}
