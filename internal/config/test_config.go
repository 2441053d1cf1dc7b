package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Database.Path = ":memory:"
	cfg.Feed.HTTPTimeout = 5 * time.Second
	cfg.Feed.UserAgent = "fwrdpost-test/1.0"
	cfg.Feed.AllowPrivate = true
	cfg.Scheduler.Tick = 10 * time.Millisecond
	cfg.Scheduler.Timezone = "UTC"
	cfg.Social.RateLimit = 0
	cfg.Log.Level = "off"
	return cfg
}
