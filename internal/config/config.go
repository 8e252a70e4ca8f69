package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration. Zero values fall back to the
// defaults below, so a config file only needs to name what it changes.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	// InboundKey guards the enqueue endpoint (X-API-KEY). Empty disables
	// the check.
	InboundKey string `yaml:"inbound_key"`

	API APIConfig `yaml:"api"`

	// RedisAddr enables redis snapshot persistence. Empty falls back to
	// file checkpoints in CheckpointDir.
	RedisAddr     string `yaml:"redis_addr"`
	CheckpointDir string `yaml:"checkpoint_dir"`

	// PostgresDSN selects the postgres seen-post store. Empty falls back
	// to sqlite at SqlitePath.
	PostgresDSN string `yaml:"postgres_dsn"`
	SqlitePath  string `yaml:"sqlite_path"`

	WebhookURL string `yaml:"webhook_url"`

	// SiteMinimums overrides the default dispatch threshold per site: the
	// site's queue must reach this depth before a batch is fetched.
	SiteMinimums map[string]int `yaml:"site_minimums"`

	// TimeSensitiveSites dispatch at depth 1 during the UTC hour window
	// [WindowStartHour, WindowEndHour).
	TimeSensitiveSites []string `yaml:"time_sensitive_sites"`
	WindowStartHour    int      `yaml:"window_start_hour"`
	WindowEndHour      int      `yaml:"window_end_hour"`

	// FirehoseSite is fetched by activity watermark instead of id list.
	FirehoseSite string `yaml:"firehose_site"`

	// IgnoredQuestions are never enqueued, per site (sandbox posts).
	IgnoredQuestions map[string][]int `yaml:"ignored_questions"`

	TaskWorkers int `yaml:"task_workers"`
}

type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Filter  string `yaml:"filter"`
	Key     string `yaml:"key"`
}

func Default() Config {
	return Config{
		ListenAddr:    ":8000",
		CheckpointDir: "checkpoints",
		SqlitePath:    "postfetcher.db",
		API: APIConfig{
			BaseURL: "https://api.stackexchange.com/2.2",
			Filter:  "!1rs)sUKylwB)8isvCRk.xNu71LnaxjnPS12*pX*CEOKbPFwVFdHNxiMa7GIVgzDAwMa",
		},
		SiteMinimums: map[string]int{},
		TimeSensitiveSites: []string{
			"security.stackexchange.com", "movies.stackexchange.com",
			"mathoverflow.net", "gaming.stackexchange.com",
			"webmasters.stackexchange.com", "arduino.stackexchange.com",
			"workplace.stackexchange.com",
		},
		WindowStartHour: 4,
		WindowEndHour:   12,
		FirehoseSite:    "stackoverflow.com",
		IgnoredQuestions: map[string][]int{
			// MSE sandbox questions accumulate deliberately weird posts.
			"meta.stackexchange.com": {3122, 51812, 296077},
		},
		TaskWorkers: 4,
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
