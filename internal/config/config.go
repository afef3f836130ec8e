package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port      int              `json:"port"`
	LogConfig logger.LogConfig `json:"log_config"`
	Database  DatabaseConfig   `json:"database"`
	AI        AIConfig         `json:"ai"`
	Detect    DetectConfig     `json:"detect"`
	Tune      TuneConfig       `json:"tune"`
	FileStore FileStoreConfig  `json:"file_store"`
	Session   SessionConfig    `json:"session"`
	Jobs      JobsConfig       `json:"jobs"`
	CORS      []string         `json:"cors_allowlist"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type AIConfig struct {
	Provider      string      `json:"provider"`
	Data          interface{} `json:"data"`
	ChatModel     string      `json:"chat_model"`
	EmbedModel    string      `json:"embed_model"`
	EmbedDim      int         `json:"embed_dim"` // width of the doc_chunks vector column
	TopK          int         `json:"top_k"`
	TimeoutSecs   int         `json:"timeout_secs"`
	MaxToolRounds int         `json:"max_tool_rounds"`
	CacheSize     int         `json:"embed_cache_size"`
	CacheTTLMins  int         `json:"embed_cache_ttl_mins"`
}

type DetectConfig struct {
	ThresholdPolicy string  `json:"threshold_policy"` // sigma or fixed
	SigmaMultiplier float64 `json:"sigma_multiplier"`
	Buffer          float64 `json:"buffer"`
	FixedBound      float64 `json:"fixed_bound"`
	Quorum          int     `json:"quorum"`
	MergeGapSecs    int     `json:"merge_gap_secs"`
	MinEventSecs    int     `json:"min_event_secs"`
	MinHistory      int     `json:"min_history"`
	SeasonLength    int     `json:"season_length"`
	ResampleSecs    int     `json:"resample_secs"`
}

type TuneConfig struct {
	Trials  int   `json:"trials"`
	Workers int   `json:"workers"`
	Seed    int64 `json:"seed"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type SessionConfig struct {
	Secret      string `json:"secret"`
	TTLHours    int    `json:"ttl_hours"`
	IdleMinutes int    `json:"idle_minutes"`
}

type JobsConfig struct {
	DetectCron      string `json:"detect_cron"`
	PlotCleanupCron string `json:"plot_cleanup_cron"`
	PlotTTLHours    int    `json:"plot_ttl_hours"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.ChatModel == "" {
		cfg.AI.ChatModel = "gpt-4o"
	}
	if cfg.AI.EmbedModel == "" {
		cfg.AI.EmbedModel = "text-embedding-3-large"
	}
	if cfg.AI.EmbedDim == 0 {
		cfg.AI.EmbedDim = 3072
	}
	if cfg.AI.TopK == 0 {
		cfg.AI.TopK = 4
	}
	if cfg.AI.TimeoutSecs == 0 {
		cfg.AI.TimeoutSecs = 60
	}
	if cfg.AI.MaxToolRounds == 0 {
		cfg.AI.MaxToolRounds = 5
	}
	if cfg.AI.CacheSize == 0 {
		cfg.AI.CacheSize = 4096
	}
	if cfg.AI.CacheTTLMins == 0 {
		cfg.AI.CacheTTLMins = 120
	}
	switch cfg.Detect.ThresholdPolicy {
	case "":
		cfg.Detect.ThresholdPolicy = "sigma"
	case "sigma", "fixed":
	default:
		return fmt.Errorf("detect.threshold_policy must be sigma or fixed")
	}
	if cfg.Detect.SigmaMultiplier == 0 {
		cfg.Detect.SigmaMultiplier = 3
	}
	if cfg.Detect.Quorum == 0 {
		cfg.Detect.Quorum = 5
	}
	if cfg.Detect.MergeGapSecs == 0 {
		cfg.Detect.MergeGapSecs = 60
	}
	if cfg.Detect.MinEventSecs == 0 {
		cfg.Detect.MinEventSecs = 300
	}
	if cfg.Detect.ResampleSecs == 0 {
		cfg.Detect.ResampleSecs = 10
	}
	if cfg.Detect.SeasonLength == 0 {
		cfg.Detect.SeasonLength = 86400 / cfg.Detect.ResampleSecs // one day per cycle
	}
	if cfg.Detect.MinHistory == 0 {
		cfg.Detect.MinHistory = 2 * cfg.Detect.SeasonLength
	}
	if cfg.Tune.Trials == 0 {
		cfg.Tune.Trials = 32
	}
	if cfg.Tune.Workers == 0 {
		cfg.Tune.Workers = 4
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.Session.Secret == "" {
		return fmt.Errorf("session.secret is required")
	}
	if cfg.Session.TTLHours == 0 {
		cfg.Session.TTLHours = 12
	}
	if cfg.Session.IdleMinutes == 0 {
		cfg.Session.IdleMinutes = 60
	}
	if cfg.Jobs.PlotTTLHours == 0 {
		cfg.Jobs.PlotTTLHours = 72
	}
	return nil
}
