// Package config loads the client runtime's configuration using Viper,
// merging a TOML file with environment variable overrides the same way
// the am package layers system/user/project config.
package config

// Config is the root configuration for a running client.
type Config struct {
	Realm     RealmConfig     `mapstructure:"realm"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Transport TransportConfig `mapstructure:"transport"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Content   ContentConfig   `mapstructure:"content"`
	Login     LoginConfig     `mapstructure:"login"`
	Log       LogConfig       `mapstructure:"log"`
}

// RealmConfig configures the starting realm and parcel (§6 "Environment at boot").
type RealmConfig struct {
	URL             string `mapstructure:"url"`
	StartParcelX    int    `mapstructure:"start_parcel_x"`
	StartParcelY    int    `mapstructure:"start_parcel_y"`
	LoadDistance    int    `mapstructure:"load_distance"`     // parcels
	UnloadHysteresis int   `mapstructure:"unload_hysteresis"` // extra parcels before despawn
}

// SchedulerConfig tunes the scene scheduler's frame budget (§4.D).
type SchedulerConfig struct {
	FrameBudgetMS     int `mapstructure:"frame_budget_ms"`
	MaxSkippedFrames  int `mapstructure:"max_skipped_frames"` // fairness bound N, §8
}

// TransportConfig tunes connect retry/backoff (§4.G, §5).
type TransportConfig struct {
	ConnectAttempts   int `mapstructure:"connect_attempts"`
	ConnectTimeoutMS  int `mapstructure:"connect_timeout_ms"`
	ReadTimeoutMS     int `mapstructure:"read_timeout_ms"`
	BackoffInitialMS  int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMS      int `mapstructure:"backoff_max_ms"`
}

// WorkerConfig tunes per-scene script worker limits (§4.C).
type WorkerConfig struct {
	MemoryLimitPages int `mapstructure:"memory_limit_pages"` // wazero linear memory pages (64KiB each)
}

// ContentConfig configures the content-addressed asset fetcher (§1, §6).
type ContentConfig struct {
	ServerURL string `mapstructure:"server_url"`
	CacheDir  string `mapstructure:"cache_dir"`
}

// LoginConfig configures the previous-login cache (§6).
type LoginConfig struct {
	CachePath string `mapstructure:"cache_path"`
}

// LogConfig configures the logger (see logger package).
type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Theme string `mapstructure:"theme"`
}
