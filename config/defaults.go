package config

import "github.com/spf13/viper"

// DefaultContentServerPort is unused by the client (no listening server) but kept
// as the content-server default port when running against a local realm.
const DefaultContentServerPort = 8787

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("realm.url", "https://peer.decentraland.org")
	v.SetDefault("realm.start_parcel_x", 0)
	v.SetDefault("realm.start_parcel_y", 0)
	v.SetDefault("realm.load_distance", 4)
	v.SetDefault("realm.unload_hysteresis", 2)

	v.SetDefault("scheduler.frame_budget_ms", 16)
	v.SetDefault("scheduler.max_skipped_frames", 0) // derived from live scene count if 0

	v.SetDefault("transport.connect_attempts", 3)
	v.SetDefault("transport.connect_timeout_ms", 5000)
	v.SetDefault("transport.read_timeout_ms", 30000)
	v.SetDefault("transport.backoff_initial_ms", 250)
	v.SetDefault("transport.backoff_max_ms", 8000)

	v.SetDefault("worker.memory_limit_pages", 256) // 16 MiB

	v.SetDefault("content.server_url", "https://peer.decentraland.org/content")
	v.SetDefault("content.cache_dir", "~/.explorer/content")

	v.SetDefault("login.cache_path", "~/.explorer/login.json")

	v.SetDefault("log.json", false)
	v.SetDefault("log.theme", "everforest")
}

// BindSensitiveEnvVars explicitly binds values that should be settable
// without touching disk, mirroring the am.BindSensitiveEnvVars.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("realm.url", "EXPLORER_REALM_URL")
	v.BindEnv("content.server_url", "EXPLORER_CONTENT_SERVER_URL")
	v.BindEnv("login.cache_path", "EXPLORER_LOGIN_CACHE_PATH")
}
