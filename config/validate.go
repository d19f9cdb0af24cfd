package config

import "fmt"

// Validate checks that the configuration is within sane bounds before the
// scheduler and transport start.
func (c *Config) Validate() error {
	if c.Realm.LoadDistance <= 0 {
		return fmt.Errorf("realm.load_distance must be > 0, got %d", c.Realm.LoadDistance)
	}
	if c.Realm.UnloadHysteresis < 0 {
		return fmt.Errorf("realm.unload_hysteresis must be >= 0, got %d", c.Realm.UnloadHysteresis)
	}
	if c.Scheduler.FrameBudgetMS <= 0 {
		return fmt.Errorf("scheduler.frame_budget_ms must be > 0, got %d", c.Scheduler.FrameBudgetMS)
	}
	if c.Scheduler.MaxSkippedFrames < 0 {
		return fmt.Errorf("scheduler.max_skipped_frames must be >= 0, got %d", c.Scheduler.MaxSkippedFrames)
	}
	if c.Transport.ConnectAttempts <= 0 {
		return fmt.Errorf("transport.connect_attempts must be > 0, got %d", c.Transport.ConnectAttempts)
	}
	if c.Transport.BackoffInitialMS <= 0 || c.Transport.BackoffMaxMS < c.Transport.BackoffInitialMS {
		return fmt.Errorf("transport.backoff_initial_ms must be > 0 and <= backoff_max_ms")
	}
	if c.Content.ServerURL == "" {
		return fmt.Errorf("content.server_url must not be empty")
	}
	return nil
}
