// Package config handles configuration loading, saving, and schema definition.
package config

// Config is the top-level dockbus configuration.
// Uses json tags in camelCase to match the JSON config file format.
// Selected fields can be overridden from DOCKBUS_* environment variables.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Bus       BusConfig       `json:"bus"`
	Session   SessionConfig   `json:"session"`
	Store     StoreConfig     `json:"store"`
	Dock      DockConfig      `json:"dock"`
	Telemetry TelemetryConfig `json:"telemetry"`

	// PanelsFile is the panels.yaml path; relative paths resolve against the
	// config directory.
	PanelsFile string `json:"panelsFile,omitempty" env:"DOCKBUS_PANELS_FILE"`
}

// ServerConfig holds HTTP/WebSocket server settings.
type ServerConfig struct {
	Host             string `json:"host,omitempty" env:"DOCKBUS_HOST"`
	Port             int    `json:"port,omitempty" env:"DOCKBUS_PORT"`
	APIKey           string `json:"apiKey,omitempty" env:"DOCKBUS_API_KEY"` // empty disables auth
	HeartbeatSeconds int    `json:"heartbeatSeconds,omitempty"`
}

// BusConfig holds command bus behaviour.
type BusConfig struct {
	Coalesce bool `json:"coalesce" env:"DOCKBUS_COALESCE"`
	// HighFrequencyOnly limits coalescing to splitter and drag-preview
	// updates. When false every kind coalesces, so two distinct CloseTab
	// requests in one burst keep only the later one.
	HighFrequencyOnly bool `json:"highFrequencyOnly" env:"DOCKBUS_COALESCE_HIGH_FREQUENCY_ONLY"`
}

// SessionConfig holds per-session pump settings.
type SessionConfig struct {
	MaxSessions        int    `json:"maxSessions,omitempty"`
	IdleTimeoutMinutes int    `json:"idleTimeoutMinutes,omitempty"`
	BatchSize          int    `json:"batchSize,omitempty"`
	HaltPolicy         string `json:"haltPolicy,omitempty" env:"DOCKBUS_HALT_POLICY"` // resume, hold, clear
}

// StoreConfig selects the layout snapshot backend.
type StoreConfig struct {
	Driver         string `json:"driver,omitempty" env:"DOCKBUS_STORE_DRIVER"` // memory, redis, sqlite
	RedisURL       string `json:"redisUrl,omitempty" env:"DOCKBUS_REDIS_URL"`
	SQLitePath     string `json:"sqlitePath,omitempty" env:"DOCKBUS_SQLITE_PATH"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

// DockConfig seeds the runtime settings hub.
type DockConfig struct {
	MinRatio      float64 `json:"minRatio"`
	MaxRatio      float64 `json:"maxRatio"`
	AllowFloating bool    `json:"allowFloating"`
	AutoHide      bool    `json:"autoHide"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty" env:"DOCKBUS_OTEL_ENABLED"`
	Endpoint    string `json:"endpoint,omitempty" env:"DOCKBUS_OTEL_ENDPOINT"`
	ServiceName string `json:"serviceName,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             18791,
			HeartbeatSeconds: 30,
		},
		Bus: BusConfig{
			Coalesce:          true,
			HighFrequencyOnly: true,
		},
		Session: SessionConfig{
			MaxSessions:        1000,
			IdleTimeoutMinutes: 30,
			BatchSize:          256,
			HaltPolicy:         "resume",
		},
		Store: StoreConfig{
			Driver:         "memory",
			TimeoutSeconds: 5,
		},
		Dock: DockConfig{
			MinRatio:      0.1,
			MaxRatio:      0.9,
			AllowFloating: true,
			AutoHide:      true,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "dockbus",
		},
		PanelsFile: "panels.yaml",
	}
}
