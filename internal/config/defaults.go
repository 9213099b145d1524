package config

import "time"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "127.0.0.1:8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		PHP: PHPConfig{
			Version: "auto",
			Root:    ".",
			Extensions: ExtensionsConfig{
				Required: []string{"standard", "callbacks"},
				Optional: []string{"json"},
			},
			LogLevel: "info",
		},
		Bridge: BridgeConfig{
			PumpInterval: Duration(5 * time.Millisecond),
			DrainLimit:   0,
			CallTimeout:  Duration(30 * time.Second),
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			MaxConnections: 1024,
			MaxInFlight:    64,
			MaxMessageSize: ByteSize(4 << 20),
			Codec:          "msgpack",
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
