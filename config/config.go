// Package config loads the daemon's recognized configuration from YAML via
// viper, strictly rejecting unrecognized keys so a typoed option fails at
// startup instead of being silently ignored.
package config

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"plotterd/pkg/gcode"
	"plotterd/pkg/perrors"
)

// MachineConfig holds the machine canvas extents in millimetres.
type MachineConfig struct {
	XDimension float64 `mapstructure:"xDimension"`
	YDimension float64 `mapstructure:"yDimension"`
}

// TransportConfig holds the serial-link settings.
type TransportConfig struct {
	SerialPath       string `mapstructure:"serialPath"`
	BaudRate         int    `mapstructure:"baudRate"`
	CommandTimeoutMs int    `mapstructure:"commandTimeout"`
	DevMode          bool   `mapstructure:"devMode"`
}

// JobManagerConfig holds the progress-event throttle.
type JobManagerConfig struct {
	ProgressUpdateIntervalMs int `mapstructure:"progressUpdateIntervalMs"`
}

// BusConfig holds the websocket heartbeat interval.
type BusConfig struct {
	HeartbeatIntervalMs int `mapstructure:"heartbeatIntervalMs"`
}

// Config is every recognized top-level configuration section.
type Config struct {
	Machine    MachineConfig       `mapstructure:"machine"`
	Transport  TransportConfig     `mapstructure:"transport"`
	Compiler   gcode.CanvasOptions `mapstructure:"compiler"`
	JobManager JobManagerConfig    `mapstructure:"jobManager"`
	Bus        BusConfig           `mapstructure:"bus"`
}

// Default returns the configuration a bare daemon falls back to absent a
// config file.
func Default() Config {
	return Config{
		Machine:    MachineConfig{XDimension: 300, YDimension: 300},
		Transport:  TransportConfig{BaudRate: 115200, CommandTimeoutMs: 5000},
		Compiler:   gcode.DefaultCanvasOptions(),
		JobManager: JobManagerConfig{ProgressUpdateIntervalMs: 500},
		Bus:        BusConfig{HeartbeatIntervalMs: 30000},
	}
}

// Load reads path via viper and strictly decodes it into Config, returning
// a ParseError naming every unrecognized key rather than silently ignoring
// or accepting them.
func Load(path string) (Config, error) {
	cfg := Default()

	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	if err := vp.ReadInConfig(); err != nil {
		return cfg, perrors.Wrap(perrors.IOError, err, "failed to read config file "+path)
	}

	var unrecognized []string
	decodeHook := func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	}
	if err := vp.Unmarshal(&cfg, decodeHook); err != nil {
		unrecognized = extractUnusedKeys(err)
		if len(unrecognized) > 0 {
			return cfg, perrors.Newf(perrors.ParseError, "unrecognized config keys: %s", strings.Join(unrecognized, ", "))
		}
		return cfg, perrors.Wrap(perrors.ParseError, err, "failed to decode config")
	}

	return cfg, nil
}

// extractUnusedKeys pulls the offending key names out of a mapstructure
// ErrorUnused decode failure, since viper returns it as an opaque
// multi-error string rather than a structured list.
func extractUnusedKeys(err error) []string {
	var keys []string
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		const marker = "has invalid keys: "
		if idx := strings.Index(line, marker); idx >= 0 {
			rest := line[idx+len(marker):]
			for _, k := range strings.Split(rest, ",") {
				if k = strings.TrimSpace(k); k != "" {
					keys = append(keys, k)
				}
			}
		}
	}
	return keys
}
