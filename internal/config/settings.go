package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix scopes environment overrides, e.g. IIB_SIDECAR_LOG.
	EnvPrefix = "IIB"

	DefaultSidecarName     = "iib_api_server"
	DefaultSidecarLog      = "iib_api_server.log"
	DefaultBridgeListen    = "127.0.0.1:0"
	DefaultShutdownTimeout = 5 * time.Second
	DefaultStopGrace       = 5 * time.Second
)

// Setting keys. They double as CLI flag names.
const (
	KeyLaunchConfig      = "conf"
	KeySidecar           = "sidecar"
	KeySidecarLog        = "sidecar-log"
	KeySidecarLogMaxSize = "sidecar-log-max-size"
	KeyBridgeListen      = "bridge-listen"
	KeyShutdownTimeout   = "shutdown-timeout"
	KeyStopGrace         = "stop-grace"
	KeyHeadless          = "headless"
	KeyLogLevel          = "log-level"
	KeyLogToFile         = "log-to-file"
	KeyLogDir            = "log-dir"
)

// LogConfig represents the shell's own logging configuration
type LogConfig struct {
	Level         string `json:"level"`
	EnableFile    bool   `json:"enable_file"`
	EnableConsole bool   `json:"enable_console"`
	Filename      string `json:"filename"`
	LogDir        string `json:"log_dir,omitempty"`
	MaxSize       int    `json:"max_size"`    // MB
	MaxBackups    int    `json:"max_backups"` // number of backup files
	MaxAge        int    `json:"max_age"`     // days
	Compress      bool   `json:"compress"`
	JSONFormat    bool   `json:"json_format"`
}

// Settings is the shell configuration resolved from flags, environment and
// defaults. The sidecar log path and the launch config path are both
// configurable so that packaged and portable deployments can differ.
type Settings struct {
	LaunchConfigPath  string        `mapstructure:"conf" json:"conf" yaml:"conf"`
	Sidecar           string        `mapstructure:"sidecar" json:"sidecar" yaml:"sidecar"`
	SidecarLog        string        `mapstructure:"sidecar-log" json:"sidecar-log" yaml:"sidecar-log"`
	SidecarLogMaxSize int           `mapstructure:"sidecar-log-max-size" json:"sidecar-log-max-size" yaml:"sidecar-log-max-size"`
	BridgeListen      string        `mapstructure:"bridge-listen" json:"bridge-listen" yaml:"bridge-listen"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown-timeout" json:"shutdown-timeout" yaml:"shutdown-timeout"`
	StopGrace         time.Duration `mapstructure:"stop-grace" json:"stop-grace" yaml:"stop-grace"`
	Headless          bool          `mapstructure:"headless" json:"headless" yaml:"headless"`
	LogLevel          string        `mapstructure:"log-level" json:"log-level" yaml:"log-level"`
	LogToFile         bool          `mapstructure:"log-to-file" json:"log-to-file" yaml:"log-to-file"`
	LogDir            string        `mapstructure:"log-dir" json:"log-dir" yaml:"log-dir"`
}

// SetDefaults registers default values on v and enables IIB_* overrides.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AllowEmptyEnv(true) // IIB_SIDECAR_LOG= disables the sidecar log file
	v.AutomaticEnv()

	v.SetDefault(KeyLaunchConfig, LaunchConfigFileName)
	v.SetDefault(KeySidecar, DefaultSidecarName)
	v.SetDefault(KeySidecarLog, DefaultSidecarLog)
	v.SetDefault(KeySidecarLogMaxSize, 0)
	v.SetDefault(KeyBridgeListen, DefaultBridgeListen)
	v.SetDefault(KeyShutdownTimeout, DefaultShutdownTimeout)
	v.SetDefault(KeyStopGrace, DefaultStopGrace)
	v.SetDefault(KeyHeadless, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogToFile, true)
	v.SetDefault(KeyLogDir, "")
}

// LoadSettings resolves Settings from v. SetDefaults must have been called.
func LoadSettings(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	s.Sidecar = strings.TrimSpace(s.Sidecar)
	if s.Sidecar == "" {
		return nil, fmt.Errorf("invalid settings: %s must not be empty", KeySidecar)
	}
	if s.LaunchConfigPath == "" {
		s.LaunchConfigPath = LaunchConfigFileName
	}
	if s.SidecarLogMaxSize < 0 {
		return nil, fmt.Errorf("invalid settings: %s must not be negative", KeySidecarLogMaxSize)
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.StopGrace <= 0 {
		s.StopGrace = DefaultStopGrace
	}

	return &s, nil
}

// LogConfig derives the shell logger configuration.
func (s *Settings) LogConfig() *LogConfig {
	return &LogConfig{
		Level:         s.LogLevel,
		EnableFile:    s.LogToFile,
		EnableConsole: true,
		Filename:      "shell.log",
		LogDir:        s.LogDir,
		MaxSize:       10,
		MaxBackups:    5,
		MaxAge:        30,
		Compress:      true,
	}
}
