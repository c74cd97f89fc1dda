package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel        = "info"
	DefaultRefreshInterval = 3 * time.Second
	DefaultPIRPin          = 23
	DefaultPIRPoll         = 200 * time.Millisecond
	DefaultStabilization   = 5 * time.Second
	DefaultSensitivity     = 30
	DefaultCameraPoll      = 500 * time.Millisecond
	DefaultDisplayTimeout  = 60 * time.Second
	DefaultCommandTimeout  = 5 * time.Second
	DefaultFanOn           = 50.0
	DefaultFanOff          = 40.0
	DefaultLogWindow       = 30 * time.Second
	DefaultMinLogDuration  = 5 * time.Second
	DefaultExpansionAddr   = 0x21
	DefaultMetricsDBPath   = "/var/lib/pimonitor/metrics.db"

	configName    = "pimonitor"
	configDir     = "/etc"
	configEnvVar  = "PIMONITOR_CONFIG"
	defaultPrefix = "PIMONITOR"
)

type Config struct {
	RefreshInterval time.Duration   `mapstructure:"refresh_interval"`
	LogLevel        string          `mapstructure:"log_level"`
	Syslog          bool            `mapstructure:"syslog"`
	PIR             PIRConfig       `mapstructure:"pir"`
	Camera          CameraConfig    `mapstructure:"camera"`
	Display         DisplayConfig   `mapstructure:"display"`
	Fan             FanConfig       `mapstructure:"fan"`
	Motion          MotionConfig    `mapstructure:"motion"`
	Expansion       ExpansionConfig `mapstructure:"expansion"`
	Metrics         MetricsConfig   `mapstructure:"metrics"`
	Exporter        ExporterConfig  `mapstructure:"exporter"`
	Telemetry       TelemetryConfig `mapstructure:"telemetry"`
}

type PIRConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Pin           int           `mapstructure:"pin"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	Stabilization time.Duration `mapstructure:"stabilization"`
}

type CameraConfig struct {
	Sensitivity  int           `mapstructure:"sensitivity"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Command      string        `mapstructure:"command"`
	CaptureDir   string        `mapstructure:"capture_dir"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type DisplayConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Methods  []string      `mapstructure:"methods"`
	Output   string        `mapstructure:"output"`
	XDisplay string        `mapstructure:"x_display"`
	AssumeOn bool          `mapstructure:"assume_on"`
	// CommandTimeout bounds each display power command.
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

type FanConfig struct {
	OnThreshold  float64 `mapstructure:"on_threshold"`
	OffThreshold float64 `mapstructure:"off_threshold"`
}

type MotionConfig struct {
	LogWindow      time.Duration `mapstructure:"log_window"`
	MinLogDuration time.Duration `mapstructure:"min_log_duration"`
}

type ExpansionConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Bus     int  `mapstructure:"bus"`
	Address int  `mapstructure:"address"`
}

type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DBPath       string `mapstructure:"db_path"`
	BatchSize    int    `mapstructure:"batch_size"`
	BatchTimeout int    `mapstructure:"batch_timeout"`
}

type ExporterConfig struct {
	Listen string `mapstructure:"listen"`
}

type TelemetryConfig struct {
	DiskPath     string        `mapstructure:"disk_path"`
	ActivityHold time.Duration `mapstructure:"activity_hold"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("refresh_interval", DefaultRefreshInterval)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("syslog", false)

	v.SetDefault("pir.enabled", true)
	v.SetDefault("pir.pin", DefaultPIRPin)
	v.SetDefault("pir.poll_interval", DefaultPIRPoll)
	v.SetDefault("pir.stabilization", DefaultStabilization)

	v.SetDefault("camera.sensitivity", DefaultSensitivity)
	v.SetDefault("camera.poll_interval", DefaultCameraPoll)
	v.SetDefault("camera.command", "rpicam-still")
	v.SetDefault("camera.capture_dir", "/tmp/motion_frames")
	v.SetDefault("camera.timeout", 5*time.Second)

	v.SetDefault("display.timeout", DefaultDisplayTimeout)
	v.SetDefault("display.methods", []string{"xset", "xrandr", "vcgencmd", "tvservice"})
	v.SetDefault("display.output", "DSI-1")
	v.SetDefault("display.x_display", ":0")
	v.SetDefault("display.assume_on", true)
	v.SetDefault("display.command_timeout", DefaultCommandTimeout)

	v.SetDefault("fan.on_threshold", DefaultFanOn)
	v.SetDefault("fan.off_threshold", DefaultFanOff)

	v.SetDefault("motion.log_window", DefaultLogWindow)
	v.SetDefault("motion.min_log_duration", DefaultMinLogDuration)

	v.SetDefault("expansion.enabled", true)
	v.SetDefault("expansion.bus", 1)
	v.SetDefault("expansion.address", DefaultExpansionAddr)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.db_path", DefaultMetricsDBPath)
	v.SetDefault("metrics.batch_size", 10)
	v.SetDefault("metrics.batch_timeout", 30)

	v.SetDefault("exporter.listen", "")

	v.SetDefault("telemetry.disk_path", "/")
	v.SetDefault("telemetry.activity_hold", 2*time.Second)
}

// flag name -> config key
var flagKeys = map[string]string{
	"log-level":          "log_level",
	"syslog":             "syslog",
	"refresh-interval":   "refresh_interval",
	"pir":                "pir.enabled",
	"pir-pin":            "pir.pin",
	"camera-sensitivity": "camera.sensitivity",
	"display-timeout":    "display.timeout",
	"fan-on":             "fan.on_threshold",
	"fan-off":            "fan.off_threshold",
	"metrics":            "metrics.enabled",
	"metrics-db":         "metrics.db_path",
	"listen":             "exporter.listen",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)

	fs.String("config", "", "Path to configuration file")
	fs.Bool("debug", false, "Enable debug logging")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("syslog", false, "Also log to syslog")
	fs.Duration("refresh-interval", DefaultRefreshInterval, "Interval between metric refreshes")
	fs.Bool("pir", true, "Use the PIR sensor when available")
	fs.Int("pir-pin", DefaultPIRPin, "BCM GPIO pin of the PIR sensor")
	fs.Int("camera-sensitivity", DefaultSensitivity, "Camera motion threshold in tenths of a percent")
	fs.Duration("display-timeout", DefaultDisplayTimeout, "Turn the display off after this long without motion")
	fs.Float64("fan-on", DefaultFanOn, "Temperature at which the fan turns on")
	fs.Float64("fan-off", DefaultFanOff, "Temperature below which the fan turns off")
	fs.Bool("metrics", false, "Record history to SQLite")
	fs.String("metrics-db", DefaultMetricsDBPath, "Path to the metrics database")
	fs.String("listen", "", "Address for the Prometheus metrics endpoint")

	return fs
}

// Load reads configuration from defaults, the config file, environment and args.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}
	if debug, _ := fs.GetBool("debug"); debug {
		v.Set("log_level", "debug")
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := o.configPath
	if path, _ := fs.GetString("config"); path != "" {
		configPath = path
	}
	if configPath == "" {
		configPath = os.Getenv(configEnvVar)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the control loop cannot run with.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	intervals := map[string]time.Duration{
		"refresh_interval":        c.RefreshInterval,
		"pir.poll_interval":       c.PIR.PollInterval,
		"camera.poll_interval":    c.Camera.PollInterval,
		"camera.timeout":          c.Camera.Timeout,
		"display.timeout":         c.Display.Timeout,
		"display.command_timeout": c.Display.CommandTimeout,
	}
	for key, d := range intervals {
		if d <= 0 {
			return errFactory.WithData(errors.ErrInvalidInterval, key+" must be positive")
		}
	}

	windows := map[string]time.Duration{
		"pir.stabilization":       c.PIR.Stabilization,
		"motion.log_window":       c.Motion.LogWindow,
		"motion.min_log_duration": c.Motion.MinLogDuration,
		"telemetry.activity_hold": c.Telemetry.ActivityHold,
	}
	for key, d := range windows {
		if d < 0 {
			return errFactory.WithData(errors.ErrInvalidInterval, key+" must not be negative")
		}
	}

	if c.Fan.OnThreshold <= c.Fan.OffThreshold {
		return errFactory.WithData(errors.ErrInvalidThreshold, "fan.on_threshold must be above fan.off_threshold")
	}

	if c.Camera.Sensitivity < 0 {
		return errFactory.WithData(errors.ErrInvalidThreshold, "camera.sensitivity must not be negative")
	}

	if c.PIR.Enabled && c.PIR.Pin < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "pir.pin must not be negative")
	}

	if len(c.Display.Methods) == 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "display.methods must not be empty")
	}

	// 7-bit I2C addresses outside the reserved ranges
	if c.Expansion.Enabled && (c.Expansion.Address < 0x03 || c.Expansion.Address > 0x77) {
		return errFactory.WithData(errors.ErrInvalidConfig, "expansion.address out of range")
	}

	if c.Metrics.Enabled && c.Metrics.DBPath == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "metrics.db_path must be set when metrics are enabled")
	}

	return nil
}

// MotionPollInterval is the fast cadence for the selected motion sensor.
func (c *Config) MotionPollInterval(pir bool) time.Duration {
	if pir {
		return c.PIR.PollInterval
	}

	return c.Camera.PollInterval
}
