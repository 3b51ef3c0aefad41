package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	MQTT             MQTTConfig      `mapstructure:"mqtt" yaml:"mqtt"`
	Listen           ListenConfig    `mapstructure:"listen" yaml:"listen"`
	Channels         []string        `mapstructure:"channels" yaml:"channels"`
	Reconnect        ReconnectConfig `mapstructure:"reconnect" yaml:"reconnect"`
	Session          SessionConfig   `mapstructure:"session" yaml:"session"`
	Accept           AcceptConfig    `mapstructure:"accept" yaml:"accept"`
	Shutdown         ShutdownConfig  `mapstructure:"shutdown" yaml:"shutdown"`
	DatabaseURL      string          `mapstructure:"database_url" yaml:"database_url"`
	DatabaseMaxConns int             `mapstructure:"database_max_conns" yaml:"database_max_conns"`
	Log              LogConfig       `mapstructure:"log" yaml:"log"`

	// PrintConfig is a command-line switch, not a setting.
	PrintConfig bool `mapstructure:"-" yaml:"-"`
}

type MQTTConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	QoS      int    `mapstructure:"qos" yaml:"qos"`
}

type ListenConfig struct {
	Host              string `mapstructure:"host" yaml:"host"`
	Port              int    `mapstructure:"port" yaml:"port"`
	TrustProxyHeaders bool   `mapstructure:"trust_proxy_headers" yaml:"trust_proxy_headers"`
}

func (listen ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", listen.Host, listen.Port)
}

type ReconnectConfig struct {
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	Jitter         float64       `mapstructure:"jitter" yaml:"jitter"`
}

type SessionConfig struct {
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
}

type AcceptConfig struct {
	RateLimit            int           `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateWindow           time.Duration `mapstructure:"rate_window" yaml:"rate_window"`
	MaxSessionsPerRemote int           `mapstructure:"max_sessions_per_remote" yaml:"max_sessions_per_remote"`
}

type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type LogConfig struct {
	Debug      bool   `mapstructure:"debug" yaml:"debug"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// Load resolves the bridge configuration. Precedence: command-line flags,
// then ARTISAN_* environment variables (including a .env file in the working
// directory), then the config file, then defaults.
func Load(args []string) (*Config, error) {
	flags := NewFlagSet("bridge")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	configFile, _ := flags.GetString(FlagConfig)
	if err := readConfigFile(v, configFile); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	cfg.PrintConfig, _ = flags.GetBool(FlagPrintConfig)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewFlagSet declares the bridge's command-line flags. Short forms match the
// Artisan bridge script: -H host, -u user, -p password.
func NewFlagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.String(FlagConfig, "", "path to a YAML config file")
	flags.Bool(FlagPrintConfig, false, "print the resolved configuration and exit")
	flags.StringP(FlagHost, "H", DefaultMQTTHost, "MQTT broker hostname")
	flags.Int(FlagPort, DefaultMQTTPort, "MQTT broker port")
	flags.String(FlagTopic, DefaultMQTTTopic, "MQTT topic carrying telemetry")
	flags.StringP(FlagUser, "u", DefaultMQTTUser, "MQTT username")
	flags.StringP(FlagPassword, "p", DefaultMQTTPassword, "MQTT password")
	flags.String(FlagClientID, "", "MQTT client id (generated when empty)")
	flags.Int(FlagQoS, 0, "MQTT subscription QoS (0-2)")
	flags.String(FlagListenHost, DefaultListenHost, "WebSocket listen host")
	flags.Int(FlagListenPort, DefaultListenPort, "WebSocket listen port")
	flags.StringSlice(FlagChannels, DefaultChannels, "telemetry channels to store and serve")
	flags.String(FlagDatabaseURL, "", "Postgres URL for the ops event log (disabled when empty)")
	flags.Bool(FlagDebug, false, "enable debug logging")
	flags.String(FlagLogFormat, DefaultLogFormat, "log encoding: console or json")
	flags.String(FlagLogFile, "", "also write logs to this file, rotated")
	return flags
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyMQTTHost, DefaultMQTTHost)
	v.SetDefault(KeyMQTTPort, DefaultMQTTPort)
	v.SetDefault(KeyMQTTTopic, DefaultMQTTTopic)
	v.SetDefault(KeyMQTTUser, DefaultMQTTUser)
	v.SetDefault(KeyMQTTPassword, DefaultMQTTPassword)
	v.SetDefault(KeyMQTTClientID, "")
	v.SetDefault(KeyMQTTQoS, 0)
	v.SetDefault(KeyListenHost, DefaultListenHost)
	v.SetDefault(KeyListenPort, DefaultListenPort)
	v.SetDefault(KeyListenTrustProxy, false)
	v.SetDefault(KeyChannels, DefaultChannels)
	v.SetDefault(KeyInitialBackoff, DefaultInitialBackoff)
	v.SetDefault(KeyMaxBackoff, DefaultMaxBackoff)
	v.SetDefault(KeyBackoffJitter, DefaultBackoffJitter)
	v.SetDefault(KeyWriteTimeout, DefaultWriteTimeout)
	v.SetDefault(KeyMaxMessageBytes, DefaultMaxMessageBytes)
	v.SetDefault(KeyAcceptRateLimit, DefaultAcceptRateLimit)
	v.SetDefault(KeyAcceptRateWindow, DefaultAcceptRateWindow)
	v.SetDefault(KeyAcceptMaxSessions, DefaultAcceptMaxSessions)
	v.SetDefault(KeyShutdownTimeout, DefaultShutdownTimeout)
	v.SetDefault(KeyDatabaseURL, "")
	v.SetDefault(KeyDatabaseMaxConns, DefaultDatabaseMaxConns)
	v.SetDefault(KeyLogDebug, false)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, DefaultLogMaxSizeMB)
	v.SetDefault(KeyLogMaxBackups, DefaultLogMaxBackups)
	v.SetDefault(KeyLogMaxAgeDays, DefaultLogMaxAgeDays)
}

// bindFlags lets a flag override a key only when it was set explicitly, so
// environment and file values still apply underneath.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		KeyMQTTHost:     FlagHost,
		KeyMQTTPort:     FlagPort,
		KeyMQTTTopic:    FlagTopic,
		KeyMQTTUser:     FlagUser,
		KeyMQTTPassword: FlagPassword,
		KeyMQTTClientID: FlagClientID,
		KeyMQTTQoS:      FlagQoS,
		KeyListenHost:   FlagListenHost,
		KeyListenPort:   FlagListenPort,
		KeyChannels:     FlagChannels,
		KeyDatabaseURL:  FlagDatabaseURL,
		KeyLogDebug:     FlagDebug,
		KeyLogFormat:    FlagLogFormat,
		KeyLogFile:      FlagLogFile,
	}

	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("artisanbridge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/artisanbridge")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

func (cfg *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(cfg.MQTT.Host) == "" {
		problems = append(problems, "mqtt.host is required")
	}
	if cfg.MQTT.Port < 1 || cfg.MQTT.Port > 65535 {
		problems = append(problems, "mqtt.port must be between 1 and 65535")
	}
	if strings.TrimSpace(cfg.MQTT.Topic) == "" {
		problems = append(problems, "mqtt.topic is required")
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		problems = append(problems, "mqtt.qos must be 0, 1 or 2")
	}
	if cfg.Listen.Port < 0 || cfg.Listen.Port > 65535 {
		problems = append(problems, "listen.port must be between 0 and 65535")
	}
	if len(cfg.Channels) == 0 {
		problems = append(problems, "at least one channel is required")
	}
	for _, channel := range cfg.Channels {
		if strings.TrimSpace(channel) == "" {
			problems = append(problems, "channel names must not be empty")
			break
		}
	}
	if cfg.Reconnect.InitialBackoff <= 0 {
		problems = append(problems, "reconnect.initial_backoff must be positive")
	}
	if cfg.Reconnect.MaxBackoff < cfg.Reconnect.InitialBackoff {
		problems = append(problems, "reconnect.max_backoff must not be below reconnect.initial_backoff")
	}
	if cfg.Reconnect.Jitter < 0 || cfg.Reconnect.Jitter > 1 {
		problems = append(problems, "reconnect.jitter must be between 0 and 1")
	}
	if cfg.Session.WriteTimeout <= 0 {
		problems = append(problems, "session.write_timeout must be positive")
	}
	if cfg.Session.MaxMessageBytes <= 0 {
		problems = append(problems, "session.max_message_bytes must be positive")
	}
	if cfg.Accept.RateLimit < 0 || cfg.Accept.MaxSessionsPerRemote < 0 {
		problems = append(problems, "accept limits must not be negative")
	}
	if cfg.Shutdown.Timeout <= 0 {
		problems = append(problems, "shutdown.timeout must be positive")
	}
	if cfg.Log.Format != "console" && cfg.Log.Format != "json" {
		problems = append(problems, "log.format must be console or json")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// YAML renders the configuration with the broker password redacted.
func (cfg Config) YAML() ([]byte, error) {
	if cfg.MQTT.Password != "" {
		cfg.MQTT.Password = "********"
	}
	if cfg.DatabaseURL != "" {
		cfg.DatabaseURL = redactURL(cfg.DatabaseURL)
	}
	return yaml.Marshal(cfg)
}

func redactURL(raw string) string {
	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		return "********"
	}
	credentials, host, found := strings.Cut(rest, "@")
	if !found {
		return raw
	}
	user, _, _ := strings.Cut(credentials, ":")
	return scheme + "://" + user + ":********@" + host
}
