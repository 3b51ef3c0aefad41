package config

import "time"

// Configuration keys as they appear in the config file. Environment variables
// use the ARTISAN_ prefix with dots replaced by underscores, e.g. ARTISAN_MQTT_HOST.
const (
	EnvPrefix = "ARTISAN"

	KeyMQTTHost          = "mqtt.host"
	KeyMQTTPort          = "mqtt.port"
	KeyMQTTTopic         = "mqtt.topic"
	KeyMQTTUser          = "mqtt.user"
	KeyMQTTPassword      = "mqtt.password"
	KeyMQTTClientID      = "mqtt.client_id"
	KeyMQTTQoS           = "mqtt.qos"
	KeyListenHost        = "listen.host"
	KeyListenPort        = "listen.port"
	KeyListenTrustProxy  = "listen.trust_proxy_headers"
	KeyChannels          = "channels"
	KeyInitialBackoff    = "reconnect.initial_backoff"
	KeyMaxBackoff        = "reconnect.max_backoff"
	KeyBackoffJitter     = "reconnect.jitter"
	KeyWriteTimeout      = "session.write_timeout"
	KeyMaxMessageBytes   = "session.max_message_bytes"
	KeyAcceptRateLimit   = "accept.rate_limit"
	KeyAcceptRateWindow  = "accept.rate_window"
	KeyAcceptMaxSessions = "accept.max_sessions_per_remote"
	KeyShutdownTimeout   = "shutdown.timeout"
	KeyDatabaseURL       = "database_url"
	KeyDatabaseMaxConns  = "database_max_conns"
	KeyLogDebug          = "log.debug"
	KeyLogFormat         = "log.format"
	KeyLogFile           = "log.file"
	KeyLogMaxSizeMB      = "log.max_size_mb"
	KeyLogMaxBackups     = "log.max_backups"
	KeyLogMaxAgeDays     = "log.max_age_days"
)

const (
	DefaultMQTTHost          = "bombadil"
	DefaultMQTTPort          = 1883
	DefaultMQTTTopic         = "artisan"
	DefaultMQTTUser          = "artisan"
	DefaultMQTTPassword      = "cafe"
	DefaultListenHost        = "localhost"
	DefaultListenPort        = 8765
	DefaultInitialBackoff    = time.Second
	DefaultMaxBackoff        = 30 * time.Second
	DefaultBackoffJitter     = 0.2
	DefaultWriteTimeout      = 5 * time.Second
	DefaultMaxMessageBytes   = 64 << 10
	DefaultAcceptRateLimit   = 60
	DefaultAcceptRateWindow  = time.Minute
	DefaultAcceptMaxSessions = 16
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultDatabaseMaxConns  = 4
	DefaultLogFormat         = "console"
	DefaultLogMaxSizeMB      = 20
	DefaultLogMaxBackups     = 5
	DefaultLogMaxAgeDays     = 28
)

var DefaultChannels = []string{"ET", "BT"}

const (
	FlagConfig      = "config"
	FlagPrintConfig = "print-config"
	FlagHost        = "host"
	FlagPort        = "port"
	FlagTopic       = "topic"
	FlagUser        = "user"
	FlagPassword    = "password"
	FlagClientID    = "client-id"
	FlagQoS         = "qos"
	FlagListenHost  = "listen-host"
	FlagListenPort  = "listen-port"
	FlagChannels    = "channels"
	FlagDatabaseURL = "database-url"
	FlagDebug       = "debug"
	FlagLogFormat   = "log-format"
	FlagLogFile     = "log-file"
)
