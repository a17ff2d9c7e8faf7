package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" envDefault:"clover-api"`
	Port                          int      `env:"PORT" envDefault:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" envDefault:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" envDefault:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" envDefault:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" envDefault:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" envDefault:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" envDefault:"64000"` // 64KB
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" envDefault:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" envDefault:"GET,POST,OPTIONS"`

	// Database driver
	DatabaseDriver string `env:"DB_DRIVER" envDefault:"postgres"`
	// Database host
	DatabaseHost string `env:"DB_HOST" envDefault:""`
	// Database port
	DatabasePort string `env:"DB_PORT" envDefault:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" envDefault:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" envDefault:""`
	// Database name
	DatabaseName string `env:"DB_NAME" envDefault:"clover"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SSL_MODE" envDefault:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"10s"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" envDefault:"db/pg"`
	// Database Migration Version
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" envDefault:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" envDefault:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" envDefault:"true"`

	// Redis host (empty disables Redis; the coordinator then relies on in-process locking only)
	RedisHost string `env:"REDIS_HOST" envDefault:""`
	// Redis port
	RedisPort int `env:"REDIS_PORT" envDefault:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" envDefault:"0"`

	// Kafka brokers (comma-separated, empty disables event emission)
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:""`
	// Kafka topic for funnel lifecycle events
	KafkaEventsTopic string `env:"KAFKA_EVENTS_TOPIC" envDefault:"clover-events"`

	// Telnyx API key for sending SMS and fetching inbound media
	TelnyxAPIKey string `env:"TELNYX_API_KEY" envDefault:""`
	// Telnyx sending number
	TelnyxFromNumber string `env:"TELNYX_FROM_NUMBER" envDefault:""`
	// Operator phone for verification notifications
	OperatorPhone string `env:"OPERATOR_PHONE" envDefault:""`

	// Admin key required on /admin routes
	AdminKey string `env:"ADMIN_KEY" envDefault:""`

	// Keyword a lead replies with to claim completion
	CompletionKeyword string `env:"COMPLETION_KEYWORD" envDefault:"DONE"`

	// Media signing secret for proof download URLs
	MediaSigningSecret string `env:"MEDIA_SIGNING_SECRET" envDefault:""`
	// Media URL time to live
	MediaURLTTL time.Duration `env:"MEDIA_URL_TTL" envDefault:"24h"`
	// Public base URL used when building signed media links
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`

	// Message templates. {{LINK}}, {{PHONE}}, {{HANDLE}} and {{URL}} are replaced at send time.
	TemplateIntro        string `env:"TEMPLATE_INTRO" envDefault:"Welcome! Here is your link: {{LINK}}"`
	TemplateAskProof     string `env:"TEMPLATE_ASK_PROOF" envDefault:"Great! Reply with a screenshot so we can confirm."`
	TemplateReminderDone string `env:"TEMPLATE_REMINDER_DONE" envDefault:"Once you have finished, reply DONE."`
	TemplateReminderMMS  string `env:"TEMPLATE_REMINDER_MMS" envDefault:"Please reply with an MMS screenshot of your confirmation."`
	TemplateVerified     string `env:"TEMPLATE_VERIFIED" envDefault:"Verified. Thanks!"`
	TemplateResend       string `env:"TEMPLATE_RESEND" envDefault:"We couldn't read your image - please resend."`
	TemplateAllSet       string `env:"TEMPLATE_ALL_SET" envDefault:"You're all set."`
	TemplateUnknown      string `env:"TEMPLATE_UNKNOWN" envDefault:"Hi! Please use the signup link first to get started."`
	TemplateOperator     string `env:"TEMPLATE_OPERATOR" envDefault:"NEW VERIFIED {{PHONE}} ({{HANDLE}}) via {{LINK}} proof: {{URL}}"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" envDefault:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" envDefault:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" envDefault:"true"`
}
