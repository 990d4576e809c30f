package config

import "github.com/kelseyhightower/envconfig"

type Config struct {
	// ----------------------------
	// SMTP
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`

	SenderEmail string `envconfig:"SENDER_EMAIL" required:"true"`
	SenderName  string `envconfig:"SENDER_NAME" default:"Exam Portal"`

	// ----------------------------
	// Sending
	// ----------------------------
	DelaySeconds       float64 `envconfig:"DELAY_BETWEEN_EMAILS" default:"1"`
	CheckpointInterval int     `envconfig:"CHECKPOINT_INTERVAL" default:"10"`
	RetryAttempts      int     `envconfig:"RETRY_ATTEMPTS" default:"3"`
	SendRate           int     `envconfig:"SEND_RATE" default:"10"`

	// ----------------------------
	// Link generation API
	// ----------------------------
	APIEndpoint    string `envconfig:"API_ENDPOINT" default:""`
	APIKey         string `envconfig:"API_KEY" default:""`
	APITimeoutSecs int    `envconfig:"API_TIMEOUT" default:"30"`
	ProgramID      int    `envconfig:"PROGRAM_ID" default:"1"`
	RoundID        int    `envconfig:"ROUND_ID" default:"1"`
	SessionTime    string `envconfig:"SESSION_TIME" default:"730h"`

	// ----------------------------
	// Storage roots
	// ----------------------------
	CheckpointDir string `envconfig:"CHECKPOINT_DIR" default:"checkpoints"`
	ReportDir     string `envconfig:"REPORT_DIR" default:"reports"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:""`

	// ----------------------------
	// Optional archives
	// ----------------------------
	DatabaseURL      string `envconfig:"DATABASE_URL" default:""`
	ArchiveBucket    string `envconfig:"ARCHIVE_BUCKET" default:""`
	ArchiveAccessKey string `envconfig:"ARCHIVE_ACCESS_KEY" default:""`
	ArchiveSecretKey string `envconfig:"ARCHIVE_SECRET_KEY" default:""`
	ArchiveRegion    string `envconfig:"ARCHIVE_REGION" default:"us-east-1"`
	ArchiveEndpoint  string `envconfig:"ARCHIVE_ENDPOINT" default:""`
	ArchivePathStyle bool   `envconfig:"ARCHIVE_PATH_STYLE" default:"false"`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
