package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ExamMailer/internal/archive"
	"ExamMailer/internal/checkpoint"
	"ExamMailer/internal/config"
	"ExamMailer/internal/csvloader"
	"ExamMailer/internal/dispatch"
	"ExamMailer/internal/history"
	"ExamMailer/internal/metrics"
	"ExamMailer/internal/models"
	"ExamMailer/internal/portal"
	"ExamMailer/internal/report"
	"ExamMailer/internal/template"
	"ExamMailer/internal/transport"
)

func main() {

	// ------------------------------------------------
	// Flags
	// ------------------------------------------------
	var (
		csvPath      = flag.String("csv", "", "recipient CSV file (name + email columns required)")
		templatePath = flag.String("template", "", "HTML body template file (built-in template when empty)")
		subject      = flag.String("subject", template.DefaultSubject, "subject template")
		resume       = flag.Bool("resume", false, "resume the most recent interrupted run")
		skipLinks    = flag.Bool("skip-links", false, "skip login link generation even when API_ENDPOINT is set")

		eventType     = flag.String("event-type", "", "attach a calendar invite: google_meet or outlook")
		eventTitle    = flag.String("event-title", "", "invite title")
		eventDate     = flag.String("event-date", "", "invite date, e.g. 2026-02-25 or 25/02/2026")
		eventTime     = flag.String("event-time", "", "invite start time, e.g. 10:00 or 10:00 AM")
		eventDuration = flag.String("event-duration", "1h", "invite duration, e.g. 1h 30m or 90")
		eventLocation = flag.String("event-location", "", "invite location")
		eventLink     = flag.String("event-link", "", "meeting link")
		eventDesc     = flag.String("event-description", "", "invite description")
	)
	flag.Parse()

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config (.env then environment)
	// ------------------------------------------------
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	if *csvPath == "" {
		logger.Fatal("missing -csv flag")
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Transport (configuration errors are fatal before
	// any recipient is attempted)
	// ------------------------------------------------
	sender, err := transport.NewSMTPSender(transport.SMTPConfig{
		Host:          cfg.SMTPHost,
		Port:          cfg.SMTPPort,
		Username:      cfg.SMTPUser,
		Password:      cfg.SMTPPassword,
		RetryAttempts: cfg.RetryAttempts,
		SendRate:      cfg.SendRate,
	})
	if err != nil {
		logger.Fatal("invalid transport configuration", zap.Error(err))
	}
	if err := sender.Ping(); err != nil {
		logger.Fatal("smtp connection test failed", zap.Error(err))
	}
	logger.Info("smtp connection verified",
		zap.String("host", cfg.SMTPHost),
		zap.Int("port", cfg.SMTPPort),
	)

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	if cfg.MetricsPort != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
			if err := http.ListenAndServe(":"+cfg.MetricsPort, metricsMux); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	// ------------------------------------------------
	// Recipients
	// ------------------------------------------------
	recipients, warnings, err := csvloader.LoadFile(*csvPath)
	if err != nil {
		logger.Fatal("failed to load recipients", zap.String("path", *csvPath), zap.Error(err))
	}
	for _, w := range warnings {
		logger.Warn("recipient file warning", zap.String("warning", w))
	}
	logger.Info("recipients loaded", zap.Int("count", len(recipients)))

	// ------------------------------------------------
	// Login links
	// ------------------------------------------------
	if cfg.APIEndpoint != "" && !*skipLinks {
		recipients = generateLinks(ctx, cfg, recipients, logger)
	}
	for i := range recipients {
		if recipients[i].Fields == nil {
			recipients[i].Fields = map[string]string{}
		}
		recipients[i].Fields["session_duration"] = cfg.SessionTime
	}

	// ------------------------------------------------
	// Body template
	// ------------------------------------------------
	body := template.DefaultBody
	if *templatePath != "" {
		data, err := os.ReadFile(*templatePath)
		if err != nil {
			logger.Fatal("failed to read body template", zap.String("path", *templatePath), zap.Error(err))
		}
		body = string(data)
	}

	// ------------------------------------------------
	// Event spec
	// ------------------------------------------------
	var event *models.CalendarEventSpec
	if *eventType != "" {
		event = &models.CalendarEventSpec{
			Type:           models.EventType(*eventType),
			Title:          *eventTitle,
			Date:           *eventDate,
			StartTime:      *eventTime,
			Duration:       *eventDuration,
			OrganizerName:  cfg.SenderName,
			OrganizerEmail: cfg.SenderEmail,
			Location:       *eventLocation,
			MeetingLink:    *eventLink,
			Description:    *eventDesc,
		}
	}

	// ------------------------------------------------
	// Stores + dispatcher
	// ------------------------------------------------
	checkpoints, err := checkpoint.New(cfg.CheckpointDir, logger)
	if err != nil {
		logger.Fatal("failed to open checkpoint store", zap.Error(err))
	}
	reports, err := report.New(cfg.ReportDir, logger)
	if err != nil {
		logger.Fatal("failed to open report root", zap.Error(err))
	}

	dispatcher := dispatch.New(sender, checkpoints, reports, logger)

	sessionID := uuid.NewString()
	params := dispatch.Params{
		Recipients: recipients,
		SessionID:  sessionID,
		From: transport.Identity{
			Name:  cfg.SenderName,
			Email: cfg.SenderEmail,
		},
		SubjectTemplate:    *subject,
		BodyTemplate:       body,
		Delay:              time.Duration(cfg.DelaySeconds * float64(time.Second)),
		CheckpointInterval: cfg.CheckpointInterval,
		Event:              event,
		Resume:             *resume,
		OnProgress: func(index, total int, identity string, success bool, message string) {
			logger.Info("progress",
				zap.Int("index", index),
				zap.Int("total", total),
				zap.String("recipient", identity),
				zap.Bool("success", success),
				zap.String("message", message),
			)
		},
	}

	results, runErr := dispatcher.Run(ctx, params)

	sent, failed := models.SentFailedCounts(results)
	logger.Info("dispatch finished",
		zap.Int("total", len(results)),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
		zap.Int("not_sent", len(results)-sent-failed),
	)

	// ------------------------------------------------
	// Optional archives (best-effort)
	// ------------------------------------------------
	archiveResults(cfg, sessionID, results, logger)

	if runErr != nil {
		logger.Error("dispatch run did not complete", zap.Error(runErr))
		os.Exit(1)
	}
}

func generateLinks(
	ctx context.Context,
	cfg *config.Config,
	recipients []models.Recipient,
	logger *zap.Logger,
) []models.Recipient {
	client := portal.NewClient(cfg.APIEndpoint, cfg.APIKey, time.Duration(cfg.APITimeoutSecs)*time.Second)

	emails := make([]string, len(recipients))
	for i, r := range recipients {
		emails[i] = r.Email
	}

	resp, err := client.GenerateLinks(ctx, emails, cfg.ProgramID, cfg.RoundID, cfg.SessionTime)
	if err != nil {
		logger.Fatal("link generation failed", zap.Error(err))
	}

	enriched, failedCandidates := portal.MapLinks(recipients, resp)
	for _, f := range failedCandidates {
		logger.Warn("candidate skipped, no login link",
			zap.String("name", f.Name),
			zap.String("email", f.Email),
			zap.String("reason", f.Error),
		)
	}
	logger.Info("login links generated",
		zap.Int("with_links", len(enriched)),
		zap.Int("failed", len(failedCandidates)),
	)
	if len(enriched) == 0 {
		logger.Fatal("no candidates received login links, nothing to send")
	}
	return enriched
}

// archiveResults pushes the run's results to the optional Postgres and S3
// archives. Failures are logged and swallowed.
func archiveResults(cfg *config.Config, sessionID string, results []models.DispatchResult, logger *zap.Logger) {
	if cfg.DatabaseURL == "" && cfg.ArchiveBucket == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.DatabaseURL != "" {
		store, err := history.New(cfg.DatabaseURL)
		if err != nil {
			logger.Warn("history store unavailable", zap.Error(err))
		} else {
			defer store.Close()
			if err := store.RecordRun(ctx, sessionID, results); err != nil {
				logger.Warn("history archive failed", zap.Error(err))
			}
		}
	}

	if cfg.ArchiveBucket != "" {
		uploader, err := archive.New(archive.Config{
			Bucket:    cfg.ArchiveBucket,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Region:    cfg.ArchiveRegion,
			Endpoint:  cfg.ArchiveEndpoint,
			PathStyle: cfg.ArchivePathStyle,
			KeyPrefix: "reports",
		})
		if err != nil {
			logger.Warn("report archive unavailable", zap.Error(err))
			return
		}
		paths, _ := filepath.Glob(filepath.Join(cfg.ReportDir, "*"))
		for _, p := range paths {
			contentType := "text/csv"
			if filepath.Ext(p) == ".txt" {
				contentType = "text/plain"
			}
			if key, err := uploader.UploadFile(ctx, p, contentType); err != nil {
				logger.Warn("report upload failed", zap.String("path", p), zap.Error(err))
			} else {
				logger.Info("report archived", zap.String("key", key))
			}
		}
	}
}
