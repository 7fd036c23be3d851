package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"clip-drop/internal/abuse"
	"clip-drop/internal/config"
	"clip-drop/internal/logging"
	"clip-drop/internal/metrics"
	"clip-drop/internal/notify"
	"clip-drop/internal/pipeline"
	"clip-drop/internal/server"
	"clip-drop/internal/storage"
	"clip-drop/internal/submission"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("config_invalid", logging.Fields{"service": "backend"}, err)
		os.Exit(1)
	}

	format := "text"
	if cfg.JSONLogs() {
		format = "json"
	}
	logging.Configure(logging.Options{Format: format, Level: cfg.LogLevel})

	for _, w := range cfg.Warnings() {
		logging.Warn("config_warning", logging.Fields{"warning": w})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("server_error", logging.Fields{"service": "backend"}, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	backend, err := buildStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if c, ok := backend.(interface{ Close() error }); ok {
		defer func() { _ = c.Close() }()
	}

	m := metrics.New(cfg.Version)

	uploader := storage.WithBreaker(backend, 5, 30*time.Second)
	manual, _ := backend.(*storage.Manual)
	if manual != nil {
		m.GaugeFunc("pending_transfers", "Deferred transfers waiting for a link.", func() float64 {
			return float64(manual.Pending())
		})
	}

	mailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		User:     cfg.Email.User,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
		Enabled:  cfg.Email.Enabled,
	})
	notifier := notify.New(mailer, cfg.Email.Operators)

	deps := pipeline.Deps{
		Validator: submission.NewValidator(cfg.MaxUploadBytes),
		Verifier:  buildVerifier(cfg),
		Uploader:  uploader,
		Notifier:  notifier,
		Metrics:   m,
	}
	srvDeps := server.Deps{Storage: uploader, Metrics: m}
	if manual != nil {
		deps.Links = manual
		srvDeps.Pending = manual
	}

	coord, err := pipeline.New(deps)
	if err != nil {
		return err
	}
	srvDeps.Pipeline = coord

	srv, err := server.New(server.Config{
		Addr:           cfg.Addr,
		Version:        cfg.Version,
		RequestTimeout: cfg.RequestTimeout,
		TempDir:        cfg.TempDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		AllowedOrigins: cfg.CORSOrigins,
	}, srvDeps)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info("starting", logging.Fields{
			"addr":    cfg.Addr,
			"version": cfg.Version,
			"backend": backend.Name(),
		})
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("shutting_down", logging.Fields{})

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		if werr := notifier.Wait(sctx); werr != nil {
			logging.Warn("pending_notifications_dropped", logging.Fields{"error": werr.Error()})
		}
		logging.Info("shutdown_complete", logging.Fields{})
		return err
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildStorage opens the configured backend. Cloud clients are created here
// but not pinged; /health reports reachability.
func buildStorage(ctx context.Context, cfg config.Config) (storage.Uploader, error) {
	switch cfg.StorageBackend {
	case storage.BackendMinio:
		return storage.NewMinio(storage.MinioConfig{
			Endpoint:      cfg.S3.Endpoint,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			Bucket:        cfg.S3.Bucket,
			PublicBaseURL: cfg.S3.PublicBaseURL,
			LinkExpiry:    cfg.S3.LinkExpiry,
		})
	case storage.BackendGCS:
		var opts []option.ClientOption
		if cfg.GCS.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GCS.CredentialsFile))
		}
		return storage.NewGCS(ctx, storage.GCSConfig{
			Bucket:        cfg.GCS.Bucket,
			PublicBaseURL: cfg.GCS.PublicBaseURL,
			LinkExpiry:    cfg.GCS.LinkExpiry,
		}, opts...)
	case storage.BackendDrive:
		return storage.NewDrive(ctx, storage.DriveConfig{FolderID: cfg.Drive.FolderID},
			option.WithCredentialsFile(cfg.Drive.CredentialsFile),
			option.WithScopes(drive.DriveScope),
		)
	case storage.BackendEmail:
		return &storage.EmailAttach{MaxBytes: cfg.MaxUploadBytes}, nil
	case storage.BackendManual:
		return storage.NewManual(storage.ManualConfig{
			TransferURL:  cfg.Manual.TransferURL,
			AllowedHosts: cfg.Manual.LinkHosts,
			PendingTTL:   cfg.Manual.PendingTTL,
			MaxPending:   cfg.Manual.MaxPending,
		}), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func buildVerifier(cfg config.Config) abuse.Verifier {
	if cfg.Recaptcha.Disabled {
		return abuse.Disabled{}
	}
	return abuse.NewRecaptcha(abuse.Config{
		Secret:    cfg.Recaptcha.Secret,
		VerifyURL: cfg.Recaptcha.VerifyURL,
		Policy:    cfg.Recaptcha.Policy,
		MinScore:  cfg.Recaptcha.MinScore,
	})
}
