package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"dvsmart-go/internal/api"
	"dvsmart-go/internal/config"
	"dvsmart-go/internal/dvs"
	"dvsmart-go/internal/encryption"
	"dvsmart-go/internal/events"
	"dvsmart-go/internal/fs"
	"dvsmart-go/internal/metrics"
	"dvsmart-go/internal/store"
	"dvsmart-go/internal/store/migrations"
	"dvsmart-go/internal/vault"
)

// ErrNotReorganized is returned by Fetch for records that have no
// destination copy yet.
var ErrNotReorganized = errors.New("file has not been reorganized")

// DVSApp is the application layer between the CLI and the lifecycle engine.
// It constructs all dependencies from config, exposes high-level operations
// and releases the store, event and log resources on Close.
type DVSApp struct {
	cfg       *config.Config
	store     store.Store
	source    dvs.SourceFilesystem
	dest      dvs.Destination
	encryptor dvs.Encryptor
	metrics   *metrics.Prometheus
	events    events.Publisher
	engine    *dvs.Engine
	runner    *dvs.Runner
	clock     dvs.Clock
	logger    *slog.Logger
	logCloser io.Closer
}

// NewDVSApp creates a fully wired DVSApp from the given config. Log lines
// are written to stderr and to the rotated log file under cfg.LogDir.
// The caller must call Close when done.
func NewDVSApp(ctx context.Context, cfg *config.Config, stderr io.Writer) (*DVSApp, error) {
	runID := time.Now().UTC().Format("20060102T150405Z")
	logger, logCloser, err := newLogger(cfg.Log, cfg.LogDir, runID, stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &DVSApp{
		cfg:       cfg,
		source:    fs.NewOSFilesystem(cfg.Source.Ignore),
		metrics:   metrics.NewWithDefaults(),
		clock:     dvs.RealClock{},
		logger:    logger,
		logCloser: logCloser,
	}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *DVSApp) open(ctx context.Context) error {
	s, err := store.NewStoreFromConfig(ctx, a.cfg.Store)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	a.store = s

	if err := s.CheckMigrations(); err != nil {
		if errors.Is(err, migrations.ErrSchemaOutdated) {
			return fmt.Errorf("%w (run `dvsmart migrate`)", err)
		}
		return fmt.Errorf("checking store schema: %w", err)
	}

	a.dest, err = vault.NewDestinationFromConfig(ctx, a.cfg.Destination)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}

	a.encryptor, err = encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	a.events, err = events.NewPublisherFromConfig(a.cfg.Events)
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}

	opts := []dvs.Option{
		dvs.WithMetrics(a.metrics),
		dvs.WithEventPublisher(a.events),
		dvs.WithActor(a.cfg.Lifecycle.Actor),
		dvs.WithDestinationRoot(a.cfg.Destination.Root),
	}
	if a.encryptor != nil {
		opts = append(opts, dvs.WithEncryptor(a.encryptor))
	}
	if a.cfg.Lifecycle.BatchSize > 0 {
		opts = append(opts, dvs.WithBatchSize(a.cfg.Lifecycle.BatchSize))
	}

	a.engine = dvs.NewEngine(s, a.source, a.dest, &slogAdapter{l: a.logger}, a.clock, opts...)
	a.runner = dvs.NewRunner(a.engine, dvs.UUIDGenerator{}, a.cfg.ServiceName)
	return nil
}

// Migrate brings the store schema named by cfg to the latest version.
func Migrate(ctx context.Context, cfg *config.Config) error {
	s, err := store.NewStoreFromConfig(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	defer s.Close()

	if err := s.Migrate(); err != nil {
		return fmt.Errorf("migrating store: %w", err)
	}
	return nil
}

// Logger returns the application logger.
func (a *DVSApp) Logger() *slog.Logger {
	return a.logger
}

// RunOptions returns the lifecycle settings from config for a job over root.
// An empty root selects the configured source root.
func (a *DVSApp) RunOptions(root string) dvs.RunOptions {
	if root == "" {
		root = a.cfg.Source.Root
	}
	return dvs.RunOptions{
		Root:        root,
		Workers:     a.cfg.Lifecycle.Workers,
		MaxAttempts: a.cfg.Lifecycle.MaxAttempts,
		StaleAfter:  a.cfg.Lifecycle.StaleAfter,
		Cleanup:     a.cfg.Lifecycle.Cleanup,
	}
}

// Run executes op inside a new audited job execution and returns the
// finalized record. The record is returned even when the job failed.
func (a *DVSApp) Run(ctx context.Context, op Operation, opts dvs.RunOptions) (*dvs.JobExecutionRecord, error) {
	if op.Includes(dvs.PhaseDiscover) {
		if opts.Root == "" {
			return nil, fmt.Errorf("no source root given and source.root not configured")
		}
		abs, err := filepath.Abs(opts.Root)
		if err != nil {
			return nil, fmt.Errorf("resolving source root: %w", err)
		}
		opts.Root = abs
	}

	if op.Includes(dvs.PhaseReorganize) {
		if err := a.dest.ValidateSetup(ctx); err != nil {
			return nil, fmt.Errorf("destination not ready: %w", err)
		}
		if a.encryptor != nil && !a.encryptor.IsConfigured() {
			return nil, fmt.Errorf("encryption keys not found, run `dvsmart keys init`")
		}
	}

	a.logger.Info("job starting", "job_name", op.JobName, "root", opts.Root)
	job, err := a.runner.Run(ctx, op.JobName, opts, op.Phases...)
	if job != nil {
		a.logger.Info("job finished",
			"audit_id", job.AuditID,
			"job_execution_id", job.JobExecutionID,
			"status", job.Status,
			"duration", job.DurationHuman,
		)
	}
	return job, err
}

// Jobs returns the most recent job executions, newest first.
func (a *DVSApp) Jobs(ctx context.Context, limit int) ([]*dvs.JobExecutionRecord, error) {
	return a.store.ListJobExecutions(ctx, limit)
}

// Job returns the job execution with the given audit ID, or nil.
func (a *DVSApp) Job(ctx context.Context, auditID string) (*dvs.JobExecutionRecord, error) {
	return a.store.GetJobExecution(ctx, auditID)
}

// File returns the file record with the given ID, or nil.
func (a *DVSApp) File(ctx context.Context, id string) (*dvs.FileRecord, error) {
	return a.store.GetFile(ctx, id)
}

// Stats returns the number of file records per reorg status.
func (a *DVSApp) Stats(ctx context.Context) (map[dvs.ReorgStatus]int64, error) {
	counts, err := a.store.CountFilesByReorgStatus(ctx)
	if err != nil {
		return nil, err
	}
	a.metrics.SetFileCounts(counts)
	return counts, nil
}

// EncryptionEnabled reports whether reorganized files are encrypted.
func (a *DVSApp) EncryptionEnabled() bool {
	return a.encryptor != nil
}

// InitKeys generates the encryption key pair, protecting the private key
// with passphrase.
func (a *DVSApp) InitKeys(passphrase string) error {
	if a.encryptor == nil {
		return fmt.Errorf("encryption is disabled in config")
	}
	return a.encryptor.Setup(passphrase)
}

// Fetch copies the reorganized copy of the file record id to w. Encrypted
// copies are decrypted when decrypt is set, using passphrase to unlock the
// private key; otherwise the ciphertext is copied as stored.
func (a *DVSApp) Fetch(ctx context.Context, id string, w io.Writer, decrypt bool, passphrase string) error {
	rec, err := a.store.GetFile(ctx, id)
	if err != nil {
		return fmt.Errorf("getting file record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("file record %s: %w", id, dvs.ErrNotFound)
	}
	if rec.ReorgStatus != dvs.ReorgSuccess || rec.DestinationPath == "" {
		return fmt.Errorf("file record %s is %s: %w", id, rec.ReorgStatus, ErrNotReorganized)
	}

	r, err := a.dest.Open(ctx, rec.DestinationPath)
	if err != nil {
		return fmt.Errorf("opening destination copy: %w", err)
	}
	defer r.Close()

	encrypted := a.encryptor != nil && strings.HasSuffix(rec.DestinationPath, a.encryptor.Suffix())
	if !decrypt || !encrypted {
		if _, err := io.Copy(w, r); err != nil {
			return fmt.Errorf("copying %s: %w", rec.DestinationPath, err)
		}
		return nil
	}

	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}
	return dc.Decrypt(r, w)
}

// APIServer builds the status HTTP API over the app's store and metrics.
func (a *DVSApp) APIServer() *api.Server {
	return api.NewServer(a.store, a.metrics, &slogAdapter{l: a.logger}, a.clock, a.cfg.ServiceName)
}

// Serve runs the status HTTP API, the job scheduler and the recovery sweep
// until ctx is cancelled, then shuts the HTTP server down gracefully.
// A running scheduled job is stopped through ctx and finalized as STOPPED.
func (a *DVSApp) Serve(ctx context.Context) error {
	sc := a.cfg.Server
	srv := a.APIServer().NewHTTPServer(sc.Addr, sc.ReadTimeout, sc.WriteTimeout)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening", "addr", sc.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sc.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	if sc.ScheduleInterval > 0 {
		g.Go(func() error {
			a.schedule(gctx, sc.ScheduleInterval)
			return nil
		})
	}

	if stale := a.cfg.Lifecycle.StaleAfter; stale > 0 {
		g.Go(func() error {
			a.sweep(gctx, stale)
			return nil
		})
	}

	return g.Wait()
}

// schedule runs the full lifecycle every interval. Runs never overlap.
func (a *DVSApp) schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := a.Run(ctx, NewOperation("scheduled"), a.RunOptions(""))
			if err != nil && ctx.Err() == nil {
				a.logger.Error("scheduled job failed", "error", err)
			}
			if job != nil {
				if _, err := a.Stats(context.WithoutCancel(ctx)); err != nil {
					a.logger.Warn("refreshing file counts failed", "error", err)
				}
			}
		}
	}
}

// sweep returns stale PROCESSING claims to PENDING every staleAfter/2.
func (a *DVSApp) sweep(ctx context.Context, staleAfter time.Duration) {
	ticker := time.NewTicker(max(staleAfter/2, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.engine.Recover(ctx, staleAfter, 0)
			if err != nil {
				if ctx.Err() == nil {
					a.logger.Error("recovery sweep failed", "error", err)
				}
				continue
			}
			if n > 0 {
				a.logger.Info("recovery sweep reclaimed stale files", "count", n)
			}
		}
	}
}

// Close releases the event publisher, store and log file.
func (a *DVSApp) Close() error {
	var errs []error
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing event publisher: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return errors.Join(errs...)
}
