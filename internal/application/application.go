package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"tenant-backup/internal/backup"
	"tenant-backup/internal/config"
	"tenant-backup/internal/database"
	"tenant-backup/internal/display"
	appErrors "tenant-backup/internal/errors"
	"tenant-backup/internal/logging"
	"tenant-backup/internal/schema"
)

// Options carries settings that do not belong in the configuration file
type Options struct {
	Display     *display.DisplayConfig
	Version     string
	MetricsFile string
}

// Application wires configuration, store, archive and engines together. The
// store and the archive are opened on first use so that commands which need
// neither never touch the database or the bucket.
type Application struct {
	config   *config.Config
	options  Options
	logger   *logging.Logger
	display  display.DisplayService
	metrics  *backup.Metrics
	registry *schema.Registry

	store   database.Store
	archive *backup.Archive

	openStore    func(ctx context.Context, cfg database.DatabaseConfig, tables []string) (database.Store, error)
	openProvider func(ctx context.Context, cfg backup.StorageConfig, logger *logging.Logger) (backup.StorageProvider, error)
}

// New creates an application from a loaded configuration
func New(cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	logConfig := cfg.Logger()
	if opts.Display != nil && opts.Display.Format().IsStructured() {
		// stdout carries the report
		logConfig.Output = os.Stderr
	}
	logger, err := logging.NewLogger(logConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if opts.Display == nil {
		opts.Display = display.DefaultDisplayConfig()
	}
	opts.Display.QuietMode = opts.Display.QuietMode || cfg.Logging.Level == string(logging.LogLevelQuiet)

	service := database.NewService(logger)
	return &Application{
		config:       cfg,
		options:      opts,
		logger:       logger,
		display:      display.NewDisplayService(opts.Display),
		metrics:      backup.NewMetrics(),
		registry:     schema.DefaultRegistry(),
		openStore:    service.Open,
		openProvider: backup.NewStorageProvider,
	}, nil
}

// Config returns the loaded configuration
func (app *Application) Config() *config.Config {
	return app.config
}

func (app *Application) Logger() *logging.Logger {
	return app.logger
}

func (app *Application) Display() display.DisplayService {
	return app.display
}

func (app *Application) Metrics() *backup.Metrics {
	return app.metrics
}

// Registry returns the table catalog
func (app *Application) Registry() *schema.Registry {
	return app.registry
}

// Version returns the build version
func (app *Application) Version() string {
	return app.options.Version
}

// Store opens the record store on first use
func (app *Application) Store(ctx context.Context) (database.Store, error) {
	if app.store != nil {
		return app.store, nil
	}
	var store database.Store
	err := app.spin("Connecting to the "+app.config.Database.Driver+" store", func() error {
		var err error
		store, err = app.openStore(ctx, app.config.Database, app.registry.Names())
		return err
	})
	if err != nil {
		return nil, err
	}
	app.store = store
	return store, nil
}

// Archive opens the artifact archive on first use
func (app *Application) Archive(ctx context.Context) (*backup.Archive, error) {
	if app.archive != nil {
		return app.archive, nil
	}
	archiveConfig := app.config.Archive()
	provider, err := app.openProvider(ctx, archiveConfig.Storage, app.logger)
	if err != nil {
		return nil, err
	}
	app.archive = backup.NewArchive(provider, archiveConfig, app.logger, app.metrics)
	return app.archive, nil
}

func (app *Application) engineOptions() []backup.Option {
	engine := app.config.Engine
	return []backup.Option{
		backup.WithMetrics(app.metrics),
		backup.WithSystemVersion(engine.SystemVersion),
		backup.WithRecordsPerSecond(engine.RecordsPerSecond),
		backup.WithTxTimeout(engine.TxTimeout),
	}
}

// Exporter builds an exporter; with archive set every artifact is also saved
func (app *Application) Exporter(ctx context.Context, archive bool) (*backup.Exporter, error) {
	store, err := app.Store(ctx)
	if err != nil {
		return nil, err
	}
	opts := app.engineOptions()
	if archive {
		a, err := app.Archive(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, backup.WithArchive(a))
	}
	return backup.NewExporter(store, app.registry, app.logger, opts...), nil
}

func (app *Application) Importer(ctx context.Context) (*backup.Importer, error) {
	store, err := app.Store(ctx)
	if err != nil {
		return nil, err
	}
	return backup.NewImporter(store, app.registry, app.logger, app.engineOptions()...), nil
}

func (app *Application) Resetter(ctx context.Context) (*backup.Resetter, error) {
	store, err := app.Store(ctx)
	if err != nil {
		return nil, err
	}
	return backup.NewResetter(store, app.registry, app.logger, app.engineOptions()...), nil
}

// Validator needs no store
func (app *Application) Validator() *backup.Validator {
	return backup.NewValidator(app.registry, app.logger, app.engineOptions()...)
}

// Source names where artifact bytes come from: a file path or an archived
// artifact ID
type Source struct {
	Path       string
	ArtifactID string
}

// ReadArtifact loads the bytes of src. Exactly one of Path and ArtifactID
// must be set; "-" reads standard input.
func (app *Application) ReadArtifact(ctx context.Context, src Source) ([]byte, error) {
	switch {
	case src.Path != "" && src.ArtifactID != "":
		return nil, backup.NewValidationError("give either a file or an artifact ID, not both", nil)
	case src.ArtifactID != "":
		handle := app.display.StartSpinner("Opening artifact storage")
		defer app.display.StopSpinner(handle, "")
		archive, err := app.Archive(ctx)
		if err != nil {
			return nil, err
		}
		app.display.UpdateSpinner(handle, "Loading artifact "+src.ArtifactID)
		data, _, err := archive.Load(ctx, src.ArtifactID)
		return data, err
	case src.Path == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact from stdin: %w", err)
		}
		return data, nil
	case src.Path != "":
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact: %w", err)
		}
		return data, nil
	default:
		return nil, backup.NewValidationError("an artifact file or ID is required", nil)
	}
}

// WriteArtifact writes an export to path. A directory, or a path ending in a
// separator, receives the artifact under its generated file name.
func (app *Application) WriteArtifact(result *backup.ExportResult, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if info, err := os.Stat(path); (err == nil && info.IsDir()) || os.IsPathSeparator(path[len(path)-1]) {
		path = filepath.Join(path, result.FileName)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, result.Data, 0600); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	app.logger.WithFields(map[string]interface{}{
		"path": path,
		"size": result.Size,
	}).Info("Artifact written")
	return path, nil
}

// Progress returns a progress callback drawing a bar, or nil when progress
// output is disabled
func (app *Application) Progress(label string) (backup.ProgressFunc, func()) {
	if !app.display.GetConfig().IsProgressEnabled() {
		return nil, func() {}
	}
	bar := app.display.NewProgressBar(100, label)
	return bar.Func(), func() { bar.Finish("") }
}

// spin runs fn behind a spinner
func (app *Application) spin(message string, fn func() error) error {
	handle := app.display.StartSpinner(message)
	err := fn()
	app.display.StopSpinner(handle, "")
	return err
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Close releases the store and writes the metrics textfile when requested
func (app *Application) Close() error {
	var errs []error
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
		app.store = nil
	}
	if app.options.MetricsFile != "" {
		if err := app.metrics.WriteTextfile(app.options.MetricsFile); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleError prints a user-facing message with troubleshooting hints and
// logs the details
func (app *Application) HandleError(err error) {
	if err == nil {
		return
	}

	var backupErr *backup.BackupError
	if errors.As(err, &backupErr) {
		app.display.Error(backupErr.Message)
		app.logger.WithFields(map[string]interface{}{
			"error_type": string(backupErr.Type),
			"context":    backupErr.Context,
			"cause":      fmt.Sprint(backupErr.Cause),
		}).Error("Operation failed")
		app.printHints(hintsForBackupError(backupErr.Type))
		return
	}

	appErr := appErrors.NewErrorClassifier().ClassifyError(err)
	message := appErr.GetUserMessage()
	if appErr.Type == appErrors.ErrorTypeUnknown {
		message = err.Error()
	}
	app.display.Error(message)
	app.logger.WithFields(map[string]interface{}{
		"error_type":  string(appErr.Type),
		"recoverable": appErr.IsRecoverable(),
		"context":     appErr.Context,
	}).Error("Operation failed")
	app.printHints(hintsForAppError(appErr.Type))
}

func (app *Application) printHints(hints []string) {
	if len(hints) == 0 || app.display.GetConfig().QuietMode {
		return
	}
	fmt.Fprintln(os.Stderr, "\nTroubleshooting hints:")
	for _, hint := range hints {
		fmt.Fprintf(os.Stderr, "- %s\n", hint)
	}
}

func hintsForAppError(t appErrors.ErrorType) []string {
	switch t {
	case appErrors.ErrorTypeConnection:
		return []string{
			"Check that the database server is running",
			"Verify database.host and database.port",
			"Check firewall settings",
		}
	case appErrors.ErrorTypePermission:
		return []string{
			"Verify the database username and password",
			"Check that the user may read and write the tenant tables",
		}
	case appErrors.ErrorTypeSchema:
		return []string{
			"The record store is missing a table or column the catalog expects",
			"Run 'tenant-backup tables' to see which tables are used",
		}
	case appErrors.ErrorTypeTimeout:
		return []string{
			"Increase engine.tx_timeout for large tenants",
			"Check database server load",
		}
	case appErrors.ErrorTypeValidation:
		return []string{"Review the configuration with 'tenant-backup config show'"}
	}
	return nil
}

func hintsForBackupError(t backup.BackupErrorType) []string {
	switch t {
	case backup.BackupErrorTypeStorage, backup.BackupErrorTypeNetwork:
		return []string{
			"Run 'tenant-backup artifacts health' to probe the storage backend",
			"Check storage credentials and bucket permissions",
		}
	case backup.BackupErrorTypeEncryption:
		return []string{"The artifact was written with a different encryption key"}
	case backup.BackupErrorTypeCorruption:
		return []string{"The stored artifact does not match its checksum; restore it from a replica"}
	case backup.BackupErrorTypeFormat:
		return []string{"Only xlsx artifacts can be imported; csv bundles are export-only"}
	case backup.BackupErrorTypeConfiguration:
		return []string{"Review the configuration with 'tenant-backup config show'"}
	}
	return nil
}
