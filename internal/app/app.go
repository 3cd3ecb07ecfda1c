// Package app wires configuration into a ready-to-run triage pipeline. Both
// the CLI and the Lambda handler build their runners here.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/daviddao/mailtriage/internal/auth"
	"github.com/daviddao/mailtriage/internal/bedrock"
	"github.com/daviddao/mailtriage/internal/classify"
	"github.com/daviddao/mailtriage/internal/config"
	"github.com/daviddao/mailtriage/internal/credential"
	"github.com/daviddao/mailtriage/internal/db"
	"github.com/daviddao/mailtriage/internal/gmail"
	"github.com/daviddao/mailtriage/internal/imap"
	"github.com/daviddao/mailtriage/internal/triage"
)

// StoreDisabled as store.path turns the label cache off.
const StoreDisabled = "none"

// InitError marks a failure that happened before any message was touched,
// such as missing credentials or an unreachable mailbox.
type InitError struct {
	Err error
}

func (e *InitError) Error() string { return "initialization failed: " + e.Err.Error() }
func (e *InitError) Unwrap() error { return e.Err }

// IsInitError reports whether err is, or wraps, an InitError.
func IsInitError(err error) bool {
	var ie *InitError
	return errors.As(err, &ie)
}

// Mailbox is a triage mailbox that owns resources.
type Mailbox interface {
	triage.Mailbox
	Account() string
	Close() error
}

// App is a runner plus the resources it holds.
type App struct {
	Runner     *triage.Runner
	Classifier *classify.Classifier
	Mailbox    Mailbox
}

// New builds the classifier and mailbox described by cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	classifier, err := NewClassifier(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	mailbox, err := OpenMailbox(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	runner := triage.New(mailbox, classifier, triage.Options{
		Concurrency: cfg.Run.Concurrency,
		DryRun:      cfg.Run.DryRun,
	}, logger)
	return &App{Runner: runner, Classifier: classifier, Mailbox: mailbox}, nil
}

// Close releases the mailbox.
func (a *App) Close() error {
	if a.Mailbox == nil {
		return nil
	}
	return a.Mailbox.Close()
}

// NewClassifier returns a classifier backed by Bedrock.
func NewClassifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (*classify.Classifier, error) {
	gen, err := bedrock.New(ctx, bedrock.Config{
		Region:  cfg.Model.Region,
		ModelID: cfg.Model.ID,
		Timeout: cfg.Model.Timeout,
	}, logger)
	if err != nil {
		return nil, &InitError{Err: err}
	}
	return classify.New(gen, logger), nil
}

// OpenMailbox connects to the configured backend and verifies access.
func OpenMailbox(ctx context.Context, cfg config.Config, logger *zap.Logger) (Mailbox, error) {
	switch cfg.Mailbox.Backend {
	case config.BackendGmail, "":
		return openGmail(ctx, cfg, logger)
	case config.BackendIMAP:
		return openIMAP(ctx, cfg, logger)
	default:
		return nil, &InitError{Err: fmt.Errorf("unknown mailbox backend %q", cfg.Mailbox.Backend)}
	}
}

// GmailSource returns the credential sources enabled by cfg.
func GmailSource(cfg config.Config) auth.Source {
	src := auth.SourceFromEnv()
	src.CredentialsPath = cfg.Mailbox.CredentialsFile
	if cfg.Mailbox.UseKeyring {
		src.Keyring = credential.GmailCredentials
	}
	return src
}

type gmailMailbox struct {
	*gmail.Mailbox
	cache *db.DB
}

func (m *gmailMailbox) Close() error {
	if m.cache == nil {
		return nil
	}
	return m.cache.Close()
}

func openGmail(ctx context.Context, cfg config.Config, logger *zap.Logger) (Mailbox, error) {
	svc, err := auth.LoadGmailService(ctx, GmailSource(cfg))
	if err != nil {
		return nil, &InitError{Err: err}
	}

	cache := OpenLabelCache(cfg.Store.Path, logger)
	opts := gmail.Options{MaxResults: int64(cfg.Run.MaxResults)}
	if cache != nil {
		opts.Cache = cache
	}
	mb := gmail.NewMailbox(svc, opts, logger)

	account, err := mb.Verify(ctx)
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		return nil, &InitError{Err: err}
	}
	logger.Info("Connected to Gmail", zap.String("account", account))
	return &gmailMailbox{Mailbox: mb, cache: cache}, nil
}

func openIMAP(ctx context.Context, cfg config.Config, logger *zap.Logger) (Mailbox, error) {
	if err := config.ValidateIMAP(cfg); err != nil {
		return nil, &InitError{Err: err}
	}
	mb := imap.NewMailbox(cfg.IMAP, nil, cfg.Run.MaxResults, logger)
	account, err := mb.Verify(ctx)
	if err != nil {
		mb.Close()
		return nil, &InitError{Err: err}
	}
	logger.Info("Connected to IMAP", zap.String("host", cfg.IMAP.Host), zap.String("account", account))
	return mb, nil
}

// OpenLabelCache opens the label cache at path, the default location when
// empty. It returns nil when disabled or unavailable; the cache is optional.
func OpenLabelCache(path string, logger *zap.Logger) *db.DB {
	if path == StoreDisabled {
		return nil
	}
	if path == "" {
		path = db.DefaultPath()
	}
	store, err := db.Open(path)
	if err != nil {
		logger.Warn("Label cache unavailable, continuing without it",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil
	}
	return store
}
