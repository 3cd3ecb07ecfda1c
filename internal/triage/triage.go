// Package triage runs one pass over a mailbox: list unread messages, classify
// each one and apply the matching label.
package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/daviddao/mailtriage/internal/classify"
	"github.com/daviddao/mailtriage/internal/metrics"
	"github.com/daviddao/mailtriage/internal/normalize"
	"github.com/daviddao/mailtriage/internal/types"
)

// Message outcome statuses, as reported to metrics.
const (
	StatusLabeled     = "labeled"
	StatusLabelFailed = "label_failed"
	StatusFetchFailed = "fetch_failed"
	StatusDryRun      = "dry_run"
	StatusPanicked    = "panicked"
)

// ErrNoMessage is recorded when a mailbox returns neither a message nor an error.
var ErrNoMessage = errors.New("mailbox returned no message")

// Mailbox is what a run needs from a mail backend.
type Mailbox interface {
	ListUnreadSince(ctx context.Context, window time.Duration) ([]string, error)
	GetMessage(ctx context.Context, id string) (*types.RawMessage, error)
	ApplyLabel(ctx context.Context, id, name string) error
	CreateLabelIfAbsent(ctx context.Context, name string) (string, error)
}

// Options tune a Runner.
type Options struct {
	// Concurrency bounds messages in flight; values below 1 mean 1.
	Concurrency int
	// DryRun classifies without touching labels.
	DryRun bool
}

// Runner ties a mailbox to a classifier.
type Runner struct {
	mailbox    Mailbox
	classifier *classify.Classifier
	opts       Options
	logger     *zap.Logger
}

func New(mailbox Mailbox, classifier *classify.Classifier, opts Options, logger *zap.Logger) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		mailbox:    mailbox,
		classifier: classifier,
		opts:       opts,
		logger:     logger,
	}
}

// Run triages unread messages newer than window. Only a listing failure is
// returned as an error; per-message failures are recorded in the summary.
// Outcomes keep the listing order regardless of concurrency.
func (r *Runner) Run(ctx context.Context, window time.Duration) (*types.RunSummary, error) {
	start := time.Now()
	defer func() { metrics.RecordRunDuration(time.Since(start)) }()

	summary := &types.RunSummary{
		RunID:  uuid.NewString(),
		Window: window.String(),
	}
	logger := r.logger.With(zap.String("run_id", summary.RunID))

	ids, err := r.mailbox.ListUnreadSince(ctx, window)
	if err != nil {
		metrics.IncrementRunErrors()
		return summary, fmt.Errorf("list unread messages: %w", err)
	}
	summary.Found = len(ids)
	logger.Info("Found unread messages",
		zap.Int("count", len(ids)),
		zap.Duration("window", window),
	)

	outcomes := make([]types.MessageOutcome, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i] = r.process(gctx, logger, id)
			return nil
		})
	}
	_ = g.Wait()

	summary.Messages = outcomes
	for _, o := range outcomes {
		if o.Category != "" {
			summary.Processed++
		}
		if o.Labeled {
			summary.Labeled++
		}
		if o.Error != "" {
			summary.Failed++
		}
	}

	logger.Info("Run complete",
		zap.Int("processed", summary.Processed),
		zap.Int("labeled", summary.Labeled),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// ProcessMessage triages a single message by id.
func (r *Runner) ProcessMessage(ctx context.Context, id string) types.MessageOutcome {
	return r.process(ctx, r.logger, id)
}

// process never panics: a panic while handling one message is recorded as
// that message's error so the rest of the batch still runs.
func (r *Runner) process(ctx context.Context, logger *zap.Logger, id string) (outcome types.MessageOutcome) {
	outcome.ID = id
	logger = logger.With(zap.String("message_id", id))
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Panic while processing message", zap.Any("panic", p), zap.Stack("stack"))
			metrics.IncrementProcessed(StatusPanicked)
			outcome.Labeled = false
			outcome.Error = fmt.Sprintf("panic: %v", p)
		}
	}()

	msg, err := r.mailbox.GetMessage(ctx, id)
	if err == nil && msg == nil {
		err = ErrNoMessage
	}
	if err != nil {
		logger.Error("Failed to fetch message", zap.Error(err))
		metrics.IncrementProcessed(StatusFetchFailed)
		outcome.Error = err.Error()
		return outcome
	}

	text := normalize.Normalize(msg)
	outcome.Subject = normalize.Subject(msg.Headers)

	decision := r.classifier.Decide(ctx, text)
	outcome.Category = decision.Category
	metrics.IncrementCategory(string(decision.Category), string(decision.Reason))
	logger.Info("Classified message",
		zap.String("subject", outcome.Subject),
		zap.String("category", string(decision.Category)),
		zap.String("reason", string(decision.Reason)),
	)

	if r.opts.DryRun {
		metrics.IncrementProcessed(StatusDryRun)
		return outcome
	}

	if err := r.mailbox.ApplyLabel(ctx, id, string(decision.Category)); err != nil {
		logger.Error("Failed to apply label", zap.Error(err))
		metrics.IncrementProcessed(StatusLabelFailed)
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Labeled = true
	metrics.IncrementProcessed(StatusLabeled)
	return outcome
}

// LabelStatus reports the label id for one category.
type LabelStatus struct {
	Name  string `json:"name"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// EnsureLabels creates every category label, plus Other, that the mailbox
// lacks. It keeps going after a failure and returns the first error.
func (r *Runner) EnsureLabels(ctx context.Context) ([]LabelStatus, error) {
	var firstErr error
	labels := types.AllLabels()
	out := make([]LabelStatus, 0, len(labels))
	for _, c := range labels {
		st := LabelStatus{Name: string(c)}
		id, err := r.mailbox.CreateLabelIfAbsent(ctx, string(c))
		if err != nil {
			st.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		} else {
			st.ID = id
		}
		out = append(out, st)
	}
	return out, firstErr
}
