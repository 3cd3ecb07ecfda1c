// Package classify maps canonical message text to exactly one triage category.
//
// The decision runs in three steps. A payment keyword anywhere in the text
// settles the result as Billing / Invoice without calling the model. Otherwise
// the model is asked for a bare category name and its completion is reduced
// to the first declared category it mentions. Anything else, including a
// failed model call, yields Other.
package classify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/daviddao/mailtriage/internal/types"
)

// Reason records which step produced a category.
type Reason string

const (
	ReasonKeyword     Reason = "keyword"
	ReasonModel       Reason = "model"
	ReasonNoMatch     Reason = "no_match"
	ReasonModelFailed Reason = "model_failed"
)

// Decision is a category together with the step that produced it.
type Decision struct {
	Category   types.Category
	Reason     Reason
	Completion string
}

// Classifier assigns categories using a keyword override and a model.
type Classifier struct {
	gen    Generator
	opts   Options
	logger *zap.Logger
}

// New creates a Classifier. A nil logger discards log output.
func New(gen Generator, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		gen:    gen,
		opts:   DefaultOptions(),
		logger: logger,
	}
}

// Classify returns the category for text. It always returns one of the 16
// categories or Other.
func (c *Classifier) Classify(ctx context.Context, text string) types.Category {
	return c.Decide(ctx, text).Category
}

// Decide is Classify with the reason attached.
func (c *Classifier) Decide(ctx context.Context, text string) Decision {
	if kw, ok := MatchPaymentKeyword(text); ok {
		c.logger.Info("Payment keyword found, skipping model",
			zap.String("keyword", kw),
			zap.String("category", string(types.CategoryBilling)),
		)
		return Decision{Category: types.CategoryBilling, Reason: ReasonKeyword}
	}

	if c.gen == nil {
		c.logger.Warn("No model configured, falling back", zap.String("category", string(types.CategoryOther)))
		return Decision{Category: types.CategoryOther, Reason: ReasonModelFailed}
	}

	res := c.gen.Generate(ctx, BuildPrompt(text), c.opts)
	if !res.OK() {
		c.logger.Warn("Model invocation failed, falling back",
			zap.Error(res.Err),
			zap.String("category", string(types.CategoryOther)),
		)
		return Decision{Category: types.CategoryOther, Reason: ReasonModelFailed}
	}

	completion := strings.TrimSpace(res.Completion)
	category, ok := MatchCategory(completion)
	if !ok {
		c.logger.Warn("No valid category in completion",
			zap.String("completion", completion),
		)
		return Decision{Category: types.CategoryOther, Reason: ReasonNoMatch, Completion: completion}
	}

	c.logger.Debug("Category found in completion",
		zap.String("category", string(category)),
		zap.String("completion", completion),
	)
	return Decision{Category: category, Reason: ReasonModel, Completion: completion}
}

// MatchPaymentKeyword reports the first payment keyword contained in text,
// compared case-insensitively as a plain substring.
func MatchPaymentKeyword(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range PaymentKeywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

// MatchCategory returns the first category, in declared order, whose name
// appears in completion.
func MatchCategory(completion string) (types.Category, bool) {
	for _, c := range types.Categories {
		if strings.Contains(completion, string(c)) {
			return c, true
		}
	}
	return types.CategoryOther, false
}
