package classify

import (
	"context"
	"errors"
)

// Options are the sampling settings for a single completion request.
type Options struct {
	Temperature   float64
	TopK          int
	TopP          float64
	MaxTokens     int
	StopSequences []string
}

// DefaultOptions returns the settings used for classification: low
// temperature, a short completion and stop sequences that cut off anything
// past the first line.
func DefaultOptions() Options {
	return Options{
		Temperature:   0.3,
		TopK:          250,
		TopP:          1,
		MaxTokens:     50,
		StopSequences: []string{"\n\nHuman:", "\n", "Assistant:"},
	}
}

// Result is the outcome of one model invocation: either a completion or
// the reason the call failed.
type Result struct {
	Completion string
	Err        error
}

// Succeeded wraps a completion.
func Succeeded(completion string) Result {
	return Result{Completion: completion}
}

// Failed wraps a failure reason. A nil error still produces a failed result.
func Failed(err error) Result {
	if err == nil {
		err = ErrNoCompletion
	}
	return Result{Err: err}
}

// OK reports whether the invocation produced a completion.
func (r Result) OK() bool {
	return r.Err == nil
}

// ErrNoCompletion marks a failed result that carried no explicit reason.
var ErrNoCompletion = errors.New("model returned no completion")

// Generator produces text completions. Implementations report transport and
// decoding failures through Result instead of returning an error.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) Result
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string, opts Options) Result

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, opts Options) Result {
	return f(ctx, prompt, opts)
}
