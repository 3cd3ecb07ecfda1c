// Package bedrock implements classify.Generator on top of the AWS Bedrock
// runtime, using the Anthropic text-completion request format.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/daviddao/mailtriage/internal/classify"
	"github.com/daviddao/mailtriage/internal/metrics"
)

const (
	DefaultModelID = "anthropic.claude-v2"
	DefaultRegion  = "us-east-1"
	DefaultTimeout = 30 * time.Second

	humanPrefix     = "\n\nHuman: "
	assistantSuffix = "\n\nAssistant:"
)

// Invoker is the subset of the Bedrock runtime client used here.
type Invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Config selects the model and bounds each call.
type Config struct {
	Region  string
	ModelID string
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.ModelID == "" {
		c.ModelID = DefaultModelID
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Generator sends completion requests to Bedrock.
type Generator struct {
	client  Invoker
	modelID string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// New loads the default AWS configuration for cfg.Region and returns a Generator.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Generator, error) {
	cfg = cfg.withDefaults()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(bedrockruntime.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewWithClient returns a Generator using an existing client.
func NewWithClient(client Invoker, cfg Config, logger *zap.Logger) *Generator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		client:  client,
		modelID: cfg.ModelID,
		timeout: cfg.Timeout,
		logger:  logger,
	}
	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bedrock",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return g
}

// ModelID returns the configured model identifier.
func (g *Generator) ModelID() string {
	return g.modelID
}

type completionRequest struct {
	Prompt            string   `json:"prompt"`
	MaxTokensToSample int      `json:"max_tokens_to_sample"`
	Temperature       float64  `json:"temperature"`
	TopK              int      `json:"top_k"`
	TopP              float64  `json:"top_p"`
	StopSequences     []string `json:"stop_sequences"`
}

type completionResponse struct {
	Completion *string `json:"completion"`
	StopReason string  `json:"stop_reason,omitempty"`
}

var errMissingCompletion = errors.New("response has no completion field")

// Generate implements classify.Generator. Every failure, including an open
// circuit breaker, is reported as a failed Result.
func (g *Generator) Generate(ctx context.Context, prompt string, opts classify.Options) classify.Result {
	body, err := encodeRequest(prompt, opts)
	if err != nil {
		return classify.Failed(fmt.Errorf("encode request: %w", err))
	}

	start := time.Now()
	out, err := g.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		resp, err := g.client.InvokeModel(callCtx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(g.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return nil, err
		}
		return decodeResponse(resp.Body)
	})
	latency := time.Since(start)

	if err != nil {
		metrics.RecordModelCallLatency(g.modelID, "error", latency)
		g.logger.Debug("Model invocation failed",
			zap.String("model", g.modelID),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return classify.Failed(fmt.Errorf("invoke %s: %w", g.modelID, err))
	}

	metrics.RecordModelCallLatency(g.modelID, "success", latency)
	return classify.Succeeded(out.(string))
}

func encodeRequest(prompt string, opts classify.Options) ([]byte, error) {
	stops := opts.StopSequences
	if stops == nil {
		stops = []string{}
	}
	return json.Marshal(completionRequest{
		Prompt:            humanPrefix + prompt + assistantSuffix,
		MaxTokensToSample: opts.MaxTokens,
		Temperature:       opts.Temperature,
		TopK:              opts.TopK,
		TopP:              opts.TopP,
		StopSequences:     stops,
	})
}

func decodeResponse(body []byte) (string, error) {
	var resp completionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.Completion == nil {
		return "", errMissingCompletion
	}
	return *resp.Completion, nil
}
