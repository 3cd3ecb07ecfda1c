package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/daviddao/mailtriage/internal/app"
	"github.com/daviddao/mailtriage/internal/types"
)

// Response is returned to the scheduler; Body holds a JSON document.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type successBody struct {
	Message         string `json:"message"`
	ProcessedEmails int    `json:"processedEmails"`
}

type errorBody struct {
	Error string `json:"error"`
}

// runFunc performs one triage pass.
type runFunc func(ctx context.Context, window time.Duration) (*types.RunSummary, error)

// builder prepares a run and returns a cleanup function.
type builder func(ctx context.Context) (runFunc, func(), error)

type handler struct {
	build  builder
	window time.Duration
	logger *zap.Logger
}

// Handle runs one batch per scheduled event. Errors are reported in the
// response rather than returned, so the scheduler does not retry the batch.
func (h *handler) Handle(ctx context.Context, event events.CloudWatchEvent) (Response, error) {
	logger := h.logger.With(zap.String("event_id", event.ID))

	run, cleanup, err := h.build(ctx)
	if err != nil {
		logger.Error("Lambda initialization failed",
			zap.Error(err),
			zap.Bool("init_error", app.IsInitError(err)),
		)
		return errorResponse(err), nil
	}
	defer cleanup()

	summary, err := run(ctx, h.window)
	if err != nil {
		logger.Error("Lambda execution error", zap.Error(err))
		return errorResponse(err), nil
	}

	return jsonResponse(200, successBody{
		Message:         fmt.Sprintf("Successfully processed %d emails", summary.Processed),
		ProcessedEmails: summary.Processed,
	}), nil
}

func errorResponse(err error) Response {
	return jsonResponse(500, errorBody{Error: err.Error()})
}

func jsonResponse(status int, body any) Response {
	data, err := json.Marshal(body)
	if err != nil {
		return Response{StatusCode: 500, Body: `{"error":"encode response"}`}
	}
	return Response{StatusCode: status, Body: string(data)}
}
