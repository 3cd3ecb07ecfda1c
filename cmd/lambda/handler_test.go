package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daviddao/mailtriage/internal/app"
	"github.com/daviddao/mailtriage/internal/auth"
	"github.com/daviddao/mailtriage/internal/types"
)

func newHandler(run runFunc, buildErr error) (*handler, *bool) {
	cleaned := false
	return &handler{
		build: func(context.Context) (runFunc, func(), error) {
			if buildErr != nil {
				return nil, nil, buildErr
			}
			return run, func() { cleaned = true }, nil
		},
		window: time.Hour,
		logger: zap.NewNop(),
	}, &cleaned
}

func TestHandleSuccess(t *testing.T) {
	var gotWindow time.Duration
	h, cleaned := newHandler(func(_ context.Context, window time.Duration) (*types.RunSummary, error) {
		gotWindow = window
		return &types.RunSummary{Found: 4, Processed: 3}, nil
	}, nil)

	resp, err := h.Handle(context.Background(), events.CloudWatchEvent{ID: "evt"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, time.Hour, gotWindow)
	assert.True(t, *cleaned)

	var body successBody
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, "Successfully processed 3 emails", body.Message)
	assert.Equal(t, 3, body.ProcessedEmails)
}

func TestHandleZeroMessages(t *testing.T) {
	h, _ := newHandler(func(context.Context, time.Duration) (*types.RunSummary, error) {
		return &types.RunSummary{}, nil
	}, nil)

	resp, err := h.Handle(context.Background(), events.CloudWatchEvent{})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Successfully processed 0 emails","processedEmails":0}`, resp.Body)
}

func TestHandleInitError(t *testing.T) {
	h, _ := newHandler(nil, &app.InitError{Err: auth.ErrMissingCredentials})

	resp, err := h.Handle(context.Background(), events.CloudWatchEvent{})
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)

	var body errorBody
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Contains(t, body.Error, "no Gmail credentials found")
}

func TestHandleRunError(t *testing.T) {
	h, cleaned := newHandler(func(context.Context, time.Duration) (*types.RunSummary, error) {
		return &types.RunSummary{}, errors.New("list unread messages: 401")
	}, nil)

	resp, err := h.Handle(context.Background(), events.CloudWatchEvent{})
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.JSONEq(t, `{"error":"list unread messages: 401"}`, resp.Body)
	assert.True(t, *cleaned)
}
