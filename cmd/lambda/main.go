// Command lambda runs one triage batch per scheduled AWS Lambda invocation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/daviddao/mailtriage/internal/app"
	"github.com/daviddao/mailtriage/internal/config"
	"github.com/daviddao/mailtriage/internal/logging"
)

// Lambda only allows writes under /tmp.
const lambdaStorePath = "/tmp/mailtriage/labels.db"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = lambdaStorePath
	}

	logger, err := logging.New(cfg.Log.Level, "json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	h := &handler{
		build:  appBuilder(cfg, logger),
		window: cfg.Run.Window,
		logger: logger,
	}
	lambda.Start(h.Handle)
}

// appBuilder connects the mailbox and model on every invocation so rotated
// credentials are picked up without a redeploy.
func appBuilder(cfg config.Config, logger *zap.Logger) builder {
	return func(ctx context.Context) (runFunc, func(), error) {
		if err := config.Validate(cfg); err != nil {
			return nil, nil, &app.InitError{Err: err}
		}
		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return a.Runner.Run, func() { a.Close() }, nil
	}
}
