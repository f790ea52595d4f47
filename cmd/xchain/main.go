package main

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
	metrics "github.com/tevjef/go-runtime-metrics"

	"github.com/phoreproject/xchain/config"
	"github.com/phoreproject/xchain/node"
)

func main() {
	options := config.NewOptions()
	globalOptions := config.NewGlobalOptions()
	err := config.LoadFlags(&options, &globalOptions)
	if err != nil {
		logger.Fatal(err)
	}

	lvl, err := logger.ParseLevel(globalOptions.LogLevel)
	if err != nil {
		logger.Fatal(err)
	}
	logger.SetLevel(lvl)

	logger.StandardLogger().SetFormatter(&logger.TextFormatter{
		ForceColors: globalOptions.Colors,
	})

	if options.Metrics {
		if err := metrics.RunCollector(metrics.DefaultConfig); err != nil {
			logger.Warn(err)
		}
	}

	if options.SentryDSN != "" {
		err = sentry.Init(sentry.ClientOptions{
			Dsn: options.SentryDSN,
		})
		if err != nil {
			logger.Fatalf("sentry.Init: %s", err)
		}
		defer sentry.Flush(time.Second * 5)
	}

	defer func() {
		err := recover()

		if err != nil {
			sentry.CurrentHub().Recover(err)
			sentry.Flush(time.Second * 5)
			panic(err)
		}
	}()

	app, err := node.NewApp(options)
	if err != nil {
		logger.Fatal(errors.Wrap(err, "error initializing node"))
	}

	if err := app.Run(); err != nil {
		logger.Error(err)
		sentry.CaptureException(err)
		sentry.Flush(time.Second * 5)
		logger.Exit(1)
	}
}
