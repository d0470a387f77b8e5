package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"

	"dailybudget/internal/amqp"
	"dailybudget/internal/cli"
	"dailybudget/internal/log"
	"dailybudget/internal/metrics"
	"dailybudget/internal/services"
)

const usage = `usage: budget <command> [arguments]

commands:
  status                                   show today's budget per category
  salary set <amount> | salary clear       set or clear this month's salary
  category list
  category add -name N -allocation A [-weekly]
  category update -id ID -name N -allocation A [-weekly]
  category delete -id ID                   also deletes the category's expenses
  expense list
  expense add -category ID -amount A [-date YYYY-MM-DD]
  expense update -id ID -category ID -amount A [-date YYYY-MM-DD]
  expense delete -id ID
  history                                  archived months, newest first
`

func main() {
	os.Exit(budgetMain())
}

// budgetMain returns the exit code so deferred cleanup runs before exiting.
func budgetMain() int {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	ctx := context.Background()
	store, cleanup := cli.OpenStore(ctx, logger, cfg)
	defer func() {
		if err := cleanup(); err != nil {
			logger.Warn("Failed to close store", "error", err)
		}
	}()

	m := metrics.New()
	defer logMetrics(logger, m)

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithMetrics(m),
		services.WithCacheSize(cfg.MetricsCacheSize),
	}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, archived months will not be published", "error", err)
		} else {
			defer client.Close()
			opts = append(opts, services.WithPublisher(client))
		}
	}

	svc := services.NewBudgetService(store, opts...)
	if _, err := svc.Start(ctx); err != nil {
		logger.Error("Failed to start budget", log.FieldOperation, log.OpStartup, log.FieldError, err)
		return 1
	}

	if err := run(ctx, svc, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			return 2
		}
		return 1
	}
	return 0
}

// logMetrics reports the counters of this invocation at debug level.
func logMetrics(logger *slog.Logger, m *metrics.Metrics) {
	summary, err := m.Summary()
	if err != nil {
		logger.Warn("Failed to gather metrics", log.FieldError, err)
		return
	}
	args := []any{log.FieldOperation, log.OpShutdown}
	for _, k := range slices.Sorted(maps.Keys(summary)) {
		args = append(args, k, summary[k])
	}
	logger.Debug("Metrics", args...)
}
