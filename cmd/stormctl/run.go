package main

import (
	"fmt"
	"strings"

	kafkaadapter "github.com/couchcryptid/storm-data-sync/internal/adapter/kafka"
	redisadapter "github.com/couchcryptid/storm-data-sync/internal/adapter/redis"
	"github.com/couchcryptid/storm-data-sync/internal/config"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/jobs"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/couchcryptid/storm-data-sync/internal/scheduler"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:       "run <job>",
	Short:     "Run one sync job once against the configured stores",
	Long:      "Run one sync job once. Jobs: " + strings.Join([]string{jobs.Alerts, jobs.Completion, jobs.Confirmation, jobs.Wildfire, jobs.Drought}, ", "),
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{jobs.Alerts, jobs.Completion, jobs.Confirmation, jobs.Wildfire, jobs.Drought},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := observability.NewLogger(cfg)
		metrics := observability.NewMetrics()
		ctx := cmd.Context()

		rdb, err := redisadapter.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		var publisher domain.ChangePublisher = kafkaadapter.NopPublisher{}
		if len(cfg.KafkaBrokers) > 0 {
			p := kafkaadapter.NewPublisher(cfg, metrics, logger)
			defer p.Close()
			publisher = p
		}

		clock := clockwork.NewRealClock()
		sched := scheduler.New(clock, metrics, logger, jobs.Build(jobs.Deps{
			Config:    cfg,
			Stores:    jobs.RedisStores(rdb, cfg.RedisKeyPrefix),
			Publisher: publisher,
			Clock:     clock,
			Metrics:   metrics,
			Logger:    logger,
		})...)

		result, err := sched.RunNow(ctx, args[0])
		if err != nil {
			return fmt.Errorf("run %s: %w", args[0], err)
		}
		return printJSON(cmd, result)
	},
}
