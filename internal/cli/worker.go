package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ryandotelliott/dead-internet/internal/config"
	"github.com/ryandotelliott/dead-internet/internal/taskqueue"
)

func (r *runner) workerCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process persona and orchestration tasks from Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := r.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			if s.cfg.Queue.Backend != config.QueueBackendAsynq {
				return fmt.Errorf("worker needs the %s queue backend, have %q", config.QueueBackendAsynq, s.cfg.Queue.Backend)
			}
			srv, err := taskqueue.NewAsynqServer(s.cfg.Queue.RedisURL, concurrency, func(ctx context.Context, taskType string, err error) {
				s.logger.ErrorContext(ctx, "Task failed",
					slog.String("type", taskType),
					slog.String("error", err.Error()),
				)
			})
			if err != nil {
				return err
			}
			s.logger.InfoContext(ctx, "Worker starting", slog.Int("concurrency", concurrency))
			return srv.Run(taskqueue.NewServeMux(s.svc.Dispatcher))
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 10, "tasks processed at once")
	return cmd
}
