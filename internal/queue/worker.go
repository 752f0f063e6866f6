package queue

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/config"
)

// Worker runs an asynq server that dispatches queued tasks to handlers.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewWorker builds a worker that routes CRM sync tasks to crmSync.
func NewWorker(cfg config.QueueConfig, crmSync asynq.Handler) (*Worker, error) {
	opt, err := redisClientOpt(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if crmSync == nil {
		return nil, eris.New("queue: crm sync handler is required")
	}

	queue := cfg.Name
	if queue == "" {
		queue = defaultQueue
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 5
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			zap.L().Warn("queue: task failed",
				zap.String("type", task.Type()),
				zap.Error(err))
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskCRMSync, crmSync)

	return &Worker{server: server, mux: mux}, nil
}

// Run processes tasks until ctx is cancelled, then waits for in-flight
// tasks to finish.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return eris.Wrap(err, "queue: start worker")
	}
	zap.L().Info("queue: worker started")

	<-ctx.Done()
	w.server.Shutdown()
	zap.L().Info("queue: worker stopped")
	return nil
}
