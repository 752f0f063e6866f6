package queue

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/config"
)

const defaultQueue = "crm"

// Enqueuer schedules CRM sync work for qualifying leads.
type Enqueuer interface {
	EnqueueCRMSync(ctx context.Context, payload CRMSyncPayload) error
}

// Client enqueues tasks onto a Redis-backed asynq queue.
type Client struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

// NewClient connects an asynq client to the Redis instance in cfg.
func NewClient(cfg config.QueueConfig) (*Client, error) {
	opt, err := redisClientOpt(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	queue := cfg.Name
	if queue == "" {
		queue = defaultQueue
	}
	return &Client{
		client:   asynq.NewClient(opt),
		queue:    queue,
		maxRetry: cfg.MaxRetry,
	}, nil
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueCRMSync enqueues a CRM sync task keyed by the lead score ID. A task
// that is already queued for the same score counts as success, so retrying
// the caller's unit of work never duplicates CRM writes.
func (c *Client) EnqueueCRMSync(ctx context.Context, payload CRMSyncPayload) error {
	task, err := NewCRMSyncTask(payload)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(c.queue),
		asynq.TaskID(payload.LeadScoreID),
	}
	if c.maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(c.maxRetry))
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		zap.L().Debug("queue: crm sync already enqueued",
			zap.String("company_id", payload.CompanyID),
			zap.String("lead_score_id", payload.LeadScoreID))
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "queue: enqueue crm sync for %s", payload.CompanyID)
	}

	zap.L().Info("queue: enqueued crm sync",
		zap.String("company_id", payload.CompanyID),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
		zap.Int("total_score", payload.TotalScore))
	return nil
}

func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
	if redisURL == "" {
		return asynq.RedisClientOpt{}, eris.New("queue: redis url not configured")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, eris.Wrap(err, "queue: parse redis url")
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
