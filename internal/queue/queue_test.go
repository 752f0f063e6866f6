package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/config"
)

func newTestClient(t *testing.T) (*Client, *asynq.Inspector) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.QueueConfig{RedisURL: "redis://" + mr.Addr() + "/0", Name: "crm", MaxRetry: 3}

	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck

	insp := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { insp.Close() }) //nolint:errcheck
	return c, insp
}

func TestCRMSyncTask_RoundTrip(t *testing.T) {
	in := CRMSyncPayload{CompanyID: "c-1", LeadScoreID: "s-1", TotalScore: 84, Grade: "A-", Variant: "variant_a"}
	task, err := NewCRMSyncTask(in)
	require.NoError(t, err)
	assert.Equal(t, TaskCRMSync, task.Type())

	out, err := ParseCRMSyncPayload(task)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNewCRMSyncTask_RequiresIDs(t *testing.T) {
	_, err := NewCRMSyncTask(CRMSyncPayload{CompanyID: "c-1"})
	assert.Error(t, err)
}

func TestParseCRMSyncPayload_Invalid(t *testing.T) {
	_, err := ParseCRMSyncPayload(asynq.NewTask(TaskCRMSync, []byte("not json")))
	assert.Error(t, err)

	_, err = ParseCRMSyncPayload(asynq.NewTask(TaskCRMSync, []byte(`{"leadScoreId":"s-1"}`)))
	assert.Error(t, err)
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(config.QueueConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis url not configured")

	_, err = NewClient(config.QueueConfig{RedisURL: "http://nope"})
	assert.Error(t, err)
}

func TestClient_EnqueueCRMSync(t *testing.T) {
	c, insp := newTestClient(t)
	ctx := context.Background()

	payload := CRMSyncPayload{CompanyID: "c-1", LeadScoreID: "s-1", TotalScore: 85, Grade: "A-", Variant: "control"}
	require.NoError(t, c.EnqueueCRMSync(ctx, payload))

	tasks, err := insp.ListPendingTasks("crm")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "s-1", tasks[0].ID)
	assert.Equal(t, TaskCRMSync, tasks[0].Type)
	assert.Equal(t, 3, tasks[0].MaxRetry)
}

func TestClient_EnqueueCRMSync_DuplicateIsNoop(t *testing.T) {
	c, insp := newTestClient(t)
	ctx := context.Background()

	payload := CRMSyncPayload{CompanyID: "c-1", LeadScoreID: "s-1", TotalScore: 85}
	require.NoError(t, c.EnqueueCRMSync(ctx, payload))
	require.NoError(t, c.EnqueueCRMSync(ctx, payload))

	tasks, err := insp.ListPendingTasks("crm")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestNewWorker_RequiresHandler(t *testing.T) {
	_, err := NewWorker(config.QueueConfig{RedisURL: "redis://localhost:6379/0"}, nil)
	assert.Error(t, err)

	w, err := NewWorker(config.QueueConfig{RedisURL: "redis://localhost:6379/0"},
		asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return nil }))
	require.NoError(t, err)
	assert.NotNil(t, w)
}
