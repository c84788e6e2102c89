package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-ai/conductor/types"
)

func newController() *Controller {
	return NewController(NewMemoryStore(), nil)
}

func TestCreateAndGetPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newController()

	cp, err := c.Create(ctx, "exec-1", TypeApproval, CreateOptions{
		NodeExecutionID: "node-1",
		PromptMessage:   "deploy to production?",
		Options:         []string{"approve", "reject"},
	})
	require.NoError(t, err)
	assert.Nil(t, cp.DecidedAt)

	pending, err := c.GetPending(ctx, "exec-1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, cp.ID, pending.ID)

	has, err := c.HasPending(ctx, "exec-1")
	require.NoError(t, err)
	assert.True(t, has)

	// Other executions are unaffected.
	pending, err = c.GetPending(ctx, "exec-2")
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestGetPending_MostRecentFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	c := NewController(store, nil)

	older, err := c.Create(ctx, "exec-1", TypeApproval, CreateOptions{})
	require.NoError(t, err)
	// Force distinct creation times; uuid creation is faster than the clock.
	newer := &Checkpoint{
		ID:             "cp-newer",
		ExecutionID:    "exec-1",
		CheckpointType: TypeInput,
		CreatedAt:      older.CreatedAt.Add(time.Second),
	}
	require.NoError(t, store.Save(ctx, newer))

	pending, err := c.GetPending(ctx, "exec-1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "cp-newer", pending.ID)

	// Deciding the newest exposes the older undecided checkpoint.
	ok, err := c.RecordDecision(ctx, "cp-newer", "approve", "")
	require.NoError(t, err)
	require.True(t, ok)

	pending, err = c.GetPending(ctx, "exec-1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, older.ID, pending.ID)
}

func TestRecordDecision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newController()

	cp, err := c.Create(ctx, "exec-1", TypeApproval, CreateOptions{})
	require.NoError(t, err)

	ok, err := c.RecordDecision(ctx, cp.ID, "approve", "looks good")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := c.Get(ctx, cp.ID)
	require.NoError(t, err)
	assert.Equal(t, "approve", got.Decision)
	assert.Equal(t, "looks good", got.Feedback)
	require.NotNil(t, got.DecidedAt)

	has, err := c.HasPending(ctx, "exec-1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRecordDecision_UnknownID(t *testing.T) {
	t.Parallel()
	c := newController()
	ok, err := c.RecordDecision(context.Background(), "missing", "approve", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordDecision_TwiceRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newController()

	cp, err := c.Create(ctx, "exec-1", TypeApproval, CreateOptions{})
	require.NoError(t, err)

	ok, err := c.RecordDecision(ctx, cp.ID, "approve", "first")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.RecordDecision(ctx, cp.ID, "reject", "second")
	assert.False(t, ok)
	assert.Equal(t, types.ErrInvalidState, types.GetErrorCode(err))

	// The first decision survives untouched.
	got, err := c.Get(ctx, cp.ID)
	require.NoError(t, err)
	assert.Equal(t, "approve", got.Decision)
	assert.Equal(t, "first", got.Feedback)
}

func TestCleanup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newController()

	cp, err := c.Create(ctx, "exec-1", TypeApproval, CreateOptions{})
	require.NoError(t, err)
	keep, err := c.Create(ctx, "exec-2", TypeApproval, CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, c.Cleanup(ctx, "exec-1"))

	_, err = c.Get(ctx, cp.ID)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
	_, err = c.Get(ctx, keep.ID)
	assert.NoError(t, err)
}
