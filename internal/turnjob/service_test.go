package turnjob

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/mygpt/internal/common"
	"github.com/suPer8Hu/mygpt/internal/conversation"
	"github.com/suPer8Hu/mygpt/internal/orchestrator"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakePublisher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *fakePublisher) PublishJob(ctx context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, jobID)
	return nil
}

type fakeRunner struct {
	got []orchestrator.TurnRequest
	res *orchestrator.TurnResult
	err error
}

func (r *fakeRunner) HandleTurn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error) {
	r.got = append(r.got, req)
	return r.res, r.err
}

func setup(t *testing.T) (*Service, *Repo, conversation.Store, *fakePublisher) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "jobs.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Job{}))

	repo := NewRepo(db)
	store := conversation.NewMemoryStore(0)
	pub := &fakePublisher{}
	return NewService(repo, store, pub), repo, store, pub
}

func TestSubmit_CreatesConversationAndPublishes(t *testing.T) {
	svc, _, store, pub := setup(t)
	ctx := context.Background()

	j, created, err := svc.Submit(ctx, orchestrator.TurnRequest{Message: "  hello  ", RequesterID: 5}, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusQueued, j.Status)
	assert.Equal(t, "hello", j.Message)
	assert.Equal(t, []string{j.ID}, pub.ids)

	conv, err := store.Get(ctx, j.ConversationID, 5)
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
}

func TestSubmit_IdempotencyKey(t *testing.T) {
	svc, _, _, pub := setup(t)
	ctx := context.Background()
	req := orchestrator.TurnRequest{Message: "hello", RequesterID: 5}

	first, created, err := svc.Submit(ctx, req, "key-1")
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := svc.Submit(ctx, req, "key-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, pub.ids, 1, "replayed request is not enqueued twice")

	// same key from another requester is a different job
	other, created, err := svc.Submit(ctx, orchestrator.TurnRequest{Message: "hello", RequesterID: 6}, "key-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	_, _, err = svc.Submit(ctx, req, strings.Repeat("k", 129))
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestSubmit_GuestsIgnoreIdempotencyKey(t *testing.T) {
	svc, repo, store, pub := setup(t)
	ctx := context.Background()

	a, created, err := svc.Submit(ctx, orchestrator.TurnRequest{Message: "A"}, "retry-1")
	require.NoError(t, err)
	require.True(t, created)
	b, created, err := svc.Submit(ctx, orchestrator.TurnRequest{Message: "B"}, "retry-1")
	require.NoError(t, err)
	require.True(t, created)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.ConversationID, b.ConversationID)
	assert.Equal(t, "B", b.Message)
	assert.Nil(t, b.IdempotencyKey)
	assert.Equal(t, []string{a.ID, b.ID}, pub.ids)

	stored, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", stored.Message)
	_, err = store.Get(ctx, b.ConversationID, 0)
	assert.NoError(t, err)
}

func TestSubmit_ReplayDoesNotLeaveExtraConversation(t *testing.T) {
	svc, _, store, _ := setup(t)
	ctx := context.Background()
	req := orchestrator.TurnRequest{Message: "hello", RequesterID: 5}

	_, _, err := svc.Submit(ctx, req, "key-1")
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, req, "key-1")
	require.NoError(t, err)

	list, err := store.ListForOwner(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSubmit_ChecksAccessAndInput(t *testing.T) {
	svc, _, store, pub := setup(t)
	ctx := context.Background()
	owner := uint64(1)
	conv, err := store.Create(ctx, &owner)
	require.NoError(t, err)

	_, _, err = svc.Submit(ctx, orchestrator.TurnRequest{Message: "hi", ConversationID: conv.ID, RequesterID: 2}, "")
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, _, err = svc.Submit(ctx, orchestrator.TurnRequest{Message: " ", RequesterID: 1}, "")
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, pub.ids)
}

func TestSubmit_PublishFailureMarksJobFailed(t *testing.T) {
	svc, repo, store, pub := setup(t)
	pub.err = errors.New("broker down")
	ctx := context.Background()

	_, _, err := svc.Submit(ctx, orchestrator.TurnRequest{Message: "hi", RequesterID: 8}, "k")
	require.Error(t, err)

	j, err := repo.getByIdempotencyKey(ctx, 8, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, j.Status)

	// the conversation created for the job is not left behind
	list, err := store.ListForOwner(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGet_HidesOtherRequestersJobs(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	j, _, err := svc.Submit(ctx, orchestrator.TurnRequest{Message: "hi", RequesterID: 3}, "")
	require.NoError(t, err)

	got, err := svc.Get(ctx, j.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)

	_, err = svc.Get(ctx, j.ID, 4)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = svc.Get(ctx, j.ID, 0)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = svc.Get(ctx, "missing", 3)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestProcess_Success(t *testing.T) {
	svc, repo, _, _ := setup(t)
	ctx := context.Background()
	j, _, err := svc.Submit(ctx, orchestrator.TurnRequest{Message: "hi", ModelPreference: "qwen-math", RequesterID: 3}, "")
	require.NoError(t, err)

	runner := &fakeRunner{res: &orchestrator.TurnResult{Response: "hello", ModelUsed: "qwen-math"}}
	_, err = svc.Process(ctx, j.ID, runner)
	require.NoError(t, err)

	require.Len(t, runner.got, 1)
	assert.Equal(t, j.ConversationID, runner.got[0].ConversationID)
	assert.Equal(t, "qwen-math", runner.got[0].ModelPreference)
	assert.Equal(t, uint64(3), runner.got[0].RequesterID)

	done, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, done.Status)
	require.NotNil(t, done.Response)
	assert.Equal(t, "hello", *done.Response)
	assert.True(t, done.Done())

	// redelivery is a no-op
	_, err = svc.Process(ctx, j.ID, runner)
	require.NoError(t, err)
	assert.Len(t, runner.got, 1)
}

func TestProcess_TurnFailure(t *testing.T) {
	svc, repo, _, _ := setup(t)
	ctx := context.Background()
	j, _, err := svc.Submit(ctx, orchestrator.TurnRequest{Message: "hi"}, "")
	require.NoError(t, err)

	runner := &fakeRunner{err: common.ErrForbidden}
	_, err = svc.Process(ctx, j.ID, runner)
	assert.ErrorIs(t, err, common.ErrForbidden)

	done, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, done.Status)
	require.NotNil(t, done.Error)
	assert.Nil(t, done.Response)
}

func TestProcess_ReclaimsStaleRunningJob(t *testing.T) {
	svc, repo, _, _ := setup(t)
	svc.WithReclaimAfter(time.Minute)
	ctx := context.Background()

	j, _, err := svc.Submit(ctx, orchestrator.TurnRequest{Message: "hi", RequesterID: 3}, "")
	require.NoError(t, err)
	// a worker claimed it and then died
	claimed, err := repo.MarkRunning(ctx, j.ID, time.Time{})
	require.NoError(t, err)
	require.True(t, claimed)

	runner := &fakeRunner{res: &orchestrator.TurnResult{Response: "hello", ModelUsed: "llama-3.2-3b"}}
	_, err = svc.Process(ctx, j.ID, runner)
	assert.ErrorIs(t, err, ErrJobInFlight)
	assert.Empty(t, runner.got)

	require.NoError(t, repo.db.Model(&Job{}).Where("id = ?", j.ID).
		UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)

	_, err = svc.Process(ctx, j.ID, runner)
	require.NoError(t, err)
	require.Len(t, runner.got, 1)

	done, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, done.Status)
}

func TestProcess_RunningJobWithoutReclaimIsSkipped(t *testing.T) {
	svc, repo, _, _ := setup(t)
	ctx := context.Background()

	j, _, err := svc.Submit(ctx, orchestrator.TurnRequest{Message: "hi", RequesterID: 3}, "")
	require.NoError(t, err)
	_, err = repo.MarkRunning(ctx, j.ID, time.Time{})
	require.NoError(t, err)

	runner := &fakeRunner{}
	_, err = svc.Process(ctx, j.ID, runner)
	require.NoError(t, err)
	assert.Empty(t, runner.got)
}
