package turnjob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/suPer8Hu/mygpt/internal/common"
	"github.com/suPer8Hu/mygpt/internal/conversation"
	"github.com/suPer8Hu/mygpt/internal/orchestrator"
)

const maxIdempotencyKeyLen = 128

var ErrIdempotencyKeyTooLong = fmt.Errorf("%w: idempotency key too long", common.ErrValidation)

// ErrJobInFlight is returned by Process when another worker holds the job and
// it is not yet old enough to reclaim.
var ErrJobInFlight = errors.New("turnjob: job is running elsewhere")

// Publisher hands a job id to the queue.
type Publisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

// TurnRunner executes one turn; *orchestrator.Orchestrator satisfies it.
type TurnRunner interface {
	HandleTurn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error)
}

type Service struct {
	repo      *Repo
	store     conversation.Store
	publisher Publisher
	// running jobs untouched for this long are assumed orphaned by a dead
	// worker; 0 never reclaims
	reclaimAfter time.Duration
}

func NewService(repo *Repo, store conversation.Store, publisher Publisher) *Service {
	return &Service{repo: repo, store: store, publisher: publisher}
}

// WithReclaimAfter lets Process take over running jobs idle for longer than
// d. d must exceed the longest possible turn.
func (s *Service) WithReclaimAfter(d time.Duration) *Service {
	s.reclaimAfter = d
	return s
}

// Submit validates the request, resolves or creates the conversation, records
// the job and enqueues it. A repeated idempotency key returns the original
// job without enqueueing again. Guests all share requester id 0, so their
// keys are ignored and every guest submission is a new job.
func (s *Service) Submit(ctx context.Context, req orchestrator.TurnRequest, idempotencyKey string) (*Job, bool, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, false, fmt.Errorf("%w: message must not be empty", common.ErrValidation)
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if len(idempotencyKey) > maxIdempotencyKeyLen {
		return nil, false, ErrIdempotencyKeyTooLong
	}
	if req.RequesterID == 0 {
		idempotencyKey = ""
	}
	if idempotencyKey != "" {
		if existing, err := s.repo.getByIdempotencyKey(ctx, req.RequesterID, idempotencyKey); err == nil {
			return existing, false, nil
		}
	}

	if req.ConversationID != "" {
		if _, err := s.store.Get(ctx, req.ConversationID, req.RequesterID); err != nil {
			return nil, false, err
		}
		return s.enqueue(ctx, req.RequesterID, req.ConversationID, msg, req.ModelPreference, idempotencyKey)
	}

	var owner *uint64
	if req.RequesterID != 0 {
		id := req.RequesterID
		owner = &id
	}
	conv, err := s.store.Create(ctx, owner)
	if err != nil {
		return nil, false, err
	}
	j, created, err := s.enqueue(ctx, req.RequesterID, conv.ID, msg, req.ModelPreference, idempotencyKey)
	if err != nil || !created {
		// nobody will ever turn in this conversation
		if derr := s.store.Delete(context.WithoutCancel(ctx), conv.ID, req.RequesterID); derr != nil {
			common.LoggerFromContext(ctx).Warn("drop unused conversation", "conversation_id", conv.ID, "err", derr)
		}
	}
	return j, created, err
}

func (s *Service) enqueue(ctx context.Context, requesterID uint64, convID, msg, preference, idempotencyKey string) (*Job, bool, error) {
	jobID, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}
	j := &Job{
		ID:              jobID,
		RequesterID:     requesterID,
		ConversationID:  convID,
		Message:         msg,
		ModelPreference: strings.TrimSpace(preference),
		Status:          StatusQueued,
	}
	if idempotencyKey != "" {
		j.IdempotencyKey = &idempotencyKey
	}

	j, created, err := s.repo.CreateOrGetExisting(ctx, j)
	if err != nil {
		return nil, false, err
	}
	if created {
		if err := s.publisher.PublishJob(ctx, j.ID); err != nil {
			_ = s.repo.MarkFailed(context.WithoutCancel(ctx), j.ID, "enqueue failed")
			return nil, false, errors.Wrap(err, "enqueue job")
		}
	}
	return j, created, nil
}

// Get returns the job if requesterID submitted it; other jobs read as not
// found.
func (s *Service) Get(ctx context.Context, jobID string, requesterID uint64) (*Job, error) {
	j, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.RequesterID != requesterID {
		return nil, common.ErrNotFound
	}
	return j, nil
}

// Timing is what Process measured, for the worker's log line.
type Timing struct {
	Claim time.Duration
	Load  time.Duration
	Turn  time.Duration
	Mark  time.Duration
	Total time.Duration
}

// Process claims and runs one job. A finished job is skipped without error.
// A job running elsewhere yields ErrJobInFlight until it is old enough to
// reclaim. Turn failures are recorded on the job and returned.
func (s *Service) Process(ctx context.Context, jobID string, runner TurnRunner) (tm Timing, err error) {
	start := time.Now()
	defer func() { tm.Total = time.Since(start) }()

	t0 := time.Now()
	var staleBefore time.Time
	if s.reclaimAfter > 0 {
		staleBefore = time.Now().Add(-s.reclaimAfter)
	}
	claimed, err := s.repo.MarkRunning(ctx, jobID, staleBefore)
	tm.Claim = time.Since(t0)
	if err != nil {
		return tm, err
	}
	if !claimed {
		j, err := s.repo.Get(ctx, jobID)
		if err != nil {
			return tm, err
		}
		if j.Status == StatusRunning && s.reclaimAfter > 0 {
			return tm, ErrJobInFlight
		}
		return tm, nil
	}

	t1 := time.Now()
	j, err := s.repo.Get(ctx, jobID)
	tm.Load = time.Since(t1)
	if err != nil {
		return tm, err
	}

	t2 := time.Now()
	res, turnErr := runner.HandleTurn(ctx, orchestrator.TurnRequest{
		Message:         j.Message,
		ConversationID:  j.ConversationID,
		ModelPreference: j.ModelPreference,
		RequesterID:     j.RequesterID,
	})
	tm.Turn = time.Since(t2)

	t3 := time.Now()
	markCtx := context.WithoutCancel(ctx)
	if turnErr != nil {
		err = s.repo.MarkFailed(markCtx, jobID, turnErr.Error())
	} else {
		err = s.repo.MarkSucceeded(markCtx, jobID, res.Response, res.ModelUsed, res.Degraded)
	}
	tm.Mark = time.Since(t3)
	if turnErr != nil {
		return tm, turnErr
	}
	return tm, err
}
