package turnjob

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/suPer8Hu/mygpt/internal/common"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, job *Job) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(job).Error, "create job")
}

func (r *Repo) Get(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, errors.Wrap(err, "load job")
	}
	return &j, nil
}

func (r *Repo) getByIdempotencyKey(ctx context.Context, requesterID uint64, key string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).
		Where("requester_id = ? AND idempotency_key = ?", requesterID, key).
		First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateOrGetExisting creates job, or returns the job already holding the
// same (requester, idempotency key). created reports which happened.
func (r *Repo) CreateOrGetExisting(ctx context.Context, job *Job) (_ *Job, created bool, _ error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.Create(ctx, job); err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	if existing, err := r.getByIdempotencyKey(ctx, job.RequesterID, *job.IdempotencyKey); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, errors.Wrap(err, "load job by key")
	}

	createErr := r.db.WithContext(ctx).Create(job).Error
	if createErr == nil {
		return job, true, nil
	}
	// lost a race with an identical request
	existing, err := r.getByIdempotencyKey(ctx, job.RequesterID, *job.IdempotencyKey)
	if err == nil {
		return existing, false, nil
	}
	return nil, false, errors.Wrap(createErr, "create job")
}

// MarkRunning moves a queued job to running. A job still running with an
// updated_at before staleBefore is reclaimed too; a zero staleBefore only
// claims queued jobs. It reports false when nothing was claimed, e.g. on a
// redelivered message.
func (r *Repo) MarkRunning(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	q := r.db.WithContext(ctx).Model(&Job{})
	if staleBefore.IsZero() {
		q = q.Where("id = ? AND status = ?", id, StatusQueued)
	} else {
		q = q.Where("id = ? AND (status = ? OR (status = ? AND updated_at < ?))",
			id, StatusQueued, StatusRunning, staleBefore)
	}
	res := q.Update("status", StatusRunning)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "mark running")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) MarkSucceeded(ctx context.Context, id, response, modelUsed string, degraded bool) error {
	err := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     StatusSucceeded,
			"response":   response,
			"model_used": modelUsed,
			"degraded":   degraded,
			"error":      nil,
		}).Error
	return errors.Wrap(err, "mark succeeded")
}

func (r *Repo) MarkFailed(ctx context.Context, id, errMsg string) error {
	err := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     StatusFailed,
			"error":      errMsg,
			"response":   nil,
			"model_used": nil,
		}).Error
	return errors.Wrap(err, "mark failed")
}
