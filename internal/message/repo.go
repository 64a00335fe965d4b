package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/suPer8Hu/chatform/internal/common"
)

var (
	ErrNotFound = errors.New("message record not found")
	// ErrAlreadyFinalized is returned when a terminal update conflicts with the
	// terminal state a record already has.
	ErrAlreadyFinalized = errors.New("message record already finalized")
)

var openStatuses = []Status{StatusPending, StatusProcessing}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) AutoMigrate() error {
	return r.db.AutoMigrate(&Record{})
}

// Create inserts rec, assigning its ID and the pending status when unset.
func (r *Repo) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		id, err := common.NewULID()
		if err != nil {
			return err
		}
		rec.ID = id
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repo) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// MarkProcessing moves a pending record to processing. Records in any other
// state are left untouched.
func (r *Repo) MarkProcessing(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Record{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Update("status", StatusProcessing).Error
}

func (r *Repo) Complete(ctx context.Context, id string, response string) error {
	return r.finalize(ctx, id, StatusCompleted, response, map[string]any{
		"status":        StatusCompleted,
		"response_text": response,
		"error_message": nil,
	})
}

func (r *Repo) Fail(ctx context.Context, id string, errMsg string) error {
	return r.finalize(ctx, id, StatusError, errMsg, map[string]any{
		"status":        StatusError,
		"error_message": errMsg,
		"response_text": nil,
	})
}

// finalize applies a terminal update only to a non-terminal record. Repeating
// the exact same terminal update is a no-op.
func (r *Repo) finalize(ctx context.Context, id string, to Status, payload string, fields map[string]any) error {
	tx := r.db.WithContext(ctx).Model(&Record{}).
		Where("id = ? AND status IN ?", id, openStatuses).
		Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected > 0 {
		return nil
	}

	cur, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status == to && samePayload(cur, to, payload) {
		return nil
	}
	return fmt.Errorf("%w: id=%s status=%s", ErrAlreadyFinalized, id, cur.Status)
}

func samePayload(rec *Record, status Status, payload string) bool {
	switch status {
	case StatusCompleted:
		return rec.ResponseText != nil && *rec.ResponseText == payload && rec.ErrorMessage == nil
	case StatusError:
		return rec.ErrorMessage != nil && *rec.ErrorMessage == payload && rec.ResponseText == nil
	}
	return false
}

// ListByUser returns records in DESC id order (newest -> oldest).
func (r *Repo) ListByUser(ctx context.Context, userID string, limit int, beforeID string) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit)

	if beforeID != "" {
		q = q.Where("id < ?", beforeID)
	}

	var out []Record
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListStale returns non-terminal records not touched since olderThan, oldest first.
func (r *Repo) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Record
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", openStatuses, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
