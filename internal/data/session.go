package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// sessionRowID is the fixed primary key of the single session_state row.
const sessionRowID = 1

// SessionRepo implements the biz-layer SessionRepo interface. The trading
// loop's iteration count lives in MySQL so a restart resumes counting where
// the previous process stopped.
type SessionRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewSessionRepo creates a new session state repository.
func NewSessionRepo(db *gorm.DB, logger log.Logger) *SessionRepo {
	return &SessionRepo{
		db:     db,
		logger: log.NewHelper(logger),
	}
}

// Load returns the session state, creating the row on first startup.
func (r *SessionRepo) Load(ctx context.Context) (*SessionState, error) {
	var state SessionState
	err := r.db.WithContext(ctx).
		Where("id = ?", sessionRowID).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			state = SessionState{
				ID:        sessionRowID,
				StartedAt: time.Now(),
			}
			if err := r.db.WithContext(ctx).Create(&state).Error; err != nil {
				return nil, fmt.Errorf("failed to create session state: %w", err)
			}
			r.logger.Infow("msg", "new trading session started", "type", "startup")
			return &state, nil
		}
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}
	return &state, nil
}

// IncrementIteration bumps the persisted iteration counter and returns the
// new value.
func (r *SessionRepo) IncrementIteration(ctx context.Context) (int64, error) {
	err := r.db.WithContext(ctx).
		Model(&SessionState{}).
		Where("id = ?", sessionRowID).
		UpdateColumn("iteration_count", gorm.Expr("iteration_count + 1")).Error
	if err != nil {
		return 0, fmt.Errorf("failed to increment iteration count: %w", err)
	}

	var state SessionState
	if err := r.db.WithContext(ctx).Where("id = ?", sessionRowID).First(&state).Error; err != nil {
		return 0, fmt.Errorf("failed to reload session state: %w", err)
	}
	return state.IterationCount, nil
}
