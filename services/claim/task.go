package claim

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var TaskModule = fx.Module("task.claim",
	fx.Provide(NewTask),
)

type Task struct {
	db *gorm.DB
}

type TaskParams struct {
	fx.In

	DB *gorm.DB
}

func NewTask(p TaskParams) *Task {
	return &Task{db: p.DB}
}

// HandleClaimNotifyTask marks a freshly created claim as notified. The task
// is idempotent: a redelivered payload for an already notified claim is a
// no-op.
func (t *Task) HandleClaimNotifyTask(ctx context.Context, task *asynq.Task) error {
	var payload ClaimNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("task_type", task.Type()),
		zap.String("claim_id", payload.ClaimID),
		zap.String("user_id", payload.UserID),
	)

	var c Claim
	if err := t.db.WithContext(ctx).
		Where("id = ?", payload.ClaimID).
		First(&c).Error; err != nil {
		zapLog.Error("failed to find claim record", zap.Error(err))
		return err
	}

	if c.NotifiedAt != nil {
		zapLog.Info("claim already notified, skipping")
		return nil
	}

	zapLog.Info("notifying claim",
		zap.String("claim_code", c.ClaimCode),
		zap.String("event_id", c.EventID),
	)

	if err := t.db.WithContext(ctx).
		Model(&Claim{}).
		Where("id = ? AND notified_at IS NULL", c.ID).
		Update("notified_at", time.Now().UTC()).Error; err != nil {
		zapLog.Error("failed to mark claim as notified", zap.Error(err))
		return err
	}

	return nil
}
