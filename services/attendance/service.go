package attendance

import (
	"context"
	"errors"
	"time"

	"promo-controlplane/pkg/calendar"
	"promo-controlplane/pkg/db/option"
	"promo-controlplane/pkg/errutil"
	"promo-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	node *snowflake.Node
	cal  *calendar.Calendar

	attendances repository.Repository[Attendance]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Calendar *calendar.Calendar
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:        p.Node,
		cal:         p.Calendar,
		attendances: repository.ProvideStore[Attendance](p.DB),
	}
}

// CheckIn records one attendance for the caller's current civil day and
// extends the streak when yesterday has a check-in. The existence pre-check
// only shapes the error; the unique index on (user_id, civil_date) is what
// actually rejects the loser of a concurrent duplicate, surfaced as the same
// Conflict.
func (s *Service) CheckIn(ctx context.Context, userID string, now time.Time) (*Attendance, error) {
	if userID == "" {
		return nil, errutil.BadRequest("userId is required", nil)
	}

	today := s.cal.DayStart(now)
	tomorrow := today.Add(24 * time.Hour)
	yesterday := today.Add(-24 * time.Hour)

	existing, err := s.attendances.FindOne(ctx, &Attendance{},
		option.WithCondition("user_id = ? AND civil_date >= ? AND civil_date < ?", userID, today, tomorrow),
	)
	if err != nil {
		return nil, errutil.Internal("failed to check existing attendance", err)
	}
	if existing != nil {
		return nil, errutil.Conflict("already checked in today", nil)
	}

	prev, err := s.attendances.FindOne(ctx, &Attendance{},
		option.WithCondition("user_id = ? AND civil_date >= ? AND civil_date < ?", userID, yesterday, today),
		option.WithOrder("civil_date DESC"),
	)
	if err != nil {
		return nil, errutil.Internal("failed to look up previous attendance", err)
	}

	consecutive := 1
	if prev != nil {
		consecutive = prev.ConsecutiveDays + 1
	}

	a := Attendance{
		ID:              s.node.Generate().String(),
		UserID:          userID,
		CivilDate:       today,
		ConsecutiveDays: consecutive,
	}

	if err := s.attendances.Create(ctx, &a); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("already checked in today", err)
		}
		zap.L().Error("failed to create attendance", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.Internal("failed to create attendance", err)
	}

	return &a, nil
}

// Latest returns the user's most recent attendance record, nil when none.
func (s *Service) Latest(ctx context.Context, userID string) (*Attendance, error) {
	return s.attendances.FindOne(ctx, &Attendance{UserID: userID}, option.WithOrder("civil_date DESC"))
}
