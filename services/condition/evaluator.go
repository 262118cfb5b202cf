package condition

import (
	"context"
	"fmt"
	"strconv"

	"promo-controlplane/pkg/celengine"
	"promo-controlplane/pkg/errutil"
	"promo-controlplane/services/attendance"
	"promo-controlplane/services/event"
	"promo-controlplane/services/referral"

	"go.uber.org/fx"
)

// AttendanceReader is the slice of the attendance service the evaluator
// needs: the user's most recent check-in, nil when none exists.
type AttendanceReader interface {
	Latest(ctx context.Context, userID string) (*attendance.Attendance, error)
}

// ReferralCounter counts accepted invitations crediting a user as inviter.
type ReferralCounter interface {
	CountByInviter(ctx context.Context, inviterID string) (int64, error)
}

type Evaluator struct {
	attendance AttendanceReader
	referrals  ReferralCounter
}

type EvaluatorParams struct {
	fx.In

	Attendance *attendance.Service
	Referral   *referral.Service
}

func NewEvaluator(p EvaluatorParams) *Evaluator {
	return &Evaluator{
		attendance: p.Attendance,
		referrals:  p.Referral,
	}
}

var Module = fx.Module("condition.evaluator",
	fx.Provide(NewEvaluator),
)

// Evaluate decides whether the user satisfies the event's condition. A nil
// condition passes. A failed requirement returns an error naming the
// condition type and its threshold.
func (e *Evaluator) Evaluate(ctx context.Context, c *event.Condition, userID string) error {
	if c == nil {
		return nil
	}

	switch c.Type {
	case event.ConditionConsecutiveAttendance:
		latest, err := e.attendance.Latest(ctx, userID)
		if err != nil {
			return errutil.Internal("failed to load attendance", err)
		}
		if latest == nil || latest.ConsecutiveDays < c.Threshold {
			return notMet(c)
		}
		return nil

	case event.ConditionInviteFriend:
		count, err := e.referrals.CountByInviter(ctx, userID)
		if err != nil {
			return errutil.Internal("failed to count referrals", err)
		}
		if count < int64(c.Threshold) {
			return notMet(c)
		}
		return nil

	case event.ConditionParticipationVerification:
		// Proof is verified out-of-band; nothing is checked here. Known
		// weak point carried over deliberately.
		return nil

	case event.ConditionRuleExpression:
		return e.evaluateRule(ctx, c, userID)

	default:
		return errutil.Internal(fmt.Sprintf("unknown condition type %q", c.Type), nil)
	}
}

func (e *Evaluator) evaluateRule(ctx context.Context, c *event.Condition, userID string) error {
	consecutive := 0
	if latest, err := e.attendance.Latest(ctx, userID); err != nil {
		return errutil.Internal("failed to load attendance", err)
	} else if latest != nil {
		consecutive = latest.ConsecutiveDays
	}

	count, err := e.referrals.CountByInviter(ctx, userID)
	if err != nil {
		return errutil.Internal("failed to count referrals", err)
	}

	attrs := map[string]interface{}{
		"consecutive_days": consecutive,
		"invite_count":     int(count),
	}

	env, err := celengine.GetOrBuildEnv(attrs)
	if err != nil {
		return errutil.Internal("failed to build rule environment", err)
	}

	ok, err := celengine.Evaluate(env, c.Description, attrs)
	if err != nil {
		return errutil.Internal("failed to evaluate rule expression", err)
	}
	if !ok {
		return notMet(c)
	}
	return nil
}

func notMet(c *event.Condition) error {
	return errutil.UnprocessableEntity(
		fmt.Sprintf("condition %s not met", c.Type),
		nil,
		errutil.WithDetails(
			errutil.Detail{Field: "condition.type", Message: string(c.Type)},
			errutil.Detail{Field: "condition.threshold", Message: strconv.Itoa(c.Threshold)},
		),
	)
}
