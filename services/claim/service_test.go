package claim

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"promo-controlplane/pkg/calendar"
	"promo-controlplane/pkg/client"
	"promo-controlplane/pkg/errutil"
	"promo-controlplane/pkg/identity"
	"promo-controlplane/services/attendance"
	"promo-controlplane/services/condition"
	"promo-controlplane/services/event"
	"promo-controlplane/services/referral"
	"promo-controlplane/services/reward"
	"promo-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type seqStub struct {
	n int
}

func (s *seqStub) NextClaimCode(ctx context.Context) (string, error) {
	s.n++
	return fmt.Sprintf("CLM-%03d", s.n), nil
}

func (s *seqStub) NextInviteCode(ctx context.Context) (string, error) {
	s.n++
	return fmt.Sprintf("INV-%03d", s.n), nil
}

type identityStub struct {
	user *client.User
}

func (s *identityStub) ResolveUserByEmail(ctx context.Context, email string) (*client.User, error) {
	if s.user == nil {
		return nil, errutil.NotFound("user not found", nil)
	}
	return s.user, nil
}

type fixture struct {
	db         *gorm.DB
	claims     *Service
	attendance *attendance.Service
	referral   *referral.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&event.Event{},
		&reward.Reward{},
		&attendance.Attendance{},
		&referral.Referral{},
		&Claim{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	att := attendance.NewService(attendance.ServiceParams{
		DB:       db,
		Node:     node,
		Calendar: calendar.InZone(time.UTC),
	})
	ref := referral.NewService(referral.ServiceParams{
		DB:       db,
		Node:     node,
		Seq:      &seqStub{},
		Identity: &identityStub{user: &client.User{ID: "inviter-1"}},
	})
	eval := condition.NewEvaluator(condition.EvaluatorParams{
		Attendance: att,
		Referral:   ref,
	})
	claims := NewService(ServiceParams{
		DB:        db,
		Node:      node,
		Seq:       &seqStub{},
		Evaluator: eval,
	})

	return &fixture{db: db, claims: claims, attendance: att, referral: ref}
}

func (f *fixture) newEvent(t *testing.T, title string, start, end time.Time, status event.Status, cond *event.Condition) *event.Event {
	t.Helper()

	e := &event.Event{
		ID:        fmt.Sprintf("evt-%s-%d", title, time.Now().UnixNano()),
		Title:     title,
		StartDate: start,
		EndDate:   end,
		Status:    status,
	}
	require.NoError(t, e.SetCondition(cond))
	require.NoError(t, f.db.Create(e).Error)
	return e
}

func (f *fixture) newReward(t *testing.T, eventID, name string) *reward.Reward {
	t.Helper()

	r := &reward.Reward{
		ID:       fmt.Sprintf("rwd-%s-%d", name, time.Now().UnixNano()),
		EventID:  eventID,
		Name:     name,
		Type:     reward.TypePoint,
		Quantity: 100,
	}
	require.NoError(t, f.db.Create(r).Error)
	return r
}

func requireCode(t *testing.T, err error, code errutil.CoreStatus) {
	t.Helper()

	var base errutil.BaseError
	require.True(t, errors.As(err, &base), "expected BaseError, got %v", err)
	require.Equal(t, code, base.Code)
}

var (
	janStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	janEnd   = time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)
)

func TestRequestRewardStreakScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.newEvent(t, "streak", janStart, janEnd, event.StatusOngoing,
		&event.Condition{Type: event.ConditionConsecutiveAttendance, Threshold: 3})
	r := f.newReward(t, e.ID, "100 points")

	day := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		a, err := f.attendance.CheckIn(ctx, "user-1", day.AddDate(0, 0, i))
		require.NoError(t, err)
		require.Equal(t, i+1, a.ConsecutiveDays)
	}

	day3 := day.AddDate(0, 0, 2)
	c, err := f.claims.RequestReward(ctx, "user-1", e.ID, r.ID, day3)
	require.NoError(t, err)
	require.Equal(t, StatusPending, c.Status)
	require.Nil(t, c.RewardAt)
	require.NotEmpty(t, c.ClaimCode)

	_, err = f.claims.RequestReward(ctx, "user-1", e.ID, r.ID, day3)
	requireCode(t, err, errutil.StatusConflict)
}

func TestRequestRewardConditionNotMet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.newEvent(t, "streak", janStart, janEnd, event.StatusOngoing,
		&event.Condition{Type: event.ConditionConsecutiveAttendance, Threshold: 3})
	r := f.newReward(t, e.ID, "100 points")

	day := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		_, err := f.attendance.CheckIn(ctx, "user-1", day.AddDate(0, 0, i))
		require.NoError(t, err)
	}

	_, err := f.claims.RequestReward(ctx, "user-1", e.ID, r.ID, day.AddDate(0, 0, 1))
	var base errutil.BaseError
	require.True(t, errors.As(err, &base))
	require.Equal(t, errutil.StatusUnprocessableEntity, base.Code)
	require.NotEmpty(t, base.Details, "condition failure must name the unmet requirement")

	count, err := f.claims.claims.Count(ctx, &Claim{UserID: "user-1"})
	require.NoError(t, err)
	require.Zero(t, count, "no claim may be written when the condition fails")
}

func TestRequestRewardInviteCondition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.newEvent(t, "invite", janStart, janEnd, event.StatusOngoing,
		&event.Condition{Type: event.ConditionInviteFriend, Threshold: 2})
	r := f.newReward(t, e.ID, "coupon")

	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	_, err := f.claims.RequestReward(ctx, "inviter-1", e.ID, r.ID, now)
	requireCode(t, err, errutil.StatusUnprocessableEntity)

	for i := 0; i < 2; i++ {
		_, err := f.referral.InviteFriend(ctx, referral.InviteFriendRequest{
			InviterEmail: "inviter@example.com",
			InviteeID:    fmt.Sprintf("invitee-%d", i),
			InviteeEmail: fmt.Sprintf("friend%d@example.com", i),
		}, now)
		require.NoError(t, err)
	}

	c, err := f.claims.RequestReward(ctx, "inviter-1", e.ID, r.ID, now)
	require.NoError(t, err)
	require.Equal(t, StatusPending, c.Status)
}

func TestRequestRewardNoConditionPasses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.newEvent(t, "open", janStart, janEnd, event.StatusOngoing, nil)
	r := f.newReward(t, e.ID, "item")

	c, err := f.claims.RequestReward(ctx, "user-1", e.ID, r.ID, janStart.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, StatusPending, c.Status)
}

func TestRequestRewardStaleStoredStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Stored status still says ONGOING; the window is the source of truth.
	e := f.newEvent(t, "stale", janStart, janEnd, event.StatusOngoing, nil)
	r := f.newReward(t, e.ID, "item")

	after := janEnd.Add(time.Hour)
	_, err := f.claims.RequestReward(ctx, "user-1", e.ID, r.ID, after)
	requireCode(t, err, errutil.StatusUnprocessableEntity)

	before := janStart.Add(-time.Hour)
	_, err = f.claims.RequestReward(ctx, "user-1", e.ID, r.ID, before)
	requireCode(t, err, errutil.StatusUnprocessableEntity)
}

func TestRequestRewardOperatorStoppedEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.newEvent(t, "canceled", janStart, janEnd, event.StatusCanceled, nil)
	r := f.newReward(t, e.ID, "item")

	_, err := f.claims.RequestReward(ctx, "user-1", e.ID, r.ID, janStart.Add(time.Hour))
	requireCode(t, err, errutil.StatusUnprocessableEntity)
}

func TestRequestRewardNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := janStart.Add(time.Hour)

	_, err := f.claims.RequestReward(ctx, "user-1", "missing-event", "missing-reward", now)
	requireCode(t, err, errutil.StatusNotFound)

	e := f.newEvent(t, "real", janStart, janEnd, event.StatusOngoing, nil)
	_, err = f.claims.RequestReward(ctx, "user-1", e.ID, "missing-reward", now)
	requireCode(t, err, errutil.StatusNotFound)

	// reward belonging to another event is not claimable through this one
	other := f.newEvent(t, "other", janStart, janEnd, event.StatusOngoing, nil)
	foreign := f.newReward(t, other.ID, "foreign")
	_, err = f.claims.RequestReward(ctx, "user-1", e.ID, foreign.ID, now)
	requireCode(t, err, errutil.StatusNotFound)

	_, err = f.claims.RequestReward(ctx, "", e.ID, foreign.ID, now)
	requireCode(t, err, errutil.StatusBadRequest)
}

func TestConcurrentRequestReward(t *testing.T) {
	f := newFixture(t)

	e := f.newEvent(t, "race", janStart, janEnd, event.StatusOngoing, nil)
	r := f.newReward(t, e.ID, "item")
	now := janStart.Add(time.Hour)

	const attempts = 4
	results := make([]error, attempts)

	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		i := i
		g.Go(func() error {
			_, err := f.claims.RequestReward(context.Background(), "user-1", e.ID, r.ID, now)
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, conflict int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		default:
			var base errutil.BaseError
			require.True(t, errors.As(err, &base))
			require.Equal(t, errutil.StatusConflict, base.Code)
			conflict++
		}
	}
	require.Equal(t, 1, ok, "exactly one concurrent claim must win")
	require.Equal(t, attempts-1, conflict)

	count, err := f.claims.claims.Count(context.Background(), &Claim{UserID: "user-1", EventID: e.ID, RewardID: r.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestRequestRewardIdempotentAcrossStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.newEvent(t, "once", janStart, janEnd, event.StatusOngoing, nil)
	r := f.newReward(t, e.ID, "item")
	now := janStart.Add(time.Hour)

	c, err := f.claims.RequestReward(ctx, "user-1", e.ID, r.ID, now)
	require.NoError(t, err)

	operator := identity.Caller{UserID: "op-1", Role: identity.RoleOperator}
	_, err = f.claims.UpdateClaimStatus(ctx, operator, c.ID, StatusSuccess, now.Add(time.Hour))
	require.NoError(t, err)

	// terminal status does not reopen the claim slot
	_, err = f.claims.RequestReward(ctx, "user-1", e.ID, r.ID, now.Add(2*time.Hour))
	requireCode(t, err, errutil.StatusConflict)
}

func TestUpdateClaimStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.newEvent(t, "fulfill", janStart, janEnd, event.StatusOngoing, nil)
	r := f.newReward(t, e.ID, "item")
	now := janStart.Add(time.Hour)

	c, err := f.claims.RequestReward(ctx, "user-1", e.ID, r.ID, now)
	require.NoError(t, err)

	operator := identity.Caller{UserID: "op-1", Role: identity.RoleOperator}
	user := identity.Caller{UserID: "user-1", Role: identity.RoleUser}

	_, err = f.claims.UpdateClaimStatus(ctx, user, c.ID, StatusSuccess, now)
	requireCode(t, err, errutil.StatusForbidden)

	_, err = f.claims.UpdateClaimStatus(ctx, operator, c.ID, StatusPending, now)
	requireCode(t, err, errutil.StatusBadRequest)

	_, err = f.claims.UpdateClaimStatus(ctx, operator, "missing", StatusSuccess, now)
	requireCode(t, err, errutil.StatusNotFound)

	fulfilled := now.Add(time.Hour)
	updated, err := f.claims.UpdateClaimStatus(ctx, operator, c.ID, StatusSuccess, fulfilled)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, updated.Status)
	require.NotNil(t, updated.RewardAt)
	require.True(t, updated.RewardAt.Equal(fulfilled))

	// terminal claims are immutable
	_, err = f.claims.UpdateClaimStatus(ctx, operator, c.ID, StatusFailure, fulfilled)
	requireCode(t, err, errutil.StatusConflict)

	stored, err := f.claims.claims.FindOne(ctx, &Claim{ID: c.ID})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, stored.Status)
	require.NotNil(t, stored.RewardAt)
}

func TestUpdateClaimStatusFailureLeavesRewardAtEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.newEvent(t, "deny", janStart, janEnd, event.StatusOngoing, nil)
	r := f.newReward(t, e.ID, "item")

	c, err := f.claims.RequestReward(ctx, "user-1", e.ID, r.ID, janStart.Add(time.Hour))
	require.NoError(t, err)

	operator := identity.Caller{UserID: "op-1", Role: identity.RoleOperator}
	updated, err := f.claims.UpdateClaimStatus(ctx, operator, c.ID, StatusFailure, janStart.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, StatusFailure, updated.Status)
	require.Nil(t, updated.RewardAt)
}

func TestGetRewardHistoryScopesNonPrivilegedCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.newEvent(t, "history", janStart, janEnd, event.StatusOngoing, nil)
	r1 := f.newReward(t, e.ID, "points")
	r2 := f.newReward(t, e.ID, "coupon")
	now := janStart.Add(time.Hour)

	_, err := f.claims.RequestReward(ctx, "user-1", e.ID, r1.ID, now)
	require.NoError(t, err)
	_, err = f.claims.RequestReward(ctx, "user-2", e.ID, r2.ID, now)
	require.NoError(t, err)

	// a non-privileged caller asking for another user's history gets their own
	user := identity.Caller{UserID: "user-1", Role: identity.RoleUser}
	history, err := f.claims.GetRewardHistory(ctx, user, "user-2", "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Len(t, history[0].Claims, 1)
	require.Equal(t, r1.ID, history[0].Claims[0].RewardID)

	operator := identity.Caller{UserID: "op-1", Role: identity.RoleOperator}
	history, err = f.claims.GetRewardHistory(ctx, operator, "user-2", "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, r2.ID, history[0].Claims[0].RewardID)
}

func TestGetRewardHistoryGroupsByEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e1 := f.newEvent(t, "first", janStart, janEnd, event.StatusOngoing, nil)
	e2 := f.newEvent(t, "second", janStart, janEnd, event.StatusOngoing, nil)
	r1 := f.newReward(t, e1.ID, "points")
	r2 := f.newReward(t, e1.ID, "coupon")
	r3 := f.newReward(t, e2.ID, "item")

	// claims inserted directly so created_at ordering is deterministic
	base := janStart.Add(time.Hour)
	for i, row := range []struct {
		reward  *reward.Reward
		eventID string
	}{
		{r1, e1.ID},
		{r3, e2.ID},
		{r2, e1.ID},
	} {
		require.NoError(t, f.db.Create(&Claim{
			ID:        fmt.Sprintf("clm-%d", i),
			ClaimCode: fmt.Sprintf("CLM-%03d", i),
			UserID:    "user-1",
			EventID:   row.eventID,
			RewardID:  row.reward.ID,
			Status:    StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	user := identity.Caller{UserID: "user-1", Role: identity.RoleUser}
	history, err := f.claims.GetRewardHistory(ctx, user, "", "")
	require.NoError(t, err)
	require.Len(t, history, 2)

	// newest claim first, so the event of the newest claim leads
	require.Equal(t, e1.ID, history[0].EventID)
	require.Equal(t, "first", history[0].EventTitle)
	require.Len(t, history[0].Claims, 2)
	require.Equal(t, r2.ID, history[0].Claims[0].RewardID, "claims within a group are newest first")
	require.Equal(t, r1.ID, history[0].Claims[1].RewardID)
	require.Equal(t, "points", history[0].Claims[1].RewardName)

	require.Equal(t, e2.ID, history[1].EventID)
	require.Len(t, history[1].Claims, 1)

	// eventId filter narrows the result
	filtered, err := f.claims.GetRewardHistory(ctx, user, "", e2.ID)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, e2.ID, filtered[0].EventID)
}

func TestGetRewardHistoryEmpty(t *testing.T) {
	f := newFixture(t)

	user := identity.Caller{UserID: "user-1", Role: identity.RoleUser}
	history, err := f.claims.GetRewardHistory(context.Background(), user, "", "")
	require.NoError(t, err)
	require.Empty(t, history)
}
