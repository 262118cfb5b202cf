package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"promo-controlplane/pkg/calendar"
	"promo-controlplane/pkg/errutil"
	"promo-controlplane/pkg/repository"
	"promo-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var kst = time.FixedZone("KST", 9*60*60)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Attendance{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &Service{
		node:        node,
		cal:         calendar.InZone(kst),
		attendances: repository.ProvideStore[Attendance](db),
	}
}

func requireCode(t *testing.T, err error, code errutil.CoreStatus) {
	t.Helper()

	var base errutil.BaseError
	require.True(t, errors.As(err, &base), "expected BaseError, got %v", err)
	require.Equal(t, code, base.Code)
}

func TestCheckInStreak(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	day1 := time.Date(2025, 1, 1, 12, 0, 0, 0, kst)

	for i := 0; i < 3; i++ {
		a, err := svc.CheckIn(ctx, "user-1", day1.AddDate(0, 0, i))
		require.NoError(t, err)
		require.Equal(t, i+1, a.ConsecutiveDays)
	}
}

func TestCheckInDuplicateSameDay(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	morning := time.Date(2025, 1, 1, 9, 0, 0, 0, kst)
	evening := time.Date(2025, 1, 1, 22, 30, 0, 0, kst)

	_, err := svc.CheckIn(ctx, "user-1", morning)
	require.NoError(t, err)

	_, err = svc.CheckIn(ctx, "user-1", evening)
	requireCode(t, err, errutil.StatusConflict)
}

func TestCheckInStreakResetsAfterGap(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	day1 := time.Date(2025, 1, 1, 12, 0, 0, 0, kst)

	a, err := svc.CheckIn(ctx, "user-1", day1)
	require.NoError(t, err)
	require.Equal(t, 1, a.ConsecutiveDays)

	a, err = svc.CheckIn(ctx, "user-1", day1.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, 2, a.ConsecutiveDays)

	// skip Jan 3
	a, err = svc.CheckIn(ctx, "user-1", day1.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Equal(t, 1, a.ConsecutiveDays)
}

func TestCheckInCivilDayBoundary(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// 20:00 UTC on Mar 10 is already 05:00 Mar 11 in KST.
	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)

	a, err := svc.CheckIn(ctx, "user-1", now)
	require.NoError(t, err)

	wantMidnight := time.Date(2025, 3, 11, 0, 0, 0, 0, kst).UTC()
	require.True(t, a.CivilDate.Equal(wantMidnight), "civil date %v, want %v", a.CivilDate, wantMidnight)

	// 14:00 UTC the same day falls on Mar 10 in KST and is a different civil day.
	b, err := svc.CheckIn(ctx, "user-1", time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.False(t, b.CivilDate.Equal(a.CivilDate))
}

func TestCheckInUsersAreIndependent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, kst)

	a, err := svc.CheckIn(ctx, "user-1", now)
	require.NoError(t, err)
	require.Equal(t, 1, a.ConsecutiveDays)

	b, err := svc.CheckIn(ctx, "user-2", now)
	require.NoError(t, err)
	require.Equal(t, 1, b.ConsecutiveDays)
}

func TestConcurrentCheckInSameDay(t *testing.T) {
	svc := newTestService(t)
	now := time.Date(2025, 1, 5, 12, 0, 0, 0, kst)

	const attempts = 4
	results := make([]error, attempts)

	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		i := i
		g.Go(func() error {
			_, err := svc.CheckIn(context.Background(), "user-1", now)
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

	require.Equal(t, 1, ok, "exactly one concurrent check-in must win")
	require.Equal(t, attempts-1, conflict)
}

func TestCheckInRequiresUser(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CheckIn(context.Background(), "", time.Now())
	requireCode(t, err, errutil.StatusBadRequest)
}
