package claim

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"promo-controlplane/services/testutil"
)

func newNotifyTask(t *testing.T, payload ClaimNotifyPayload) *asynq.Task {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(ClaimNotify, raw)
}

func TestHandleClaimNotifyTask(t *testing.T) {
	db := testutil.NewTestDB(t, &Claim{})
	task := NewTask(TaskParams{DB: db})

	require.NoError(t, db.Create(&Claim{
		ID:       "clm-1",
		UserID:   "user-1",
		EventID:  "evt-1",
		RewardID: "rwd-1",
		Status:   StatusPending,
	}).Error)

	err := task.HandleClaimNotifyTask(context.Background(),
		newNotifyTask(t, ClaimNotifyPayload{ClaimID: "clm-1", UserID: "user-1", EventID: "evt-1"}))
	require.NoError(t, err)

	var c Claim
	require.NoError(t, db.Where("id = ?", "clm-1").First(&c).Error)
	require.NotNil(t, c.NotifiedAt)

	// redelivery keeps the original timestamp
	first := *c.NotifiedAt
	err = task.HandleClaimNotifyTask(context.Background(),
		newNotifyTask(t, ClaimNotifyPayload{ClaimID: "clm-1"}))
	require.NoError(t, err)

	require.NoError(t, db.Where("id = ?", "clm-1").First(&c).Error)
	require.True(t, c.NotifiedAt.Equal(first))
}

func TestHandleClaimNotifyTaskInvalidPayload(t *testing.T) {
	db := testutil.NewTestDB(t, &Claim{})
	task := NewTask(TaskParams{DB: db})

	err := task.HandleClaimNotifyTask(context.Background(), asynq.NewTask(ClaimNotify, []byte("{")))
	require.Error(t, err)
}

func TestHandleClaimNotifyTaskMissingClaim(t *testing.T) {
	db := testutil.NewTestDB(t, &Claim{})
	task := NewTask(TaskParams{DB: db})

	err := task.HandleClaimNotifyTask(context.Background(),
		newNotifyTask(t, ClaimNotifyPayload{ClaimID: "ghost"}))
	require.Error(t, err)
}
