package claim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"promo-controlplane/pkg/db/option"
	"promo-controlplane/pkg/errutil"
	"promo-controlplane/pkg/identity"
	"promo-controlplane/pkg/repository"
	"promo-controlplane/pkg/sequence"
	"promo-controlplane/services/condition"
	"promo-controlplane/services/event"
	"promo-controlplane/services/reward"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ConditionEvaluator decides whether a user satisfies an event's condition.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, c *event.Condition, userID string) error
}

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	seq       sequence.Generator
	asynq     *asynq.Client
	evaluator ConditionEvaluator

	events  repository.Repository[event.Event]
	rewards repository.Repository[reward.Reward]
	claims  repository.Repository[Claim]
}

type ServiceParams struct {
	fx.In

	DB        *gorm.DB
	Node      *snowflake.Node
	Seq       sequence.Generator
	Asynq     *asynq.Client `optional:"true"`
	Evaluator *condition.Evaluator
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		seq:       p.Seq,
		asynq:     p.Asynq,
		evaluator: p.Evaluator,
		events:    repository.ProvideStore[event.Event](p.DB),
		rewards:   repository.ProvideStore[reward.Reward](p.DB),
		claims:    repository.ProvideStore[Claim](p.DB),
	}
}

// RequestReward creates the user's claim for one reward of one event.
// Activity is re-derived from the event window at call time because the
// stored status can be stale between writes. The duplicate pre-check gives a
// friendly error; the unique index on (user_id, event_id, reward_id) is what
// rejects the loser of a concurrent duplicate, remapped to the same Conflict.
func (s *Service) RequestReward(ctx context.Context, userID, eventID, rewardID string, now time.Time) (*Claim, error) {
	if userID == "" || eventID == "" || rewardID == "" {
		return nil, errutil.BadRequest("userId, eventId and rewardId are required", nil)
	}

	e, err := s.events.FindOne(ctx, &event.Event{ID: eventID})
	if err != nil {
		return nil, errutil.Internal("failed to load event", err)
	}
	if e == nil {
		return nil, errutil.NotFound(fmt.Sprintf("event %s not found", eventID), nil)
	}

	r, err := s.rewards.FindOne(ctx, &reward.Reward{ID: rewardID, EventID: eventID})
	if err != nil {
		return nil, errutil.Internal("failed to load reward", err)
	}
	if r == nil {
		return nil, errutil.NotFound(fmt.Sprintf("reward %s not found for event %s", rewardID, eventID), nil)
	}

	if e.Status.Operator() {
		return nil, errutil.UnprocessableEntity("event is not active", nil)
	}
	if derived := event.DeriveStatus(e.StartDate, e.EndDate, now); derived != event.StatusOngoing {
		return nil, errutil.UnprocessableEntity("event is outside its period", nil)
	}

	existing, err := s.claims.FindOne(ctx, &Claim{UserID: userID, EventID: eventID, RewardID: rewardID})
	if err != nil {
		return nil, errutil.Internal("failed to check existing claim", err)
	}
	if existing != nil {
		return nil, errutil.Conflict("reward already claimed", nil)
	}

	cond, err := e.ParsedCondition()
	if err != nil {
		return nil, errutil.Internal("failed to parse event condition", err)
	}
	if err := s.evaluator.Evaluate(ctx, cond, userID); err != nil {
		return nil, err
	}

	code, err := s.seq.NextClaimCode(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to issue claim code", err)
	}

	c := Claim{
		ID:        s.node.Generate().String(),
		ClaimCode: code,
		UserID:    userID,
		EventID:   eventID,
		RewardID:  rewardID,
		Status:    StatusPending,
	}

	if err := s.claims.Create(ctx, &c); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("reward already claimed", err)
		}
		zap.L().Error("failed to create claim", zap.String("user_id", userID), zap.String("event_id", eventID), zap.Error(err))
		return nil, errutil.Internal("failed to create claim", err)
	}

	s.enqueueNotify(ctx, &c)

	return &c, nil
}

// enqueueNotify hands the new claim to the worker. Notification is best
// effort; the claim itself is already durable.
func (s *Service) enqueueNotify(ctx context.Context, c *Claim) {
	if s.asynq == nil {
		return
	}

	payload, err := json.Marshal(ClaimNotifyPayload{
		ClaimID: c.ID,
		UserID:  c.UserID,
		EventID: c.EventID,
	})
	if err != nil {
		zap.L().Error("failed to marshal claim notify payload", zap.Error(err))
		return
	}

	if _, err := s.asynq.EnqueueContext(ctx, asynq.NewTask(ClaimNotify, payload), asynq.Queue("claims")); err != nil {
		zap.L().Error("failed to enqueue claim notify task", zap.String("claim_id", c.ID), zap.Error(err))
	}
}

// UpdateClaimStatus is the fulfillment side of the claim lifecycle, kept
// separate from claim creation. Only PENDING claims may move, only to
// SUCCESS or FAILURE, and the transition is guarded by a conditional update
// so a concurrent fulfillment loses cleanly with Conflict.
func (s *Service) UpdateClaimStatus(ctx context.Context, caller identity.Caller, claimID string, status Status, now time.Time) (*Claim, error) {
	if !caller.Role.Privileged() {
		return nil, errutil.Forbidden("claim fulfillment requires an operator role", nil)
	}
	if claimID == "" {
		return nil, errutil.BadRequest("claimId is required", nil)
	}
	if !status.Terminal() {
		return nil, errutil.BadRequest(fmt.Sprintf("claim status must be %s or %s", StatusSuccess, StatusFailure), nil)
	}

	c, err := s.claims.FindOne(ctx, &Claim{ID: claimID})
	if err != nil {
		return nil, errutil.Internal("failed to load claim", err)
	}
	if c == nil {
		return nil, errutil.NotFound(fmt.Sprintf("claim %s not found", claimID), nil)
	}
	if c.Status.Terminal() {
		return nil, errutil.Conflict(fmt.Sprintf("claim is already %s", c.Status), nil)
	}

	updates := map[string]any{"status": status, "updated_at": now.UTC()}
	if status == StatusSuccess {
		updates["reward_at"] = now.UTC()
	}

	res := s.db.WithContext(ctx).
		Model(&Claim{}).
		Where("id = ? AND status = ?", claimID, StatusPending).
		Updates(updates)
	if res.Error != nil {
		zap.L().Error("failed to update claim status", zap.String("claim_id", claimID), zap.Error(res.Error))
		return nil, errutil.Internal("failed to update claim status", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict("claim is no longer pending", nil)
	}

	c.Status = status
	c.UpdatedAt = now.UTC()
	if status == StatusSuccess {
		rewardAt := now.UTC()
		c.RewardAt = &rewardAt
	}

	return c, nil
}

type HistoryClaim struct {
	ClaimID     string      `json:"claimId"`
	ClaimCode   string      `json:"claimCode"`
	RewardID    string      `json:"rewardId"`
	RewardName  string      `json:"rewardName"`
	RewardType  reward.Type `json:"rewardType"`
	Quantity    int         `json:"quantity"`
	UnitValue   *int64      `json:"unitValue,omitempty"`
	Description string      `json:"description,omitempty"`
	Status      Status      `json:"status"`
	RewardAt    *time.Time  `json:"rewardAt,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type EventHistory struct {
	EventID    string         `json:"eventId"`
	EventTitle string         `json:"eventTitle"`
	Claims     []HistoryClaim `json:"claims"`
}

// GetRewardHistory joins claims with reward and event metadata at read time
// and groups them by event, newest claims first. A non-privileged caller is
// always scoped to their own claims; a foreign userId filter is overridden,
// not rejected.
func (s *Service) GetRewardHistory(ctx context.Context, caller identity.Caller, userID, eventID string) ([]*EventHistory, error) {
	if !caller.Role.Privileged() {
		userID = caller.UserID
	}
	if userID == "" && !caller.Role.Privileged() {
		return nil, errutil.BadRequest("userId is required", nil)
	}

	claims, err := s.claims.Find(ctx, &Claim{UserID: userID, EventID: eventID},
		option.WithOrder("created_at DESC"),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list claims", err)
	}
	if len(claims) == 0 {
		return []*EventHistory{}, nil
	}

	eventIDs := make([]string, 0, len(claims))
	rewardIDs := make([]string, 0, len(claims))
	seenEvents := make(map[string]bool)
	seenRewards := make(map[string]bool)
	for _, c := range claims {
		if !seenEvents[c.EventID] {
			seenEvents[c.EventID] = true
			eventIDs = append(eventIDs, c.EventID)
		}
		if !seenRewards[c.RewardID] {
			seenRewards[c.RewardID] = true
			rewardIDs = append(rewardIDs, c.RewardID)
		}
	}

	var (
		events  []*event.Event
		rewards []*reward.Reward
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = s.events.Find(gctx, &event.Event{}, option.WithCondition("id IN ?", eventIDs))
		return err
	})
	g.Go(func() error {
		var err error
		rewards, err = s.rewards.Find(gctx, &reward.Reward{}, option.WithCondition("id IN ?", rewardIDs))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errutil.Internal("failed to load claim metadata", err)
	}

	eventByID := make(map[string]*event.Event, len(events))
	for _, e := range events {
		eventByID[e.ID] = e
	}
	rewardByID := make(map[string]*reward.Reward, len(rewards))
	for _, r := range rewards {
		rewardByID[r.ID] = r
	}

	groupByEvent := make(map[string]*EventHistory)
	var out []*EventHistory
	for _, c := range claims {
		group, ok := groupByEvent[c.EventID]
		if !ok {
			group = &EventHistory{EventID: c.EventID}
			if e := eventByID[c.EventID]; e != nil {
				group.EventTitle = e.Title
			}
			groupByEvent[c.EventID] = group
			out = append(out, group)
		}

		entry := HistoryClaim{
			ClaimID:   c.ID,
			ClaimCode: c.ClaimCode,
			RewardID:  c.RewardID,
			Status:    c.Status,
			RewardAt:  c.RewardAt,
			CreatedAt: c.CreatedAt,
		}
		if r := rewardByID[c.RewardID]; r != nil {
			entry.RewardName = r.Name
			entry.RewardType = r.Type
			entry.Quantity = r.Quantity
			entry.UnitValue = r.UnitValue
			entry.Description = r.Description
		}
		group.Claims = append(group.Claims, entry)
	}

	return out, nil
}
