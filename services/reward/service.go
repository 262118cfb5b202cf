package reward

import (
	"context"
	"fmt"

	"promo-controlplane/pkg/db/option"
	"promo-controlplane/pkg/errutil"
	"promo-controlplane/pkg/repository"
	"promo-controlplane/services/event"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	events  repository.Repository[event.Event]
	rewards repository.Repository[Reward]
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		events:  repository.ProvideStore[event.Event](p.DB),
		rewards: repository.ProvideStore[Reward](p.DB),
	}
}

type CreateRewardInput struct {
	Name        string `json:"name"`
	Type        Type   `json:"type"`
	Quantity    int    `json:"quantity"`
	UnitValue   *int64 `json:"unitValue"`
	Description string `json:"description"`
}

// CreateRewards inserts a batch of rewards for one event in a single
// transaction so a partially created batch never becomes visible.
func (s *Service) CreateRewards(ctx context.Context, callerID, eventID string, inputs []CreateRewardInput) ([]*Reward, error) {
	if eventID == "" {
		return nil, errutil.BadRequest("eventId is required", nil)
	}
	if len(inputs) == 0 {
		return nil, errutil.BadRequest("at least one reward is required", nil)
	}

	e, err := s.events.FindOne(ctx, &event.Event{ID: eventID})
	if err != nil {
		return nil, errutil.Internal("failed to load event", err)
	}
	if e == nil {
		return nil, errutil.NotFound(fmt.Sprintf("event %s not found", eventID), nil)
	}

	rewards := make([]*Reward, 0, len(inputs))
	for i, in := range inputs {
		if in.Name == "" {
			return nil, errutil.BadRequest(fmt.Sprintf("rewards[%d]: name is required", i), nil)
		}
		if !in.Type.Valid() {
			return nil, errutil.BadRequest(fmt.Sprintf("rewards[%d]: unknown reward type %q", i, in.Type), nil)
		}
		if in.Quantity < 0 {
			return nil, errutil.BadRequest(fmt.Sprintf("rewards[%d]: quantity must not be negative", i), nil)
		}

		rewards = append(rewards, &Reward{
			ID:          s.node.Generate().String(),
			EventID:     eventID,
			Name:        in.Name,
			Type:        in.Type,
			Quantity:    in.Quantity,
			UnitValue:   in.UnitValue,
			Description: in.Description,
			CreatedBy:   callerID,
			UpdatedBy:   callerID,
		})
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.rewards.WithTrx(tx).BatchCreate(ctx, rewards)
	}); err != nil {
		zap.L().Error("failed to create rewards", zap.String("event_id", eventID), zap.Error(err))
		return nil, errutil.Internal("failed to create rewards", err)
	}

	return rewards, nil
}

type UpdateRewardRequest struct {
	Name        string `json:"name"`
	Type        Type   `json:"type"`
	Quantity    *int   `json:"quantity"`
	UnitValue   *int64 `json:"unitValue"`
	Description string `json:"description"`
}

func (s *Service) UpdateReward(ctx context.Context, callerID, rewardID string, req UpdateRewardRequest) (*Reward, error) {
	if rewardID == "" {
		return nil, errutil.BadRequest("rewardId is required", nil)
	}

	r, err := s.rewards.FindOne(ctx, &Reward{ID: rewardID})
	if err != nil {
		return nil, errutil.Internal("failed to load reward", err)
	}
	if r == nil {
		return nil, errutil.NotFound(fmt.Sprintf("reward %s not found", rewardID), nil)
	}

	if req.Name != "" {
		r.Name = req.Name
	}
	if req.Type != "" {
		if !req.Type.Valid() {
			return nil, errutil.BadRequest(fmt.Sprintf("unknown reward type %q", req.Type), nil)
		}
		r.Type = req.Type
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return nil, errutil.BadRequest("quantity must not be negative", nil)
		}
		r.Quantity = *req.Quantity
	}
	if req.UnitValue != nil {
		r.UnitValue = req.UnitValue
	}
	if req.Description != "" {
		r.Description = req.Description
	}
	r.UpdatedBy = callerID

	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		zap.L().Error("failed to update reward", zap.String("reward_id", rewardID), zap.Error(err))
		return nil, errutil.Internal("failed to update reward", err)
	}

	return r, nil
}

func (s *Service) ListEventRewards(ctx context.Context, eventID string) ([]*Reward, error) {
	if eventID == "" {
		return nil, errutil.BadRequest("eventId is required", nil)
	}

	rewards, err := s.rewards.Find(ctx, &Reward{EventID: eventID}, option.WithOrder("created_at ASC"))
	if err != nil {
		return nil, errutil.Internal("failed to list rewards", err)
	}

	return rewards, nil
}
