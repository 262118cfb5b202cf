package event

import (
	"context"
	"fmt"
	"time"

	"promo-controlplane/pkg/celengine"
	"promo-controlplane/pkg/db/option"
	"promo-controlplane/pkg/errutil"
	"promo-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ruleAttrs declares the variables a RULE_EXPRESSION condition may reference.
// Evaluation binds the same set, so validation at create time is exact.
var ruleAttrs = map[string]interface{}{
	"consecutive_days": 0,
	"invite_count":     0,
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	events repository.Repository[Event]
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		events: repository.ProvideStore[Event](p.DB),
	}
}

type CreateEventRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartDate   time.Time  `json:"startDate"`
	EndDate     time.Time  `json:"endDate"`
	Status      Status     `json:"status"`
	Condition   *Condition `json:"condition"`
}

func (s *Service) CreateEvent(ctx context.Context, callerID string, req CreateEventRequest, now time.Time) (*Event, error) {
	if req.Title == "" {
		return nil, errutil.BadRequest("title is required", nil)
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return nil, errutil.BadRequest("startDate and endDate are required", nil)
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, errutil.BadRequest("startDate must be before endDate", nil)
	}
	if err := validateCondition(req.Condition); err != nil {
		return nil, err
	}

	status := DeriveStatus(req.StartDate, req.EndDate, now)
	if req.Status.Operator() {
		status = req.Status
	} else if req.Status != "" && !req.Status.Valid() {
		return nil, errutil.BadRequest(fmt.Sprintf("invalid status %q", req.Status), nil)
	}

	e := Event{
		ID:          s.node.Generate().String(),
		Title:       req.Title,
		Slug:        slug.Make(req.Title),
		Description: req.Description,
		StartDate:   req.StartDate.UTC(),
		EndDate:     req.EndDate.UTC(),
		Status:      status,
		CreatedBy:   callerID,
		UpdatedBy:   callerID,
	}
	if err := e.SetCondition(req.Condition); err != nil {
		return nil, errutil.BadRequest("invalid condition", err)
	}

	if err := s.events.Create(ctx, &e); err != nil {
		zap.L().Error("failed to create event", zap.Error(err))
		return nil, errutil.Internal("failed to create event", err)
	}

	return &e, nil
}

type UpdateEventRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	Status      Status     `json:"status"`
	Condition   *Condition `json:"condition"`
}

// UpdateEvent applies a partial update. Status is re-derived only when the
// operator resubmits dates; an operator-set CANCELED/INACTIVE otherwise
// survives the write untouched.
func (s *Service) UpdateEvent(ctx context.Context, callerID, eventID string, req UpdateEventRequest, now time.Time) (*Event, error) {
	if eventID == "" {
		return nil, errutil.BadRequest("eventId is required", nil)
	}

	e, err := s.events.FindOne(ctx, &Event{ID: eventID})
	if err != nil {
		return nil, errutil.Internal("failed to load event", err)
	}
	if e == nil {
		return nil, errutil.NotFound(fmt.Sprintf("event %s not found", eventID), nil)
	}

	if req.Title != "" {
		e.Title = req.Title
		e.Slug = slug.Make(req.Title)
	}
	if req.Description != "" {
		e.Description = req.Description
	}

	datesChanged := false
	if req.StartDate != nil {
		e.StartDate = req.StartDate.UTC()
		datesChanged = true
	}
	if req.EndDate != nil {
		e.EndDate = req.EndDate.UTC()
		datesChanged = true
	}
	if !e.StartDate.Before(e.EndDate) {
		return nil, errutil.BadRequest("startDate must be before endDate", nil)
	}

	if req.Condition != nil {
		if err := validateCondition(req.Condition); err != nil {
			return nil, err
		}
		if err := e.SetCondition(req.Condition); err != nil {
			return nil, errutil.BadRequest("invalid condition", err)
		}
	}

	switch {
	case req.Status.Operator():
		e.Status = req.Status
	case req.Status != "":
		if !req.Status.Valid() {
			return nil, errutil.BadRequest(fmt.Sprintf("invalid status %q", req.Status), nil)
		}
		e.Status = DeriveStatus(e.StartDate, e.EndDate, now)
	case datesChanged:
		e.Status = DeriveStatus(e.StartDate, e.EndDate, now)
	}

	e.UpdatedBy = callerID

	if err := s.db.WithContext(ctx).Save(e).Error; err != nil {
		zap.L().Error("failed to update event", zap.String("event_id", eventID), zap.Error(err))
		return nil, errutil.Internal("failed to update event", err)
	}

	return e, nil
}

type ListEventsRequest struct {
	Status Status `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

func (s *Service) ListEvents(ctx context.Context, req ListEventsRequest) ([]*Event, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, errutil.BadRequest(fmt.Sprintf("invalid status %q", req.Status), nil)
	}

	opts := []option.QueryOption{option.WithOrder("created_at DESC")}
	if req.Limit > 0 {
		opts = append(opts, option.WithLimit(req.Limit), option.WithOffset(req.Offset))
	}

	events, err := s.events.Find(ctx, &Event{Status: req.Status}, opts...)
	if err != nil {
		return nil, errutil.Internal("failed to list events", err)
	}

	return events, nil
}

func (s *Service) GetEventDetail(ctx context.Context, eventID string) (*Event, error) {
	if eventID == "" {
		return nil, errutil.BadRequest("eventId is required", nil)
	}

	e, err := s.events.FindOne(ctx, &Event{ID: eventID})
	if err != nil {
		return nil, errutil.Internal("failed to load event", err)
	}
	if e == nil {
		return nil, errutil.NotFound(fmt.Sprintf("event %s not found", eventID), nil)
	}

	return e, nil
}

func validateCondition(c *Condition) error {
	if c == nil {
		return nil
	}
	if !c.Type.Valid() {
		return errutil.BadRequest(fmt.Sprintf("unknown condition type %q", c.Type), nil)
	}

	switch c.Type {
	case ConditionConsecutiveAttendance, ConditionInviteFriend:
		if c.Threshold < 1 {
			return errutil.BadRequest("condition threshold must be at least 1", nil)
		}
	case ConditionRuleExpression:
		if c.Description == "" {
			return errutil.BadRequest("rule expression condition requires an expression", nil)
		}
		env, err := celengine.GetOrBuildEnv(ruleAttrs)
		if err != nil {
			return errutil.Internal("failed to build rule environment", err)
		}
		if err := celengine.ValidateExpression(env, c.Description); err != nil {
			return errutil.BadRequest("invalid rule expression", err)
		}
	}

	return nil
}
