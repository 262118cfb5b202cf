package referral

import (
	"context"
	"errors"
	"strings"
	"time"

	"promo-controlplane/pkg/client"
	"promo-controlplane/pkg/errutil"
	"promo-controlplane/pkg/repository"
	"promo-controlplane/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	node     *snowflake.Node
	seq      sequence.Generator
	identity client.IdentityService

	referrals repository.Repository[Referral]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Seq      sequence.Generator
	Identity client.IdentityService
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:      p.Node,
		seq:       p.Seq,
		identity:  p.Identity,
		referrals: repository.ProvideStore[Referral](p.DB),
	}
}

type InviteFriendRequest struct {
	InviterEmail string `json:"inviterEmail"`
	InviteeID    string `json:"inviteeId"`
	InviteeEmail string `json:"inviteeEmail"`
}

// InviteFriend credits the inviter named by email for the invitee's accepted
// invitation. Self-invites are rejected before any store or identity access.
// The invitee_email unique index backs the duplicate pre-check under races.
func (s *Service) InviteFriend(ctx context.Context, req InviteFriendRequest, now time.Time) (*Referral, error) {
	inviterEmail := NormalizeEmail(req.InviterEmail)
	inviteeEmail := NormalizeEmail(req.InviteeEmail)

	if inviterEmail == "" || inviteeEmail == "" {
		return nil, errutil.BadRequest("inviterEmail and inviteeEmail are required", nil)
	}
	if inviterEmail == inviteeEmail {
		return nil, errutil.BadRequest("cannot invite yourself", nil)
	}

	existing, err := s.referrals.FindOne(ctx, &Referral{InviteeEmail: inviteeEmail})
	if err != nil {
		return nil, errutil.Internal("failed to check existing referral", err)
	}
	if existing != nil {
		return nil, errutil.Conflict("invitee has already been referred", nil)
	}

	inviter, err := s.identity.ResolveUserByEmail(ctx, inviterEmail)
	if err != nil {
		return nil, err
	}

	code, err := s.seq.NextInviteCode(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to issue invite code", err)
	}

	registeredAt := now.UTC()
	r := Referral{
		ID:           s.node.Generate().String(),
		InviteCode:   code,
		InviterID:    inviter.ID,
		InviterEmail: inviterEmail,
		InviteeID:    req.InviteeID,
		InviteeEmail: inviteeEmail,
		IsRegistered: true,
		RegisteredAt: &registeredAt,
	}

	if err := s.referrals.Create(ctx, &r); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("invitee has already been referred", err)
		}
		zap.L().Error("failed to create referral", zap.String("inviter_id", inviter.ID), zap.Error(err))
		return nil, errutil.Internal("failed to create referral", err)
	}

	return &r, nil
}

// CountByInviter returns how many accepted invitations credit the user.
func (s *Service) CountByInviter(ctx context.Context, inviterID string) (int64, error) {
	return s.referrals.Count(ctx, &Referral{InviterID: inviterID})
}

// NormalizeEmail is the single normalization rule for referral identity.
// Dedup and self-invite checks compare normalized forms only.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
