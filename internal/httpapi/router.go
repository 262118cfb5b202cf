package httpapi

import (
	"net/http"
	"time"

	"promo-controlplane/pkg/errutil"
	"promo-controlplane/pkg/health"
	"promo-controlplane/pkg/identity"
	"promo-controlplane/pkg/middleware"
	"promo-controlplane/services/attendance"
	"promo-controlplane/services/claim"
	"promo-controlplane/services/event"
	"promo-controlplane/services/referral"
	"promo-controlplane/services/reward"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewRouter),
)

type RouterParams struct {
	fx.In

	Health     health.HealthService
	Event      *event.Service
	Reward     *reward.Service
	Attendance *attendance.Service
	Referral   *referral.Service
	Claim      *claim.Service
}

type router struct {
	event      *event.Service
	reward     *reward.Service
	attendance *attendance.Service
	referral   *referral.Service
	claim      *claim.Service
}

// NewRouter wires every exposed operation onto a gin engine. Authentication
// lives in the gateway; the engine trusts the X-User-* headers it injects.
func NewRouter(p RouterParams) http.Handler {
	r := &router{
		event:      p.Event,
		reward:     p.Reward,
		attendance: p.Attendance,
		referral:   p.Referral,
		claim:      p.Claim,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.Error())

	engine.GET("/healthz", p.Health.Liveness)
	engine.GET("/readyz", p.Health.Readiness)

	v1 := engine.Group("/v1")
	{
		v1.POST("/events", r.createEvent)
		v1.GET("/events", r.listEvents)
		v1.GET("/events/:eventId", r.getEventDetail)
		v1.PATCH("/events/:eventId", r.updateEvent)

		v1.POST("/events/:eventId/rewards", r.createRewards)
		v1.GET("/events/:eventId/rewards", r.listEventRewards)
		v1.PATCH("/rewards/:rewardId", r.updateReward)

		v1.POST("/attendance/check", r.checkIn)
		v1.POST("/friends/invite", r.inviteFriend)

		v1.POST("/rewards/request", r.requestReward)
		v1.PATCH("/claims/:claimId/status", r.updateClaimStatus)
		v1.GET("/rewards/history", r.getRewardHistory)
	}

	return engine
}

func callerFrom(c *gin.Context) identity.Caller {
	return identity.Caller{
		UserID: c.GetHeader("X-User-Id"),
		Email:  c.GetHeader("X-User-Email"),
		Role:   identity.Role(c.GetHeader("X-User-Role")),
	}
}

func (r *router) createEvent(c *gin.Context) {
	var req event.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	caller := callerFrom(c)
	e, err := r.event.CreateEvent(c.Request.Context(), caller.UserID, req, time.Now().UTC())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, e)
}

func (r *router) updateEvent(c *gin.Context) {
	var req event.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	caller := callerFrom(c)
	e, err := r.event.UpdateEvent(c.Request.Context(), caller.UserID, c.Param("eventId"), req, time.Now().UTC())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, e)
}

func (r *router) listEvents(c *gin.Context) {
	var req event.ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(errutil.BadRequest("invalid query", err))
		return
	}

	events, err := r.event.ListEvents(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (r *router) getEventDetail(c *gin.Context) {
	e, err := r.event.GetEventDetail(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, e)
}

type createRewardsRequest struct {
	Rewards []reward.CreateRewardInput `json:"rewards"`
}

func (r *router) createRewards(c *gin.Context) {
	var req createRewardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	caller := callerFrom(c)
	rewards, err := r.reward.CreateRewards(c.Request.Context(), caller.UserID, c.Param("eventId"), req.Rewards)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"rewards": rewards})
}

func (r *router) updateReward(c *gin.Context) {
	var req reward.UpdateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	caller := callerFrom(c)
	rw, err := r.reward.UpdateReward(c.Request.Context(), caller.UserID, c.Param("rewardId"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, rw)
}

func (r *router) listEventRewards(c *gin.Context) {
	rewards, err := r.reward.ListEventRewards(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rewards": rewards})
}

func (r *router) checkIn(c *gin.Context) {
	caller := callerFrom(c)
	a, err := r.attendance.CheckIn(c.Request.Context(), caller.UserID, time.Now().UTC())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, a)
}

type inviteFriendRequest struct {
	InviterEmail string `json:"inviterEmail"`
}

func (r *router) inviteFriend(c *gin.Context) {
	var req inviteFriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	caller := callerFrom(c)
	ref, err := r.referral.InviteFriend(c.Request.Context(), referral.InviteFriendRequest{
		InviterEmail: req.InviterEmail,
		InviteeID:    caller.UserID,
		InviteeEmail: caller.Email,
	}, time.Now().UTC())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, ref)
}

type requestRewardRequest struct {
	EventID  string `json:"eventId"`
	RewardID string `json:"rewardId"`
}

func (r *router) requestReward(c *gin.Context) {
	var req requestRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	caller := callerFrom(c)
	cl, err := r.claim.RequestReward(c.Request.Context(), caller.UserID, req.EventID, req.RewardID, time.Now().UTC())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, cl)
}

type updateClaimStatusRequest struct {
	Status claim.Status `json:"status"`
}

func (r *router) updateClaimStatus(c *gin.Context) {
	var req updateClaimStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	cl, err := r.claim.UpdateClaimStatus(c.Request.Context(), callerFrom(c), c.Param("claimId"), req.Status, time.Now().UTC())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, cl)
}

func (r *router) getRewardHistory(c *gin.Context) {
	history, err := r.claim.GetRewardHistory(c.Request.Context(), callerFrom(c), c.Query("userId"), c.Query("eventId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}
