package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"outbound-dialer/internal/campaigns"
	"outbound-dialer/internal/dialer"
	"outbound-dialer/internal/reporting"
	"outbound-dialer/internal/telephony"
	"outbound-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Dialer is the engine surface exposed over HTTP. *dialer.Engine satisfies it.
type Dialer interface {
	StartCampaign(ctx context.Context, id int64) dialer.Result
	PauseCampaign(ctx context.Context, id int64) dialer.Result
	StopCampaign(ctx context.Context, id int64) dialer.Result
	DialLead(ctx context.Context, campaignID int64, lead campaigns.Lead) dialer.Result
	DialLeadByID(ctx context.Context, campaignID, leadID int64) dialer.Result
	HandleChannelEvent(ctx context.Context, ev telephony.CallEvent) dialer.Result
	GetActiveChannels(ctx context.Context) dialer.Result
	HangupCall(ctx context.Context, channelID string) dialer.Result
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call the engine, return its Result.
type Handlers struct {
	Dialer  Dialer
	Reports *reporting.Service
	// Health reports readiness of the process dependencies.
	Health func(ctx context.Context) error

	// Clock defaults to time.Now.
	Clock func() time.Time
}

const defaultSummaryWindow = 24 * time.Hour

func (h Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

// respond writes res with the status its code maps to.
func respond(c *gin.Context, res dialer.Result) {
	c.JSON(statusFor(res), res)
}

func statusFor(res dialer.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Code {
	case dialer.CodeInvalidInput:
		return http.StatusBadRequest
	case dialer.CodeInvalidState:
		return http.StatusConflict
	case dialer.CodeNotFound:
		return http.StatusNotFound
	case dialer.CodeGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dialer.Result{Message: msg, Code: dialer.CodeInvalidInput})
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return v, true
}

func (h Handlers) configured(c *gin.Context) bool {
	if h.Dialer == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, dialer.Result{Message: "dialer not configured", Code: dialer.CodeInternal})
		return false
	}
	return true
}

func (h Handlers) Healthz(c *gin.Context) {
	if h.Health != nil {
		if err := h.Health(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Campaign lifecycle ---

func (h Handlers) StartCampaign(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	respond(c, h.Dialer.StartCampaign(c.Request.Context(), id))
}

func (h Handlers) PauseCampaign(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	respond(c, h.Dialer.PauseCampaign(c.Request.Context(), id))
}

func (h Handlers) StopCampaign(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	respond(c, h.Dialer.StopCampaign(c.Request.Context(), id))
}

// --- Manual dialing ---

// dispatchContext keeps request values but not cancellation: once a call
// operation is sent to the platform it runs to completion under the
// gateway's own timeout, even if the client goes away.
func dispatchContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

type dialLeadRequest struct {
	ID    int64  `json:"id" binding:"required,gt=0"`
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// DialLead dials the lead in the body immediately, outside pacing.
func (h Handlers) DialLead(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	campaignID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req dialLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid lead: "+err.Error())
		return
	}
	respond(c, h.Dialer.DialLead(dispatchContext(c), campaignID, campaigns.Lead{
		ID:         req.ID,
		CampaignID: campaignID,
		Phone:      req.Phone,
		Name:       req.Name,
	}))
}

func (h Handlers) DialLeadByID(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	campaignID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	leadID, ok := int64Param(c, "lead_id")
	if !ok {
		return
	}
	respond(c, h.Dialer.DialLeadByID(dispatchContext(c), campaignID, leadID))
}

// --- Channels ---

func (h Handlers) ListChannels(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	respond(c, h.Dialer.GetActiveChannels(c.Request.Context()))
}

func (h Handlers) HangupChannel(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	respond(c, h.Dialer.HangupCall(dispatchContext(c), c.Param("channel_id")))
}

// EventHandler returns the push-mode event ingestion handler.
func (h Handlers) EventHandler() gin.HandlerFunc {
	wh := telephony.EventWebhookHandler{}
	if h.Dialer != nil {
		wh.Deliver = func(ctx context.Context, ev telephony.CallEvent) (bool, string) {
			res := h.Dialer.HandleChannelEvent(context.WithoutCancel(ctx), ev)
			return res.Success, res.Message
		}
	}
	return wh.HandleEvent
}

// --- Reporting ---

// CampaignSummary accepts optional RFC3339 from/to query parameters and
// defaults to the last 24 hours.
func (h Handlers) CampaignSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, dialer.Result{Message: "reporting not configured", Code: dialer.CodeInternal})
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}

	to := h.now().UTC()
	from := to.Add(-defaultSummaryWindow)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(c, "from must be RFC3339")
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(c, "to must be RFC3339")
			return
		}
		to = t
	}

	out, err := h.Reports.CampaignSummary(c.Request.Context(), reporting.CampaignSummaryRequest{
		CampaignID: id,
		Range:      reporting.TimeRange{From: from, To: to},
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		badRequest(c, "invalid summary range")
		return
	}
	if err != nil {
		logger.FromGin(c).Error("campaign summary failed", "campaign_id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, dialer.Result{Message: "summary failed", Code: dialer.CodeInternal})
		return
	}
	c.JSON(http.StatusOK, dialer.Result{Success: true, Data: out})
}
