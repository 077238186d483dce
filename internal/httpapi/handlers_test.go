package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"outbound-dialer/internal/calls"
	"outbound-dialer/internal/campaigns"
	"outbound-dialer/internal/dialer"
	"outbound-dialer/internal/reporting"
	"outbound-dialer/internal/telephony"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDialer struct {
	result dialer.Result
	calls  []string
	lead   campaigns.Lead
	event  telephony.CallEvent
	// ctxErr is ctx.Err() as seen by the last dial or hangup.
	ctxErr error
}

func (f *fakeDialer) record(op string) dialer.Result {
	f.calls = append(f.calls, op)
	return f.result
}

func (f *fakeDialer) StartCampaign(ctx context.Context, id int64) dialer.Result {
	return f.record("start")
}
func (f *fakeDialer) PauseCampaign(ctx context.Context, id int64) dialer.Result {
	return f.record("pause")
}
func (f *fakeDialer) StopCampaign(ctx context.Context, id int64) dialer.Result {
	return f.record("stop")
}
func (f *fakeDialer) DialLead(ctx context.Context, campaignID int64, lead campaigns.Lead) dialer.Result {
	f.lead = lead
	f.ctxErr = ctx.Err()
	return f.record("dial")
}
func (f *fakeDialer) DialLeadByID(ctx context.Context, campaignID, leadID int64) dialer.Result {
	f.ctxErr = ctx.Err()
	return f.record("dial_by_id")
}
func (f *fakeDialer) HandleChannelEvent(ctx context.Context, ev telephony.CallEvent) dialer.Result {
	f.event = ev
	return f.record("event")
}
func (f *fakeDialer) GetActiveChannels(ctx context.Context) dialer.Result {
	return f.record("channels")
}
func (f *fakeDialer) HangupCall(ctx context.Context, channelID string) dialer.Result {
	f.ctxErr = ctx.Err()
	return f.record("hangup:" + channelID)
}

func newRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", h.Healthz)
	r.POST("/v1/campaigns/:id/start", h.StartCampaign)
	r.POST("/v1/campaigns/:id/pause", h.PauseCampaign)
	r.POST("/v1/campaigns/:id/stop", h.StopCampaign)
	r.POST("/v1/campaigns/:id/dial", h.DialLead)
	r.POST("/v1/campaigns/:id/leads/:lead_id/dial", h.DialLeadByID)
	r.GET("/v1/campaigns/:id/summary", h.CampaignSummary)
	r.GET("/v1/channels", h.ListChannels)
	r.DELETE("/v1/channels/:channel_id", h.HangupChannel)
	r.POST("/v1/events", h.EventHandler())
	return r
}

func do(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, dialer.Result) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var res dialer.Result
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	return w, res
}

func TestLifecycleRoutesMapResultCodes(t *testing.T) {
	cases := []struct {
		result dialer.Result
		status int
	}{
		{dialer.Result{Success: true, Message: "ok"}, http.StatusOK},
		{dialer.Result{Code: dialer.CodeInvalidState}, http.StatusConflict},
		{dialer.Result{Code: dialer.CodeNotFound}, http.StatusNotFound},
		{dialer.Result{Code: dialer.CodeInvalidInput}, http.StatusBadRequest},
		{dialer.Result{Code: dialer.CodeGateway}, http.StatusBadGateway},
		{dialer.Result{Code: dialer.CodeInternal}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		fd := &fakeDialer{result: tc.result}
		r := newRouter(Handlers{Dialer: fd})
		for _, op := range []string{"start", "pause", "stop"} {
			w, _ := do(r, http.MethodPost, "/v1/campaigns/7/"+op, "")
			assert.Equal(t, tc.status, w.Code, op)
		}
		assert.Equal(t, []string{"start", "pause", "stop"}, fd.calls)
	}
}

func TestInvalidCampaignID(t *testing.T) {
	fd := &fakeDialer{}
	r := newRouter(Handlers{Dialer: fd})
	w, res := do(r, http.MethodPost, "/v1/campaigns/abc/start", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dialer.CodeInvalidInput, res.Code)
	assert.Empty(t, fd.calls)
}

func TestDialLeadBindsBody(t *testing.T) {
	fd := &fakeDialer{result: dialer.Result{Success: true}}
	r := newRouter(Handlers{Dialer: fd})

	w, _ := do(r, http.MethodPost, "/v1/campaigns/3/dial", `{"id":42,"phone":"5550001","name":"Ada"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(42), fd.lead.ID)
	assert.Equal(t, int64(3), fd.lead.CampaignID)
	assert.Equal(t, "5550001", fd.lead.Phone)

	w, _ = do(r, http.MethodPost, "/v1/campaigns/3/dial", `{"phone":"5550001"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(r, http.MethodPost, "/v1/campaigns/3/leads/42/dial", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dial_by_id", fd.calls[len(fd.calls)-1])
}

func TestChannelsAndHangup(t *testing.T) {
	fd := &fakeDialer{result: dialer.Result{Success: true}}
	r := newRouter(Handlers{Dialer: fd})

	w, _ := do(r, http.MethodGet, "/v1/channels", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(r, http.MethodDelete, "/v1/channels/1700000000.1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"channels", "hangup:1700000000.1"}, fd.calls)
}

func TestEventIngestion(t *testing.T) {
	fd := &fakeDialer{result: dialer.Result{Success: true, Message: "applied"}}
	r := newRouter(Handlers{Dialer: fd})

	w, _ := do(r, http.MethodPost, "/v1/events", `{"type":"Destroyed","channel_id":"ch-1","cause":17}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, telephony.EventDestroyed, fd.event.Type)
	assert.Equal(t, 17, fd.event.Cause)

	w, _ = do(r, http.MethodPost, "/v1/events", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	r := newRouter(Handlers{Health: func(ctx context.Context) error { return errors.New("db down") }})
	w, _ := do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	r = newRouter(Handlers{})
	w, _ = do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCampaignSummary(t *testing.T) {
	repo := calls.NewMemoryRepo()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c, err := repo.Create(context.Background(), calls.Call{ChannelID: "a", CampaignID: 5, CallStart: now.Add(-time.Hour)})
	require.NoError(t, err)
	c.Bridged = true
	c.Close(calls.ResolveDisposition(calls.CauseNormalClearing), calls.CauseNormalClearing, now.Add(-59*time.Minute))
	require.NoError(t, repo.Update(context.Background(), c))

	r := newRouter(Handlers{Reports: reporting.NewService(repo), Clock: func() time.Time { return now }})

	w, res := do(r, http.MethodGet, "/v1/campaigns/5/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, res.Success)
	data := res.Data.(map[string]any)
	assert.EqualValues(t, 1, data["connected"])
	assert.EqualValues(t, 60, data["total_duration_seconds"])

	w, _ = do(r, http.MethodGet, "/v1/campaigns/5/summary?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(r, http.MethodGet, "/v1/campaigns/5/summary?from=2024-03-02T00:00:00Z&to=2024-03-01T00:00:00Z", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDialSurvivesClientDisconnect(t *testing.T) {
	fd := &fakeDialer{result: dialer.Result{Success: true}}
	r := newRouter(Handlers{Dialer: fd})

	for _, tc := range []struct {
		method, path, body string
	}{
		{http.MethodPost, "/v1/campaigns/7/dial", `{"id":3,"phone":"5550001"}`},
		{http.MethodPost, "/v1/campaigns/7/leads/3/dial", ""},
		{http.MethodDelete, "/v1/channels/c1", ""},
	} {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)).WithContext(ctx)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, tc.path)
		assert.NoError(t, fd.ctxErr, tc.path)
	}
	assert.Equal(t, []string{"dial", "dial_by_id", "hangup:c1"}, fd.calls)
}
