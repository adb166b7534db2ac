package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cartperks/cartperks-engine/internal/application/command"
	"github.com/cartperks/cartperks-engine/internal/application/query"
	"github.com/cartperks/cartperks-engine/internal/domain/announce"
	"github.com/cartperks/cartperks-engine/internal/domain/cart"
	"github.com/cartperks/cartperks-engine/internal/domain/eligibility"
	"github.com/cartperks/cartperks-engine/internal/domain/notification"
	"github.com/cartperks/cartperks-engine/internal/domain/progress"
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
	"github.com/cartperks/cartperks-engine/internal/infrastructure/scheduler"
)

type fakeCatalogSource struct {
	raw *rule.RawCatalog
	err error
}

func (f *fakeCatalogSource) Fetch(_ context.Context, _ shared.SessionToken) (*rule.RawCatalog, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.raw, nil
}

type fakeCartSource struct {
	snap *cart.Snapshot
	err  error
}

func (f *fakeCartSource) Fetch(_ context.Context, _ shared.SessionToken) (*cart.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func (f *fakeCartSource) AddLine(_ context.Context, _ shared.SessionToken, _ cart.AddLineIntent) error {
	return nil
}

func (f *fakeCartSource) ChangeLine(_ context.Context, _ shared.SessionToken, _ cart.ChangeLineIntent) error {
	return nil
}

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) Check(_ context.Context) error { return f.err }
func (f fakeChecker) Name() string                  { return f.name }

func testRawCatalog() *rule.RawCatalog {
	return &rule.RawCatalog{
		Shipping: []rule.Record{{
			"id": "shipping:free", "step": "step1", "goal": "30",
			"before_message": "Spend {{goal}} more for free shipping",
			"after_message":  "Free shipping unlocked!",
		}},
		Fallback: []string{"Free returns on all orders"},
	}
}

func newTestServer(cs rule.CatalogSource, sf *fakeCartSource, checkers ...HealthChecker) *Server {
	normalizer := rule.NewNormalizer()
	calculator := progress.NewCalculator()
	evaluator := eligibility.NewEvaluator(nil)

	runPass := command.NewRunPassHandler(command.RunPassDeps{
		CatalogSource: cs,
		CartSource:    sf,
		Normalizer:    normalizer,
		Calculator:    calculator,
		Evaluator:     evaluator,
		Machine:       notification.NewMachine(notification.NewMemoryFlagStore()),
		Aggregator:    announce.NewAggregator(),
		Enforcer:      command.NewEnforceRewardsHandler(sf, sf, evaluator, nil),
		Applier:       command.NewApplyRewardHandler(sf, nil),
		Settings:      command.DefaultPassSettings(),
	})

	return NewServer(DefaultConfig(), Dependencies{
		RunPass:          runPass,
		GetProgress:      query.NewGetProgressHandler(cs, sf, normalizer, calculator),
		GetAnnouncements: query.NewGetAnnouncementsHandler(cs, sf, normalizer, evaluator, announce.NewAggregator()),
		Coalescer:        scheduler.NewCoalescer(func(context.Context, shared.SessionToken) {}, scheduler.WithWindow(time.Hour)),
		HealthCheckers:   checkers,
	})
}

func doRequest(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var envelope JSONResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, envelope
}

func TestEvaluateEndpoint(t *testing.T) {
	sf := &fakeCartSource{snap: &cart.Snapshot{Subtotal: 4000, Currency: "USD"}}
	s := newTestServer(&fakeCatalogSource{raw: testRawCatalog()}, sf)

	rec, envelope := doRequest(t, s, http.MethodPost, "/v1/evaluate", `{"session":"sess-1","drawer_open":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.Success)

	data, _ := json.Marshal(envelope.Data)
	var resp EvaluateResponse
	assert.NoError(t, json.Unmarshal(data, &resp))
	assert.NotEmpty(t, resp.PassID)
	assert.Equal(t, 1, resp.Progress.CompletedCount)
	assert.Equal(t, []string{"Free returns on all orders"}, resp.Announcements)
}

func TestEvaluateEndpoint_BadBody(t *testing.T) {
	s := newTestServer(&fakeCatalogSource{raw: testRawCatalog()}, &fakeCartSource{snap: &cart.Snapshot{}})

	rec, envelope := doRequest(t, s, http.MethodPost, "/v1/evaluate", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, envelope.Success)
	assert.Equal(t, "invalid_body", envelope.Error.Code)
}

func TestEvaluateEndpoint_MissingSession(t *testing.T) {
	s := newTestServer(&fakeCatalogSource{raw: testRawCatalog()}, &fakeCartSource{snap: &cart.Snapshot{}})

	rec, envelope := doRequest(t, s, http.MethodPost, "/v1/evaluate", `{"session":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_session", envelope.Error.Code)
}

func TestProgressEndpoint(t *testing.T) {
	sf := &fakeCartSource{snap: &cart.Snapshot{Subtotal: 1500}}
	s := newTestServer(&fakeCatalogSource{raw: testRawCatalog()}, sf)

	rec, envelope := doRequest(t, s, http.MethodGet, "/v1/sessions/sess-1/progress", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.Success)

	data, _ := json.Marshal(envelope.Data)
	var dto ProgressDTO
	assert.NoError(t, json.Unmarshal(data, &dto))
	assert.False(t, dto.Suppressed)
	assert.Equal(t, 0, dto.CompletedCount)
	assert.Len(t, dto.Steps, 1)
}

func TestProgressEndpoint_CartUnavailable(t *testing.T) {
	sf := &fakeCartSource{err: errors.New("timeout")}
	s := newTestServer(&fakeCatalogSource{raw: testRawCatalog()}, sf)

	rec, envelope := doRequest(t, s, http.MethodGet, "/v1/sessions/sess-1/progress", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "upstream_unavailable", envelope.Error.Code)
}

func TestAnnouncementsEndpoint(t *testing.T) {
	sf := &fakeCartSource{snap: &cart.Snapshot{Subtotal: 1500}}
	s := newTestServer(&fakeCatalogSource{raw: testRawCatalog()}, sf)

	rec, envelope := doRequest(t, s, http.MethodGet, "/v1/sessions/sess-1/announcements", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	data, _ := json.Marshal(envelope.Data)
	var body struct {
		Announcements []string `json:"announcements"`
	}
	assert.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, []string{"Free returns on all orders"}, body.Announcements)
}

func TestTriggerEndpoint(t *testing.T) {
	s := newTestServer(&fakeCatalogSource{raw: testRawCatalog()}, &fakeCartSource{snap: &cart.Snapshot{}})
	defer s.deps.Coalescer.Close()

	rec, envelope := doRequest(t, s, http.MethodPost, "/v1/sessions/sess-1/triggers", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, envelope.Success)
	assert.True(t, s.deps.Coalescer.Pending("sess-1"))
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(&fakeCatalogSource{raw: testRawCatalog()}, &fakeCartSource{snap: &cart.Snapshot{}},
		fakeChecker{name: "postgres"},
		fakeChecker{name: "redis", err: errors.New("connection refused")},
	)

	rec, _ := doRequest(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, envelope := doRequest(t, s, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	data, _ := json.Marshal(envelope.Data)
	var body struct {
		Healthy bool              `json:"healthy"`
		Checks  map[string]string `json:"checks"`
	}
	assert.NoError(t, json.Unmarshal(data, &body))
	assert.False(t, body.Healthy)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Contains(t, body.Checks["redis"], "connection refused")
}
