package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-engine/internal/api/http"
	"github.com/spec-kit/ticket-engine/internal/api/http/handlers"
	"github.com/spec-kit/ticket-engine/internal/auth"
	"github.com/spec-kit/ticket-engine/internal/category"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/platform/platformtest"
	"github.com/spec-kit/ticket-engine/internal/service"
	"github.com/spec-kit/ticket-engine/internal/store"
)

type testAPI struct {
	app    *fiber.App
	fake   *platformtest.FakeGateway
	tokens *auth.TokenManager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()
	fake := platformtest.NewFakeGateway()
	fake.AddContainer("Support")

	docs := store.NewFileDocumentStore(filepath.Join(t.TempDir(), "tickets.json"))
	tickets := store.NewTicketStore(docs, logger)
	require.NoError(t, tickets.Load(context.Background()))

	notifier := service.NewPlatformNotifier(fake, "", "", logger)
	transcripts := service.NewTranscriptGenerator(fake, logger)
	resolver := category.NewResolver(fake, category.BuildDefinitions(nil), logger)
	metrics := observability.NewMetrics()

	finalizer := service.NewFinalizer(service.FinalizerDependencies{
		Store:       tickets,
		Gateway:     fake,
		Transcripts: transcripts,
		Notifier:    notifier,
		Logger:      logger,
		Sleep:       func(time.Duration) {},
		Spawn:       func(fn func()) { fn() },
	})
	ratings := service.NewRatingWorkflow(service.RatingDependencies{
		Store:     tickets,
		Gateway:   fake,
		Notifier:  notifier,
		Finalizer: finalizer,
		Logger:    logger,
		Policy:    service.RatingPolicy{Timeout: 24 * time.Hour, TimeoutDefaultScore: 5},
	})
	lifecycle := service.NewTicketLifecycle(service.LifecycleDependencies{
		Store:       tickets,
		Resolver:    resolver,
		Gateway:     fake,
		Notifier:    notifier,
		Finalizer:   finalizer,
		Ratings:     ratings,
		Logger:      logger,
		Sleep:       func(time.Duration) {},
		WorkspaceID: "ws-1",
	})
	reconciler := service.NewReconciliationService(service.ReconciliationDependencies{
		Store:       tickets,
		Gateway:     fake,
		Lifecycle:   lifecycle,
		Ratings:     ratings,
		Metrics:     metrics,
		Logger:      logger,
		WorkspaceID: "ws-1",
	})

	tokens := auth.NewTokenManager("test-secret", 30)
	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, 0)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler("ticket-engine", "test", tickets, nil, nil, metrics),
		Tickets:        handlers.NewTicketsHandler(lifecycle, ratings, tickets),
		Reconcile:      handlers.NewReconcileHandler(reconciler),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testAPI{app: app, fake: fake, tokens: tokens}
}

func (a *testAPI) request(t *testing.T, method, target, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (a *testAPI) token(t *testing.T, subject string, role auth.Role) string {
	t.Helper()
	token, _, err := a.tokens.GenerateToken(subject, role)
	require.NoError(t, err)
	return token
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestClaimConflictReportsAlreadyClaimed(t *testing.T) {
	api := newTestAPI(t)
	owner := api.token(t, "user-1", auth.RoleOwner)

	resp := api.request(t, http.MethodPost, "/tickets", owner, map[string]any{"category": "support"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	ticketID := created["data"].(map[string]any)["id"].(string)

	first := api.request(t, http.MethodPost, "/tickets/"+ticketID+"/claim", api.token(t, "staff-1", auth.RoleStaff), nil)
	require.Equal(t, http.StatusOK, first.StatusCode)
	firstBody := decodeBody(t, first)
	assert.Equal(t, true, firstBody["data"].(map[string]any)["claimed"])

	second := api.request(t, http.MethodPost, "/tickets/"+ticketID+"/claim", api.token(t, "staff-2", auth.RoleStaff), nil)
	require.Equal(t, http.StatusConflict, second.StatusCode)
	body := decodeBody(t, second)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "ALREADY_CLAIMED", errObj["code"])
	assert.Equal(t, "staff-1", errObj["details"].(map[string]any)["claimed_by"])
}

func TestErrorEnvelopeShape(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodGet, "/tickets/TKT-0042", api.token(t, "admin-1", auth.RoleAdmin), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
	assert.NotEmpty(t, errObj["message"])
	assert.Equal(t, "TKT-0042", errObj["details"].(map[string]any)["ticket_id"])
}

func TestMissingTokenRejected(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodGet, "/tickets", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])
}

func TestCreateRequiresOwner(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodPost, "/tickets", api.token(t, "svc", auth.RoleService), map[string]any{"category": "support"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "VALIDATION_FAILED", body["error"].(map[string]any)["code"])
}
