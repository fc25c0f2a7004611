package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/crafthub/engage/internal/auth"
	"github.com/crafthub/engage/internal/httpserver"
	"github.com/crafthub/engage/internal/identity"
	"github.com/crafthub/engage/internal/models"
	"github.com/crafthub/engage/internal/notify"
	"github.com/crafthub/engage/internal/payment"
	"github.com/crafthub/engage/internal/service"
	"github.com/crafthub/engage/internal/store"
)

const testSecret = "server-test-secret"

type stubPayments struct{}

func (stubPayments) CreateIntent(ctx context.Context, amount int64, currency, hint string) (payment.Intent, error) {
	return payment.Intent{ID: "pi_test", ClientSecret: "pi_test_secret"}, nil
}

func (stubPayments) RetrieveIntent(ctx context.Context, intentID string) (payment.IntentStatus, error) {
	return payment.IntentSucceeded, nil
}

type testServer struct {
	ts       *httptest.Server
	owner    models.ActorRef
	provider models.ActorRef
	tokens   map[uuid.UUID]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemoryStore()
	dir := identity.NewMemoryDirectory()

	owner := models.ActorRef{Kind: models.ActorKindRequester, ID: uuid.New()}
	provider := models.ActorRef{Kind: models.ActorKindProvider, ID: uuid.New()}
	dir.Put(identity.Actor{ID: owner.ID, Kind: owner.Kind, DisplayName: "Dana Ortiz", Contact: "dana@example.com"})
	dir.Put(identity.Actor{ID: provider.ID, Kind: provider.Kind, DisplayName: "Sam Keller", Contact: "sam@example.com"})

	svc := service.New(mem, dir, stubPayments{}, notify.New(mem, time.Second), nil, service.Config{})
	verifier, err := auth.NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	server := httpserver.New(svc, mem, verifier)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	tokens := map[uuid.UUID]string{}
	for _, actor := range []models.ActorRef{owner, provider} {
		token, err := auth.NewToken(testSecret, actor, time.Minute)
		if err != nil {
			t.Fatalf("NewToken: %v", err)
		}
		tokens[actor.ID] = token
	}

	return &testServer{ts: ts, owner: owner, provider: provider, tokens: tokens}
}

func (s *testServer) do(t *testing.T, actor models.ActorRef, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token, ok := s.tokens[actor.ID]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf.Bytes()
}

func decodeInto(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode response %s: %v", data, err)
	}
}

func TestAuthenticationRequired(t *testing.T) {
	s := newTestServer(t)
	nobody := models.ActorRef{ID: uuid.New()}
	resp, _ := s.do(t, nobody, http.MethodGet, "/items/open", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, models.ActorRef{}, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var status struct {
		OK bool   `json:"ok"`
		DB string `json:"db"`
	}
	decodeInto(t, body, &status)
	if !status.OK || status.DB != "up" {
		t.Fatalf("unexpected health payload: %s", body)
	}
}

func TestFullEngagementFlow(t *testing.T) {
	s := newTestServer(t)

	// Owner posts a job.
	resp, body := s.do(t, s.owner, http.MethodPost, "/items", map[string]string{
		"kind":        "job",
		"title":       "Fix kitchen sink",
		"description": "Leaking under the basin",
		"category":    "plumbing",
		"paymentMode": "cash_on_delivery",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("post item: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var item models.WorkItem
	decodeInto(t, body, &item)

	// The provider sees it in the open list.
	resp, body = s.do(t, s.provider, http.MethodGet, "/items/open", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open items: expected 200, got %d", resp.StatusCode)
	}
	var openList struct {
		Items []models.WorkItem `json:"items"`
	}
	decodeInto(t, body, &openList)
	if len(openList.Items) != 1 || openList.Items[0].ID != item.ID {
		t.Fatalf("expected posted item in open list, got %s", body)
	}

	// The provider applies.
	resp, body = s.do(t, s.provider, http.MethodPost, "/applications", map[string]string{
		"workItemId": item.ID.String(),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("apply: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var app models.Application
	decodeInto(t, body, &app)

	// A duplicate bid conflicts.
	resp, _ = s.do(t, s.provider, http.MethodPost, "/applications", map[string]string{
		"workItemId": item.ID.String(),
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate apply: expected 409, got %d", resp.StatusCode)
	}

	// The owner sees the incoming bid and accepts it.
	resp, body = s.do(t, s.owner, http.MethodGet, "/applications/incoming", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("incoming: expected 200, got %d", resp.StatusCode)
	}
	var incoming struct {
		Applications []models.Application `json:"applications"`
	}
	decodeInto(t, body, &incoming)
	if len(incoming.Applications) != 1 || incoming.Applications[0].ID != app.ID {
		t.Fatalf("expected the bid in incoming list, got %s", body)
	}

	resp, body = s.do(t, s.owner, http.MethodPost, fmt.Sprintf("/applications/%s/accept", app.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var engagement models.Engagement
	decodeInto(t, body, &engagement)
	if engagement.Status != models.EngagementPending {
		t.Fatalf("expected pending engagement, got %s", engagement.Status)
	}

	// The provider may not accept; only the owner can.
	resp, _ = s.do(t, s.provider, http.MethodPost, fmt.Sprintf("/applications/%s/accept", app.ID), nil)
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusConflict {
		t.Fatalf("foreign accept: expected 403 or 409, got %d", resp.StatusCode)
	}

	// Cash completion finishes synchronously.
	resp, body = s.do(t, s.owner, http.MethodPost, fmt.Sprintf("/engagements/%s/complete", engagement.ID), map[string]interface{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var completed struct {
		Engagement   models.Engagement `json:"engagement"`
		Continuation *payment.Intent   `json:"continuation"`
	}
	decodeInto(t, body, &completed)
	if completed.Engagement.Status != models.EngagementCompleted {
		t.Fatalf("expected completed, got %s", completed.Engagement.Status)
	}
	if completed.Continuation != nil {
		t.Fatalf("cash completion must not return a continuation")
	}

	// The owner rates the finished engagement.
	resp, body = s.do(t, s.owner, http.MethodPost, fmt.Sprintf("/engagements/%s/rating", engagement.ID), map[string]int{
		"rating": 4,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rate: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var rated struct {
		ProviderScore float64 `json:"providerScore"`
	}
	decodeInto(t, body, &rated)
	if rated.ProviderScore != 4.0 {
		t.Fatalf("expected score 4.0, got %v", rated.ProviderScore)
	}
}

func TestOnlineCompletionAndConfirm(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, s.owner, http.MethodPost, "/items", map[string]string{
		"kind":        "job",
		"title":       "Rewire the garage",
		"description": "Two new circuits",
		"category":    "electrical",
		"paymentMode": "online",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("post item: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var item models.WorkItem
	decodeInto(t, body, &item)

	resp, body = s.do(t, s.provider, http.MethodPost, "/applications", map[string]string{
		"workItemId": item.ID.String(),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("apply: expected 201, got %d", resp.StatusCode)
	}
	var app models.Application
	decodeInto(t, body, &app)

	resp, body = s.do(t, s.owner, http.MethodPost, fmt.Sprintf("/applications/%s/accept", app.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d", resp.StatusCode)
	}
	var engagement models.Engagement
	decodeInto(t, body, &engagement)

	// Online completion requires an amount.
	resp, _ = s.do(t, s.owner, http.MethodPost, fmt.Sprintf("/engagements/%s/complete", engagement.ID), map[string]interface{}{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("complete without amount: expected 400, got %d", resp.StatusCode)
	}

	resp, body = s.do(t, s.owner, http.MethodPost, fmt.Sprintf("/engagements/%s/complete", engagement.ID), map[string]interface{}{
		"amountMinorUnits": 25000,
		"methodHint":       "card",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var pendingPay struct {
		Engagement   models.Engagement `json:"engagement"`
		Continuation *payment.Intent   `json:"continuation"`
	}
	decodeInto(t, body, &pendingPay)
	if pendingPay.Engagement.Status != models.EngagementAwaitingPayment {
		t.Fatalf("expected awaiting_payment, got %s", pendingPay.Engagement.Status)
	}
	if pendingPay.Continuation == nil || pendingPay.Continuation.ID != "pi_test" {
		t.Fatalf("expected payment continuation, got %s", body)
	}

	resp, body = s.do(t, s.owner, http.MethodPost, fmt.Sprintf("/engagements/%s/confirm-payment", engagement.ID), map[string]string{
		"paymentIntentId": pendingPay.Continuation.ID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var confirmed models.Engagement
	decodeInto(t, body, &confirmed)
	if confirmed.Status != models.EngagementCompleted {
		t.Fatalf("expected completed, got %s", confirmed.Status)
	}

	// Redelivery of the same confirmation is a no-op success.
	resp, _ = s.do(t, s.owner, http.MethodPost, fmt.Sprintf("/engagements/%s/confirm-payment", engagement.ID), map[string]string{
		"paymentIntentId": pendingPay.Continuation.ID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat confirm: expected 200, got %d", resp.StatusCode)
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	// Unknown ids map to 404.
	resp, _ := s.do(t, s.owner, http.MethodDelete, "/items/"+uuid.NewString(), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	// Malformed ids map to 400.
	resp, _ = s.do(t, s.owner, http.MethodDelete, "/items/not-a-uuid", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	// Unknown body fields map to 400.
	resp, _ = s.do(t, s.owner, http.MethodPost, "/items", map[string]string{
		"kind":    "job",
		"title":   "t",
		"mystery": "field",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.StatusCode)
	}

	// Validation failures map to 400.
	resp, _ = s.do(t, s.owner, http.MethodPost, "/items", map[string]string{
		"kind":  "job",
		"title": "",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing title, got %d", resp.StatusCode)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, s.owner, http.MethodPost, "/items", map[string]string{
		"kind":  "service_request",
		"title": "Weekly garden maintenance",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("post item: expected 201, got %d: %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, s.provider, http.MethodGet, "/notifications", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("notifications: expected 200, got %d", resp.StatusCode)
	}
	var list struct {
		Notifications []models.Notification `json:"notifications"`
	}
	decodeInto(t, body, &list)
	if len(list.Notifications) != 1 {
		t.Fatalf("expected 1 notification, got %s", body)
	}
	n := list.Notifications[0]

	// Another actor cannot delete it.
	resp, _ = s.do(t, s.owner, http.MethodDelete, "/notifications/"+n.ID.String(), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign delete: expected 403, got %d", resp.StatusCode)
	}

	resp, _ = s.do(t, s.provider, http.MethodDelete, "/notifications/"+n.ID.String(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
}
