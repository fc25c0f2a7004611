package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/crafthub/engage/internal/identity"
	"github.com/crafthub/engage/internal/models"
	"github.com/crafthub/engage/internal/notify"
	"github.com/crafthub/engage/internal/payment"
	"github.com/crafthub/engage/internal/store"
)

// fakePayments implements payment.Client for tests.
type fakePayments struct {
	createFunc   func(ctx context.Context, amount int64, currency, hint string) (payment.Intent, error)
	retrieveFunc func(ctx context.Context, intentID string) (payment.IntentStatus, error)
	createCalls  int64
}

func (f *fakePayments) CreateIntent(ctx context.Context, amount int64, currency, hint string) (payment.Intent, error) {
	n := atomic.AddInt64(&f.createCalls, 1)
	if f.createFunc != nil {
		return f.createFunc(ctx, amount, currency, hint)
	}
	return payment.Intent{
		ID:           fmt.Sprintf("pi_%d", n),
		ClientSecret: fmt.Sprintf("pi_%d_secret", n),
	}, nil
}

func (f *fakePayments) RetrieveIntent(ctx context.Context, intentID string) (payment.IntentStatus, error) {
	if f.retrieveFunc != nil {
		return f.retrieveFunc(ctx, intentID)
	}
	return payment.IntentSucceeded, nil
}

type testEnv struct {
	svc      *Service
	store    *store.MemoryStore
	dir      *identity.MemoryDirectory
	payments *fakePayments

	owner    models.ActorRef
	provider models.ActorRef
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemoryStore()
	dir := identity.NewMemoryDirectory()
	payments := &fakePayments{}

	owner := models.ActorRef{Kind: models.ActorKindRequester, ID: uuid.New()}
	provider := models.ActorRef{Kind: models.ActorKindProvider, ID: uuid.New()}
	dir.Put(identity.Actor{ID: owner.ID, Kind: owner.Kind, DisplayName: "Dana Ortiz", Contact: "dana@example.com"})
	dir.Put(identity.Actor{
		ID:          provider.ID,
		Kind:        provider.Kind,
		DisplayName: "Sam Keller",
		Contact:     "sam@example.com",
		Experience:  "8 years of plumbing",
	})

	svc := New(mem, dir, payments, notify.New(mem, 2*time.Second), nil, Config{Currency: "usd"})
	return &testEnv{
		svc:      svc,
		store:    mem,
		dir:      dir,
		payments: payments,
		owner:    owner,
		provider: provider,
	}
}

func (env *testEnv) addProvider(t *testing.T, name string) models.ActorRef {
	t.Helper()
	ref := models.ActorRef{Kind: models.ActorKindProvider, ID: uuid.New()}
	env.dir.Put(identity.Actor{ID: ref.ID, Kind: ref.Kind, DisplayName: name, Contact: name + "@example.com"})
	return ref
}

func (env *testEnv) postJob(t *testing.T, mode models.PaymentMode) models.WorkItem {
	t.Helper()
	item, err := env.svc.PostWorkItem(context.Background(), env.owner, PostWorkItemInput{
		Kind:        models.WorkItemKindJob,
		Title:       "Fix kitchen sink",
		Description: "Leaking under the basin",
		Category:    "plumbing",
		Location:    "Springfield",
		PaymentMode: mode,
	})
	if err != nil {
		t.Fatalf("PostWorkItem: %v", err)
	}
	return item
}

func (env *testEnv) apply(t *testing.T, itemID uuid.UUID, provider models.ActorRef) models.Application {
	t.Helper()
	app, err := env.svc.SubmitApplication(context.Background(), itemID, provider.ID)
	if err != nil {
		t.Fatalf("SubmitApplication: %v", err)
	}
	return app
}

func (env *testEnv) acceptedEngagement(t *testing.T, mode models.PaymentMode) models.Engagement {
	t.Helper()
	item := env.postJob(t, mode)
	app := env.apply(t, item.ID, env.provider)
	e, err := env.svc.AcceptApplication(context.Background(), app.ID, env.owner)
	if err != nil {
		t.Fatalf("AcceptApplication: %v", err)
	}
	return e
}
