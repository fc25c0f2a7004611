package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/crafthub/engage/internal/models"
	"github.com/crafthub/engage/internal/store"
)

func TestPostWorkItemValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   PostWorkItemInput
	}{
		{"missing title", PostWorkItemInput{Kind: models.WorkItemKindJob, Description: "d", Category: "c", PaymentMode: models.PaymentModeCash}},
		{"job missing description", PostWorkItemInput{Kind: models.WorkItemKindJob, Title: "t", Category: "c", PaymentMode: models.PaymentModeCash}},
		{"job missing category", PostWorkItemInput{Kind: models.WorkItemKindJob, Title: "t", Description: "d", PaymentMode: models.PaymentModeCash}},
		{"job missing payment mode", PostWorkItemInput{Kind: models.WorkItemKindJob, Title: "t", Description: "d", Category: "c"}},
		{"unknown kind", PostWorkItemInput{Kind: "gig", Title: "t"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.PostWorkItem(ctx, env.owner, tc.in); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestPostServiceRequestForcesCashSettlement(t *testing.T) {
	env := newTestEnv(t)
	item, err := env.svc.PostWorkItem(context.Background(), env.owner, PostWorkItemInput{
		Kind:        models.WorkItemKindServiceRequest,
		Title:       "Weekly garden maintenance",
		PaymentMode: models.PaymentModeOnline, // ignored for service requests
	})
	if err != nil {
		t.Fatalf("PostWorkItem: %v", err)
	}
	if item.PaymentMode != models.PaymentModeCash {
		t.Fatalf("expected cash settlement, got %s", item.PaymentMode)
	}
	if item.Status != models.WorkItemOpen {
		t.Fatalf("expected open status, got %s", item.Status)
	}
}

func TestPostWorkItemNotifiesProviders(t *testing.T) {
	env := newTestEnv(t)
	other := env.addProvider(t, "Riley Brook")

	item := env.postJob(t, models.PaymentModeCash)

	for _, ref := range []models.ActorRef{env.provider, other} {
		notes, err := env.svc.ListNotifications(context.Background(), ref)
		if err != nil {
			t.Fatalf("ListNotifications: %v", err)
		}
		if len(notes) != 1 {
			t.Fatalf("expected 1 notification for %s, got %d", ref.ID, len(notes))
		}
		if notes[0].WorkItemID == nil || *notes[0].WorkItemID != item.ID {
			t.Fatalf("notification not linked to work item: %#v", notes[0])
		}
	}

	// The posting owner is not a provider and hears nothing.
	notes, err := env.svc.ListNotifications(context.Background(), env.owner)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("expected no notifications for owner, got %d", len(notes))
	}
}

func TestDeleteWorkItemRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	item := env.postJob(t, models.PaymentModeCash)

	stranger := models.ActorRef{Kind: models.ActorKindRequester, ID: uuid.New()}
	if err := env.svc.DeleteWorkItem(context.Background(), item.ID, stranger); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if err := env.svc.DeleteWorkItem(context.Background(), item.ID, env.owner); err != nil {
		t.Fatalf("DeleteWorkItem: %v", err)
	}
	if _, err := env.store.GetWorkItem(context.Background(), item.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected item gone, got %v", err)
	}
}

func TestDeleteWorkItemCascadesApplications(t *testing.T) {
	env := newTestEnv(t)
	item := env.postJob(t, models.PaymentModeCash)
	app := env.apply(t, item.ID, env.provider)

	if err := env.svc.DeleteWorkItem(context.Background(), item.ID, env.owner); err != nil {
		t.Fatalf("DeleteWorkItem: %v", err)
	}
	if _, err := env.store.GetApplication(context.Background(), app.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected application cascaded away, got %v", err)
	}
}

func TestListOpenWorkItemsExcludesClosedAndAccepted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	open := env.postJob(t, models.PaymentModeCash)
	taken := env.postJob(t, models.PaymentModeCash)
	app := env.apply(t, taken.ID, env.provider)
	if _, err := env.svc.AcceptApplication(ctx, app.ID, env.owner); err != nil {
		t.Fatalf("AcceptApplication: %v", err)
	}

	items, err := env.svc.ListOpenWorkItems(ctx)
	if err != nil {
		t.Fatalf("ListOpenWorkItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 open item, got %d", len(items))
	}
	if items[0].ID != open.ID {
		t.Fatalf("expected item %s, got %s", open.ID, items[0].ID)
	}
}
