package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crafthub/engage/internal/models"
)

// MemoryStore is an in-process Store used by tests and local development.
// A single mutex gives it the same serialization guarantee the Postgres
// implementation gets from row locks.
type MemoryStore struct {
	mu            sync.RWMutex
	workItems     map[uuid.UUID]models.WorkItem
	applications  map[uuid.UUID]models.Application
	engagements   map[uuid.UUID]models.Engagement
	notifications map[uuid.UUID]models.Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workItems:     map[uuid.UUID]models.WorkItem{},
		applications:  map[uuid.UUID]models.Application{},
		engagements:   map[uuid.UUID]models.Engagement{},
		notifications: map[uuid.UUID]models.Notification{},
	}
}

func (m *MemoryStore) CreateWorkItem(ctx context.Context, in WorkItemInput) (models.WorkItem, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	item := models.WorkItem{
		ID:          in.ID,
		Kind:        in.Kind,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Location:    in.Location,
		Owner:       in.Owner,
		PaymentMode: in.PaymentMode,
		Status:      models.WorkItemOpen,
		CreatedAt:   time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workItems[item.ID] = item
	return item, nil
}

func (m *MemoryStore) GetWorkItem(ctx context.Context, id uuid.UUID) (models.WorkItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.workItems[id]
	if !ok {
		return models.WorkItem{}, ErrNotFound
	}
	return item, nil
}

func (m *MemoryStore) ListOpenWorkItems(ctx context.Context) ([]models.WorkItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accepted := map[uuid.UUID]bool{}
	for _, app := range m.applications {
		if app.Accepted {
			accepted[app.WorkItemID] = true
		}
	}

	var items []models.WorkItem
	for _, item := range m.workItems {
		if item.Status != models.WorkItemOpen || accepted[item.ID] {
			continue
		}
		items = append(items, item)
	}
	sortWorkItems(items)
	return items, nil
}

func (m *MemoryStore) ListWorkItemsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.WorkItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []models.WorkItem
	for _, item := range m.workItems {
		if item.Owner.ID == ownerID {
			items = append(items, item)
		}
	}
	sortWorkItems(items)
	return items, nil
}

func sortWorkItems(items []models.WorkItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID.String() < items[j].ID.String()
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func (m *MemoryStore) DeleteWorkItem(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workItems[id]; !ok {
		return ErrNotFound
	}
	delete(m.workItems, id)
	// Cascade, matching the Postgres foreign key.
	for appID, app := range m.applications {
		if app.WorkItemID == id {
			delete(m.applications, appID)
		}
	}
	return nil
}

func (m *MemoryStore) CreateApplication(ctx context.Context, in ApplicationInput) (models.Application, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, app := range m.applications {
		if app.WorkItemID == in.WorkItemID && app.Provider == in.Provider {
			return models.Application{}, ErrConflict
		}
	}
	app := models.Application{
		ID:                 in.ID,
		WorkItemID:         in.WorkItemID,
		WorkItemKind:       in.WorkItemKind,
		Provider:           in.Provider,
		ProviderName:       in.ProviderName,
		ProviderContact:    in.ProviderContact,
		ProviderExperience: in.ProviderExperience,
		Accepted:           false,
		SubmittedAt:        time.Now().UTC(),
	}
	m.applications[app.ID] = app
	return app, nil
}

func (m *MemoryStore) GetApplication(ctx context.Context, id uuid.UUID) (models.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.applications[id]
	if !ok {
		return models.Application{}, ErrNotFound
	}
	return app, nil
}

func (m *MemoryStore) ListPendingApplicationsForOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var apps []models.Application
	for _, app := range m.applications {
		item, ok := m.workItems[app.WorkItemID]
		if !ok || item.Owner.ID != ownerID || app.Accepted {
			continue
		}
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool {
		return apps[i].SubmittedAt.Before(apps[j].SubmittedAt)
	})
	return apps, nil
}

func (m *MemoryStore) DeleteApplication(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.applications[id]; !ok {
		return ErrNotFound
	}
	delete(m.applications, id)
	return nil
}

func (m *MemoryStore) AcceptApplication(ctx context.Context, applicationID uuid.UUID, owner models.ActorRef) (models.Engagement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.applications[applicationID]
	if !ok {
		return models.Engagement{}, ErrNotFound
	}
	if app.Accepted {
		return models.Engagement{}, ErrAlreadyAccepted
	}
	item, ok := m.workItems[app.WorkItemID]
	if !ok {
		return models.Engagement{}, ErrNotFound
	}
	if item.Status != models.WorkItemOpen {
		return models.Engagement{}, ErrItemClosed
	}

	app.Accepted = true
	m.applications[applicationID] = app
	item.Status = models.WorkItemClosed
	m.workItems[item.ID] = item

	e := models.Engagement{
		ID:          uuid.New(),
		SourceKind:  item.Kind,
		WorkItemID:  item.ID,
		Provider:    app.Provider,
		Owner:       owner,
		PaymentMode: item.PaymentMode,
		Status:      models.EngagementPending,
		CreatedAt:   time.Now().UTC(),
	}
	m.engagements[e.ID] = e
	return e, nil
}

func (m *MemoryStore) GetEngagement(ctx context.Context, id uuid.UUID) (models.Engagement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.engagements[id]
	if !ok {
		return models.Engagement{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryStore) ListEngagementsForActor(ctx context.Context, actorID uuid.UUID, status models.EngagementStatus) ([]models.Engagement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Engagement
	for _, e := range m.engagements {
		if e.Owner.ID != actorID && e.Provider != actorID {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) CompleteEngagement(ctx context.Context, id uuid.UUID, intentID *string) (models.Engagement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engagements[id]
	if !ok {
		return models.Engagement{}, ErrNotFound
	}
	e.Status = models.EngagementCompleted
	if intentID != nil {
		v := *intentID
		e.PaymentIntentID = &v
	}
	m.engagements[id] = e
	return e, nil
}

func (m *MemoryStore) MarkEngagementAwaitingPayment(ctx context.Context, id uuid.UUID, intentID string) (models.Engagement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engagements[id]
	if !ok {
		return models.Engagement{}, ErrNotFound
	}
	e.Status = models.EngagementAwaitingPayment
	e.PaymentIntentID = &intentID
	m.engagements[id] = e
	return e, nil
}

func (m *MemoryStore) SetEngagementRating(ctx context.Context, id uuid.UUID, rating int) (models.Engagement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engagements[id]
	if !ok {
		return models.Engagement{}, ErrNotFound
	}
	e.Rating = &rating
	m.engagements[id] = e
	return e, nil
}

func (m *MemoryStore) ListProviderRatings(ctx context.Context, providerID uuid.UUID) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rated []models.Engagement
	for _, e := range m.engagements {
		if e.Provider == providerID && e.Status == models.EngagementCompleted && e.Rating != nil {
			rated = append(rated, e)
		}
	}
	sort.Slice(rated, func(i, j int) bool {
		return rated[i].CreatedAt.Before(rated[j].CreatedAt)
	})
	ratings := make([]int, 0, len(rated))
	for _, e := range rated {
		ratings = append(ratings, *e.Rating)
	}
	return ratings, nil
}

func (m *MemoryStore) CreateNotification(ctx context.Context, in NotificationInput) (models.Notification, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	n := models.Notification{
		ID:           in.ID,
		Recipient:    in.Recipient,
		Message:      in.Message,
		WorkItemID:   in.WorkItemID,
		EngagementID: in.EngagementID,
		CreatedAt:    time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[n.ID] = n
	return n, nil
}

func (m *MemoryStore) GetNotification(ctx context.Context, id uuid.UUID) (models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return models.Notification{}, ErrNotFound
	}
	return n, nil
}

func (m *MemoryStore) ListNotifications(ctx context.Context, recipient uuid.UUID) ([]models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Notification
	for _, n := range m.notifications {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) DeleteNotification(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[id]; !ok {
		return ErrNotFound
	}
	delete(m.notifications, id)
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
