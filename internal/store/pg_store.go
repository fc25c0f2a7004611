package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/crafthub/engage/internal/models"
)

// PGStore persists the marketplace entities in Postgres.
//
// Expected schema:
//
//	work_items   (id uuid PK, kind text, title text, description text, category text,
//	              location text, owner_id uuid, owner_kind text, payment_mode text,
//	              status text, created_at timestamptz DEFAULT now())
//	applications (id uuid PK, work_item_id uuid REFERENCES work_items(id) ON DELETE CASCADE,
//	              work_item_kind text, provider_id uuid, provider_name text,
//	              provider_contact text, provider_experience text,
//	              accepted boolean DEFAULT false, submitted_at timestamptz DEFAULT now(),
//	              UNIQUE (work_item_id, provider_id))
//	engagements  (id uuid PK, source_kind text, work_item_id uuid, provider_id uuid,
//	              owner_id uuid, owner_kind text, payment_mode text, status text,
//	              payment_intent_id text, rating int, created_at timestamptz DEFAULT now())
//	notifications(id uuid PK, recipient_id uuid, message text, work_item_id uuid,
//	              engagement_id uuid, created_at timestamptz DEFAULT now())
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const workItemColumns = `id, kind, title, description, category, location, owner_id, owner_kind, payment_mode, status, created_at`

func scanWorkItem(row interface{ Scan(...interface{}) error }) (models.WorkItem, error) {
	var (
		item                            models.WorkItem
		description, category, location sql.NullString
	)
	err := row.Scan(
		&item.ID,
		&item.Kind,
		&item.Title,
		&description,
		&category,
		&location,
		&item.Owner.ID,
		&item.Owner.Kind,
		&item.PaymentMode,
		&item.Status,
		&item.CreatedAt,
	)
	if err != nil {
		return models.WorkItem{}, err
	}
	item.Description = description.String
	item.Category = category.String
	item.Location = location.String
	return item, nil
}

func (s *PGStore) CreateWorkItem(ctx context.Context, in WorkItemInput) (models.WorkItem, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	query := `
		INSERT INTO work_items (id, kind, title, description, category, location, owner_id, owner_kind, payment_mode, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := s.db.QueryRowContext(
		ctx,
		query,
		in.ID,
		in.Kind,
		in.Title,
		in.Description,
		in.Category,
		in.Location,
		in.Owner.ID,
		in.Owner.Kind,
		in.PaymentMode,
		models.WorkItemOpen,
	).Scan(&createdAt); err != nil {
		return models.WorkItem{}, fmt.Errorf("insert work item: %w", err)
	}
	return models.WorkItem{
		ID:          in.ID,
		Kind:        in.Kind,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Location:    in.Location,
		Owner:       in.Owner,
		PaymentMode: in.PaymentMode,
		Status:      models.WorkItemOpen,
		CreatedAt:   createdAt,
	}, nil
}

func (s *PGStore) GetWorkItem(ctx context.Context, id uuid.UUID) (models.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE id = $1`
	item, err := scanWorkItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.WorkItem{}, ErrNotFound
		}
		return models.WorkItem{}, fmt.Errorf("select work item: %w", err)
	}
	return item, nil
}

func (s *PGStore) listWorkItems(ctx context.Context, query string, args ...interface{}) ([]models.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query work items: %w", err)
	}
	defer rows.Close()

	var items []models.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("work items rows err: %w", err)
	}
	return items, nil
}

// ListOpenWorkItems returns items that are open and have no accepted
// application. The accepted-bid check is computed per read, never cached: an
// item stuck open with only pending bids still lists, and drops out the
// moment one bid is accepted.
func (s *PGStore) ListOpenWorkItems(ctx context.Context) ([]models.WorkItem, error) {
	query := `
		SELECT ` + workItemColumns + `
		FROM work_items w
		WHERE w.status = 'open'
		  AND NOT EXISTS (
			SELECT 1 FROM applications a
			WHERE a.work_item_id = w.id AND a.accepted
		  )
		ORDER BY w.created_at DESC
	`
	return s.listWorkItems(ctx, query)
}

func (s *PGStore) ListWorkItemsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.WorkItem, error) {
	query := `
		SELECT ` + workItemColumns + `
		FROM work_items
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`
	return s.listWorkItems(ctx, query, ownerID)
}

// DeleteWorkItem removes the item; the ON DELETE CASCADE on applications
// removes its pending bids in the same statement, so no reader ever holds an
// application whose item is gone.
func (s *PGStore) DeleteWorkItem(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM work_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete work item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete work item rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const applicationColumns = `id, work_item_id, work_item_kind, provider_id, provider_name, provider_contact, provider_experience, accepted, submitted_at`

func scanApplication(row interface{ Scan(...interface{}) error }) (models.Application, error) {
	var app models.Application
	err := row.Scan(
		&app.ID,
		&app.WorkItemID,
		&app.WorkItemKind,
		&app.Provider,
		&app.ProviderName,
		&app.ProviderContact,
		&app.ProviderExperience,
		&app.Accepted,
		&app.SubmittedAt,
	)
	return app, err
}

func (s *PGStore) CreateApplication(ctx context.Context, in ApplicationInput) (models.Application, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	query := `
		INSERT INTO applications (id, work_item_id, work_item_kind, provider_id, provider_name, provider_contact, provider_experience)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING submitted_at
	`
	var submittedAt time.Time
	err := s.db.QueryRowContext(
		ctx,
		query,
		in.ID,
		in.WorkItemID,
		in.WorkItemKind,
		in.Provider,
		in.ProviderName,
		in.ProviderContact,
		in.ProviderExperience,
	).Scan(&submittedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.Application{}, ErrConflict
		}
		return models.Application{}, fmt.Errorf("insert application: %w", err)
	}
	return models.Application{
		ID:                 in.ID,
		WorkItemID:         in.WorkItemID,
		WorkItemKind:       in.WorkItemKind,
		Provider:           in.Provider,
		ProviderName:       in.ProviderName,
		ProviderContact:    in.ProviderContact,
		ProviderExperience: in.ProviderExperience,
		Accepted:           false,
		SubmittedAt:        submittedAt,
	}, nil
}

func (s *PGStore) GetApplication(ctx context.Context, id uuid.UUID) (models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	app, err := scanApplication(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Application{}, ErrNotFound
		}
		return models.Application{}, fmt.Errorf("select application: %w", err)
	}
	return app, nil
}

func (s *PGStore) ListPendingApplicationsForOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Application, error) {
	query := `
		SELECT a.id, a.work_item_id, a.work_item_kind, a.provider_id, a.provider_name,
		       a.provider_contact, a.provider_experience, a.accepted, a.submitted_at
		FROM applications a
		JOIN work_items w ON w.id = a.work_item_id
		WHERE w.owner_id = $1 AND NOT a.accepted
		ORDER BY a.submitted_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	var apps []models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("applications rows err: %w", err)
	}
	return apps, nil
}

func (s *PGStore) DeleteApplication(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete application rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AcceptApplication performs the accept transition in one transaction: it
// locks the application row, verifies it is still unaccepted and its item
// still open, flips the flag, closes the item, and inserts the engagement.
// Concurrent accepts on the same application (or on two applications of the
// same item) serialize on the row locks; the loser gets ErrAlreadyAccepted or
// ErrItemClosed.
func (s *PGStore) AcceptApplication(ctx context.Context, applicationID uuid.UUID, owner models.ActorRef) (models.Engagement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Engagement{}, fmt.Errorf("begin accept tx: %w", err)
	}
	defer tx.Rollback()

	var (
		workItemID uuid.UUID
		providerID uuid.UUID
		accepted   bool
	)
	err = tx.QueryRowContext(ctx, `
		SELECT work_item_id, provider_id, accepted
		FROM applications
		WHERE id = $1
		FOR UPDATE
	`, applicationID).Scan(&workItemID, &providerID, &accepted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Engagement{}, ErrNotFound
		}
		return models.Engagement{}, fmt.Errorf("lock application: %w", err)
	}
	if accepted {
		return models.Engagement{}, ErrAlreadyAccepted
	}

	var (
		itemKind    models.WorkItemKind
		paymentMode models.PaymentMode
		itemStatus  models.WorkItemStatus
	)
	err = tx.QueryRowContext(ctx, `
		SELECT kind, payment_mode, status
		FROM work_items
		WHERE id = $1
		FOR UPDATE
	`, workItemID).Scan(&itemKind, &paymentMode, &itemStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Engagement{}, ErrNotFound
		}
		return models.Engagement{}, fmt.Errorf("lock work item: %w", err)
	}
	if itemStatus != models.WorkItemOpen {
		return models.Engagement{}, ErrItemClosed
	}

	if _, err := tx.ExecContext(ctx, `UPDATE applications SET accepted = true WHERE id = $1`, applicationID); err != nil {
		return models.Engagement{}, fmt.Errorf("mark application accepted: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE work_items SET status = 'closed' WHERE id = $1`, workItemID); err != nil {
		return models.Engagement{}, fmt.Errorf("close work item: %w", err)
	}

	engagementID := uuid.New()
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `
		INSERT INTO engagements (id, source_kind, work_item_id, provider_id, owner_id, owner_kind, payment_mode, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, engagementID, itemKind, workItemID, providerID, owner.ID, owner.Kind, paymentMode, models.EngagementPending).Scan(&createdAt)
	if err != nil {
		return models.Engagement{}, fmt.Errorf("insert engagement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Engagement{}, fmt.Errorf("commit accept tx: %w", err)
	}

	return models.Engagement{
		ID:          engagementID,
		SourceKind:  itemKind,
		WorkItemID:  workItemID,
		Provider:    providerID,
		Owner:       owner,
		PaymentMode: paymentMode,
		Status:      models.EngagementPending,
		CreatedAt:   createdAt,
	}, nil
}

const engagementColumns = `id, source_kind, work_item_id, provider_id, owner_id, owner_kind, payment_mode, status, payment_intent_id, rating, created_at`

func scanEngagement(row interface{ Scan(...interface{}) error }) (models.Engagement, error) {
	var (
		e        models.Engagement
		intentID sql.NullString
		rating   sql.NullInt64
	)
	err := row.Scan(
		&e.ID,
		&e.SourceKind,
		&e.WorkItemID,
		&e.Provider,
		&e.Owner.ID,
		&e.Owner.Kind,
		&e.PaymentMode,
		&e.Status,
		&intentID,
		&rating,
		&e.CreatedAt,
	)
	if err != nil {
		return models.Engagement{}, err
	}
	if intentID.Valid {
		e.PaymentIntentID = &intentID.String
	}
	if rating.Valid {
		r := int(rating.Int64)
		e.Rating = &r
	}
	return e, nil
}

func (s *PGStore) GetEngagement(ctx context.Context, id uuid.UUID) (models.Engagement, error) {
	query := `SELECT ` + engagementColumns + ` FROM engagements WHERE id = $1`
	e, err := scanEngagement(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Engagement{}, ErrNotFound
		}
		return models.Engagement{}, fmt.Errorf("select engagement: %w", err)
	}
	return e, nil
}

func (s *PGStore) ListEngagementsForActor(ctx context.Context, actorID uuid.UUID, status models.EngagementStatus) ([]models.Engagement, error) {
	query := `
		SELECT ` + engagementColumns + `
		FROM engagements
		WHERE (owner_id = $1 OR provider_id = $1)
	`
	args := []interface{}{actorID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query engagements: %w", err)
	}
	defer rows.Close()

	var out []models.Engagement
	for rows.Next() {
		e, err := scanEngagement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan engagement: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engagements rows err: %w", err)
	}
	return out, nil
}

func (s *PGStore) updateEngagement(ctx context.Context, query string, args ...interface{}) (models.Engagement, error) {
	e, err := scanEngagement(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Engagement{}, ErrNotFound
		}
		return models.Engagement{}, fmt.Errorf("update engagement: %w", err)
	}
	return e, nil
}

func (s *PGStore) CompleteEngagement(ctx context.Context, id uuid.UUID, intentID *string) (models.Engagement, error) {
	query := `
		UPDATE engagements
		SET status = 'completed', payment_intent_id = COALESCE($2, payment_intent_id)
		WHERE id = $1
		RETURNING ` + engagementColumns
	return s.updateEngagement(ctx, query, id, intentID)
}

func (s *PGStore) MarkEngagementAwaitingPayment(ctx context.Context, id uuid.UUID, intentID string) (models.Engagement, error) {
	query := `
		UPDATE engagements
		SET status = 'awaiting_payment', payment_intent_id = $2
		WHERE id = $1
		RETURNING ` + engagementColumns
	return s.updateEngagement(ctx, query, id, intentID)
}

func (s *PGStore) SetEngagementRating(ctx context.Context, id uuid.UUID, rating int) (models.Engagement, error) {
	query := `
		UPDATE engagements
		SET rating = $2
		WHERE id = $1
		RETURNING ` + engagementColumns
	return s.updateEngagement(ctx, query, id, rating)
}

// ListProviderRatings returns the ratings across all of a provider's
// completed, rated engagements, oldest first. The reputation aggregator
// recomputes the full mean from this set on every rating event.
func (s *PGStore) ListProviderRatings(ctx context.Context, providerID uuid.UUID) ([]int, error) {
	query := `
		SELECT rating
		FROM engagements
		WHERE provider_id = $1 AND status = 'completed' AND rating IS NOT NULL
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("query provider ratings: %w", err)
	}
	defer rows.Close()

	var ratings []int
	for rows.Next() {
		var r int
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ratings = append(ratings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ratings rows err: %w", err)
	}
	return ratings, nil
}

func (s *PGStore) CreateNotification(ctx context.Context, in NotificationInput) (models.Notification, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	query := `
		INSERT INTO notifications (id, recipient_id, message, work_item_id, engagement_id)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := s.db.QueryRowContext(ctx, query, in.ID, in.Recipient, in.Message, in.WorkItemID, in.EngagementID).Scan(&createdAt); err != nil {
		return models.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return models.Notification{
		ID:           in.ID,
		Recipient:    in.Recipient,
		Message:      in.Message,
		WorkItemID:   in.WorkItemID,
		EngagementID: in.EngagementID,
		CreatedAt:    createdAt,
	}, nil
}

func scanNotification(row interface{ Scan(...interface{}) error }) (models.Notification, error) {
	var (
		n                      models.Notification
		workItemID, engagement uuid.NullUUID
	)
	err := row.Scan(&n.ID, &n.Recipient, &n.Message, &workItemID, &engagement, &n.CreatedAt)
	if err != nil {
		return models.Notification{}, err
	}
	if workItemID.Valid {
		n.WorkItemID = &workItemID.UUID
	}
	if engagement.Valid {
		n.EngagementID = &engagement.UUID
	}
	return n, nil
}

func (s *PGStore) GetNotification(ctx context.Context, id uuid.UUID) (models.Notification, error) {
	query := `SELECT id, recipient_id, message, work_item_id, engagement_id, created_at FROM notifications WHERE id = $1`
	n, err := scanNotification(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Notification{}, ErrNotFound
		}
		return models.Notification{}, fmt.Errorf("select notification: %w", err)
	}
	return n, nil
}

func (s *PGStore) ListNotifications(ctx context.Context, recipient uuid.UUID) ([]models.Notification, error) {
	query := `
		SELECT id, recipient_id, message, work_item_id, engagement_id, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, recipient)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notifications rows err: %w", err)
	}
	return out, nil
}

func (s *PGStore) DeleteNotification(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete notification rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}
