package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/crafthub/engage/internal/auth"
	"github.com/crafthub/engage/internal/identity"
	"github.com/crafthub/engage/internal/models"
	"github.com/crafthub/engage/internal/payment"
	"github.com/crafthub/engage/internal/service"
	"github.com/crafthub/engage/internal/store"
)

type Server struct {
	svc      *service.Service
	db       store.Store
	verifier *auth.Verifier
}

func New(svc *service.Service, db store.Store, verifier *auth.Verifier) *Server {
	return &Server{
		svc:      svc,
		db:       db,
		verifier: verifier,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.verifier.Middleware)

		r.Route("/items", func(r chi.Router) {
			r.Post("/", s.handlePostWorkItem)
			r.Get("/open", s.handleListOpenWorkItems)
			r.Get("/mine", s.handleListMyWorkItems)
			r.Delete("/{id}", s.handleDeleteWorkItem)
		})

		r.Route("/applications", func(r chi.Router) {
			r.Post("/", s.handleSubmitApplication)
			r.Get("/incoming", s.handleListIncomingApplications)
			r.Post("/{id}/accept", s.handleAcceptApplication)
			r.Post("/{id}/reject", s.handleRejectApplication)
			r.Delete("/{id}", s.handleWithdrawApplication)
		})

		r.Route("/engagements", func(r chi.Router) {
			r.Get("/", s.handleListEngagements)
			r.Get("/{id}", s.handleGetEngagement)
			r.Post("/{id}/complete", s.handleCompleteEngagement)
			r.Post("/{id}/confirm-payment", s.handleConfirmPayment)
			r.Post("/{id}/rating", s.handleRateEngagement)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Delete("/{id}", s.handleDeleteNotification)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.db.Ping(ctx); err != nil {
		status["ok"] = false
		status["db"] = "down"
		status["error"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status["db"] = "up"
	respondJSON(w, http.StatusOK, status)
}

type postWorkItemRequest struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Location    string `json:"location"`
	PaymentMode string `json:"paymentMode"`
}

func (s *Server) handlePostWorkItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "ENGAGE_AUTH", "authentication required")
		return
	}
	var req postWorkItemRequest
	if err := decodeJSON(w, r, &req, 64*1024); err != nil {
		respondError(w, http.StatusBadRequest, "ENGAGE_BAD_REQUEST", err.Error())
		return
	}
	item, err := s.svc.PostWorkItem(r.Context(), actor, service.PostWorkItemInput{
		Kind:        models.WorkItemKind(req.Kind),
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Location:    req.Location,
		PaymentMode: models.PaymentMode(req.PaymentMode),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleListOpenWorkItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.ListOpenWorkItems(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleListMyWorkItems(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	items, err := s.svc.ListWorkItemsByOwner(r.Context(), actor)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleDeleteWorkItem(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "ENGAGE_BAD_REQUEST", "invalid work item id")
		return
	}
	if err := s.svc.DeleteWorkItem(r.Context(), id, actor); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

type submitApplicationRequest struct {
	WorkItemID string `json:"workItemId"`
}

func (s *Server) handleSubmitApplication(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	var req submitApplicationRequest
	if err := decodeJSON(w, r, &req, 16*1024); err != nil {
		respondError(w, http.StatusBadRequest, "ENGAGE_BAD_REQUEST", err.Error())
		return
	}
	itemID, err := uuid.Parse(req.WorkItemID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "ENGAGE_BAD_REQUEST", "invalid work item id")
		return
	}
	app, err := s.svc.SubmitApplication(r.Context(), itemID, actor.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, app)
}

func (s *Server) handleListIncomingApplications(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	apps, err := s.svc.ListIncomingApplications(r.Context(), actor)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"applications": apps})
}

func (s *Server) applicationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "ENGAGE_BAD_REQUEST", "invalid application id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleAcceptApplication(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	id, ok := s.applicationID(w, r)
	if !ok {
		return
	}
	engagement, err := s.svc.AcceptApplication(r.Context(), id, actor)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, engagement)
}

func (s *Server) handleRejectApplication(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	id, ok := s.applicationID(w, r)
	if !ok {
		return
	}
	if err := s.svc.RejectApplication(r.Context(), id, actor); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"rejected": id})
}

func (s *Server) handleWithdrawApplication(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	id, ok := s.applicationID(w, r)
	if !ok {
		return
	}
	if err := s.svc.WithdrawApplication(r.Context(), id, actor); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"withdrawn": id})
}

func (s *Server) handleListEngagements(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	status := models.EngagementStatus(r.URL.Query().Get("status"))
	engagements, err := s.svc.ListEngagements(r.Context(), actor, status)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"engagements": engagements})
}

func (s *Server) handleGetEngagement(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "ENGAGE_BAD_REQUEST", "invalid engagement id")
		return
	}
	engagement, err := s.svc.GetEngagement(r.Context(), id, actor)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, engagement)
}

type completeEngagementRequest struct {
	AmountMinorUnits int64  `json:"amountMinorUnits"`
	MethodHint       string `json:"methodHint"`
}

func (s *Server) handleCompleteEngagement(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "ENGAGE_BAD_REQUEST", "invalid engagement id")
		return
	}
	var req completeEngagementRequest
	if err := decodeJSON(w, r, &req, 16*1024); err != nil {
		respondError(w, http.StatusBadRequest, "ENGAGE_BAD_REQUEST", err.Error())
		return
	}
	result, err := s.svc.CompleteEngagement(r.Context(), id, actor, req.AmountMinorUnits, req.MethodHint)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if result.Continuation != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"engagement":   result.Engagement,
			"continuation": result.Continuation,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"engagement": result.Engagement,
	})
}

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "ENGAGE_BAD_REQUEST", "invalid engagement id")
		return
	}
	var req confirmPaymentRequest
	if err := decodeJSON(w, r, &req, 16*1024); err != nil {
		respondError(w, http.StatusBadRequest, "ENGAGE_BAD_REQUEST", err.Error())
		return
	}
	engagement, err := s.svc.ConfirmPayment(r.Context(), id, req.PaymentIntentID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, engagement)
}

type rateEngagementRequest struct {
	Rating int `json:"rating"`
}

func (s *Server) handleRateEngagement(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "ENGAGE_BAD_REQUEST", "invalid engagement id")
		return
	}
	var req rateEngagementRequest
	if err := decodeJSON(w, r, &req, 16*1024); err != nil {
		respondError(w, http.StatusBadRequest, "ENGAGE_BAD_REQUEST", err.Error())
		return
	}
	score, err := s.svc.RateEngagement(r.Context(), id, actor, req.Rating)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"providerScore": score})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	notifications, err := s.svc.ListNotifications(r.Context(), actor)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"notifications": notifications})
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "ENGAGE_BAD_REQUEST", "invalid notification id")
		return
	}
	if err := s.svc.DeleteNotification(r.Context(), id, actor); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// respondServiceError maps the core error taxonomy onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respondError(w, http.StatusBadRequest, "ENGAGE_BAD_REQUEST", err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, identity.ErrNotFound):
		respondError(w, http.StatusNotFound, "ENGAGE_NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrConflict):
		respondError(w, http.StatusConflict, "ENGAGE_CONFLICT", err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "ENGAGE_FORBIDDEN", err.Error())
	case errors.Is(err, store.ErrAlreadyAccepted),
		errors.Is(err, store.ErrItemClosed),
		errors.Is(err, service.ErrInvalidState):
		respondError(w, http.StatusConflict, "ENGAGE_INVALID_STATE", err.Error())
	case errors.Is(err, payment.ErrPaymentFailed):
		respondError(w, http.StatusPaymentRequired, "ENGAGE_PAYMENT_FAILED", err.Error())
	case errors.Is(err, service.ErrPaymentPending):
		respondError(w, http.StatusConflict, "ENGAGE_PAYMENT_PENDING", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "ENGAGE_INTERNAL", err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, limit int64) error {
	if limit <= 0 {
		limit = 1 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}
