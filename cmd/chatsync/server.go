package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"chatsync/internal/errors"
	"chatsync/internal/metrics"
	"chatsync/internal/middleware"
	"chatsync/internal/models"
	"chatsync/internal/service"
	"chatsync/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server exposes the sync engine to local consumers over HTTP.
type Server struct {
	router        *mux.Router
	logger        *logrus.Logger
	userID        string
	conversations *service.ConversationService
	threads       *service.ThreadService
	notifications *service.NotificationService
	pipeline      *service.SendPipeline
	threadScopes  *service.ThreadControllerSet
	server        *http.Server
}

func NewServer(
	userID string,
	conversations *service.ConversationService,
	threads *service.ThreadService,
	notifications *service.NotificationService,
	pipeline *service.SendPipeline,
	threadScopes *service.ThreadControllerSet,
	logger *logrus.Logger,
) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		logger:        logger,
		userID:        userID,
		conversations: conversations,
		threads:       threads,
		notifications: notifications,
		pipeline:      pipeline,
		threadScopes:  threadScopes,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/conversations", s.handleListConversations()).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", s.handleGetThread()).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", s.handleSend()).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/read", s.handleMarkRead()).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/close", s.handleCloseThread()).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/retry", s.handleRetry()).Methods(http.MethodPost)
	api.HandleFunc("/notifications", s.handleCounters()).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{category}/read", s.handleMarkAllRead()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	port := os.Getenv("CHATSYNC_PORT")
	if port == "" {
		port = "8084"
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Infof("Starting server on port %s", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.threadScopes.CloseAll()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, metrics.Default().Snapshot())
	}
}

func (s *Server) handleListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs, err := s.conversations.LoadConversations(r.Context(), s.userID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, convs)
	}
}

func (s *Server) handleGetThread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counterpartID := mux.Vars(r)["id"]
		if err := validation.ValidateUserID(counterpartID); err != nil {
			s.writeError(w, err)
			return
		}
		s.conversations.EnsureConversationFor(r.Context(), counterpartID)
		// Opening the thread acquires its live-update scope; it outlives the
		// request and is released on /close or shutdown.
		s.threadScopes.Open(context.Background(), counterpartID)

		thread, err := s.threads.LoadThread(r.Context(), s.userID, counterpartID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, thread)
	}
}

type sendRequest struct {
	Content    string `json:"content"`
	Attachment *struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
		Data        string `json:"data"` // base64
		DurationSec int    `json:"durationSec,omitempty"`
	} `json:"attachment,omitempty"`
}

func (s *Server) handleSend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counterpartID := mux.Vars(r)["id"]
		if err := validation.ValidateUserID(counterpartID); err != nil {
			s.writeError(w, err)
			return
		}

		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errors.NewValidationError("body", "invalid JSON payload"))
			return
		}
		if err := validation.ValidateContent(req.Content); err != nil {
			s.writeError(w, err)
			return
		}

		var file *service.OutgoingFile
		if req.Attachment != nil {
			data, err := base64.StdEncoding.DecodeString(req.Attachment.Data)
			if err != nil {
				s.writeError(w, errors.NewValidationError("attachment.data", "invalid base64 payload"))
				return
			}
			file = &service.OutgoingFile{
				Name:        req.Attachment.Name,
				ContentType: req.Attachment.ContentType,
				Data:        data,
				DurationSec: req.Attachment.DurationSec,
			}
		}

		msg, err := s.pipeline.Send(r.Context(), s.userID, counterpartID, req.Content, file)
		if err != nil {
			if errors.GetCode(err) == errors.ErrCodeDeliveryFailed {
				// The failed message is still part of the thread; return it
				// so the caller can offer a retry.
				s.writeJSON(w, http.StatusBadGateway, msg)
				return
			}
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, msg)
	}
}

func (s *Server) handleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counterpartID := mux.Vars(r)["id"]
		if err := validation.ValidateUserID(counterpartID); err != nil {
			s.writeError(w, err)
			return
		}
		flipped, err := s.threads.MarkRead(r.Context(), s.userID, counterpartID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.notifications.HandleThreadRead(flipped)
		s.conversations.ResetUnread(counterpartID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleCloseThread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.threadScopes.Close(mux.Vars(r)["id"])
		w.WriteHeader(http.StatusNoContent)
	}
}

type retryRequest struct {
	CorrelationID string `json:"correlationId"`
}

func (s *Server) handleRetry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counterpartID := mux.Vars(r)["id"]

		var req retryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CorrelationID == "" {
			s.writeError(w, errors.NewValidationError("correlationId", "missing correlation id"))
			return
		}

		msg, err := s.pipeline.Retry(r.Context(), counterpartID, req.CorrelationID)
		if err != nil {
			if errors.GetCode(err) == errors.ErrCodeDeliveryFailed {
				s.writeJSON(w, http.StatusBadGateway, msg)
				return
			}
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, msg)
	}
}

type countersResponse struct {
	models.NotificationCounters
	Badge int `json:"badge"`
}

func (s *Server) handleCounters() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counters := s.notifications.Counters()
		s.writeJSON(w, http.StatusOK, countersResponse{
			NotificationCounters: counters,
			Badge:                counters.Badge(),
		})
	}
}

func (s *Server) handleMarkAllRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := models.NotificationCategory(mux.Vars(r)["category"])
		switch category {
		case models.CategoryMessages, models.CategoryFriendRequests, models.CategoryGeneric:
		default:
			s.writeError(w, errors.NewValidationError("category", "unknown notification category"))
			return
		}
		s.notifications.MarkAllRead(r.Context(), s.userID, category)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsUnavailable(err):
		status = http.StatusServiceUnavailable
	}

	s.logger.WithError(err).WithField("status", status).Warn("Request failed")
	s.writeJSON(w, status, map[string]string{
		"error": errors.GetUserMessage(err),
		"code":  string(errors.GetCode(err)),
	})
}
