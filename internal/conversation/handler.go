package conversation

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/apichafoko/RegistroCirugias-sub001/pkg/logging"
)

// Handler wires HTTP requests to the conversation pipeline. Inbound events
// are enqueued for the worker; synchronous processing is exposed separately
// for tooling and tests.
type Handler struct {
	publisher *Publisher
	service   Service
	logger    *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(publisher *Publisher, service Service, logger *logging.Logger) *Handler {
	if publisher == nil {
		panic("conversation: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		publisher: publisher,
		service:   service,
		logger:    logger,
	}
}

type enqueueResponse struct {
	JobID          string `json:"job_id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
}

// Event handles POST /events: decode, enqueue, 202.
func (h *Handler) Event(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode event request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.ConversationID) == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	jobID := uuid.NewString()
	if err := h.publisher.EnqueueMessage(r.Context(), jobID, req); err != nil {
		h.logger.Error("failed to enqueue event", "error", err, "conversation_id", req.ConversationID)
		http.Error(w, "Failed to enqueue event", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, enqueueResponse{
		JobID:          jobID,
		ConversationID: req.ConversationID,
		Status:         "queued",
	})
}

// Message handles POST /conversations/message synchronously.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		http.Error(w, "Synchronous processing not enabled", http.StatusNotImplemented)
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode message request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.ProcessMessage(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to process message", "error", err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
