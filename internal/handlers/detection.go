// Package handlers provides HTTP handlers for API endpoints
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"face-attendance/internal/errors"
	"face-attendance/internal/logger"
	"face-attendance/internal/models"
	"face-attendance/internal/recognition"
	"face-attendance/internal/services"
)

// FrameProcessor turns a frame reference into a detection
type FrameProcessor interface {
	Process(ctx context.Context, frame recognition.Frame) (*models.MatchEvent, error)
}

// DetectionHandler handles camera detection requests
type DetectionHandler struct {
	ingestor services.DetectionIngestor
	frames   FrameProcessor
	log      *logger.Logger
}

// NewDetectionHandler creates a new detection handler. frames may be nil when no
// recognition service is configured.
func NewDetectionHandler(ingestor services.DetectionIngestor, frames FrameProcessor, log *logger.Logger) *DetectionHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &DetectionHandler{ingestor: ingestor, frames: frames, log: log.Named("http.detections")}
}

type ingestResponse struct {
	Status string              `json:"status"`
	Event  *models.MatchEvent  `json:"event,omitempty"`
	Reason models.RejectReason `json:"reason,omitempty"`
}

// HandleDetect processes a recognizer detection
func (h *DetectionHandler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.RawDetection
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.log.Debug("detection received",
		"camera_id", req.CameraID,
		"employee_id", req.EmployeeID,
		"confidence", req.Confidence,
		"timestamp", req.Timestamp)

	ev, err := h.ingestor.Ingest(r.Context(), &req)
	h.respond(w, ev, err)
}

// HandleFrame runs a frame reference through the recognizer and ingests the match
func (h *DetectionHandler) HandleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.frames == nil {
		http.Error(w, "Recognition service not configured", http.StatusNotImplemented)
		return
	}

	var frame recognition.Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ev, err := h.frames.Process(r.Context(), frame)
	if errors.Is(err, recognition.ErrNoMatch) {
		writeJSON(w, http.StatusOK, ingestResponse{Status: "no_match"})
		return
	}
	h.respond(w, ev, err)
}

func (h *DetectionHandler) respond(w http.ResponseWriter, ev *models.MatchEvent, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, ingestResponse{Status: "accepted", Event: ev})
	case errors.Is(err, services.ErrQueued):
		// The event may already be in the log; reconciliation is pending.
		writeJSON(w, http.StatusAccepted, ingestResponse{Status: "queued", Event: ev})
	case errors.Is(err, services.ErrDeadLettered):
		writeJSON(w, http.StatusServiceUnavailable, ingestResponse{Status: "dead_lettered", Reason: models.RejectDirectoryUnavailable})
	default:
		if reason, ok := errors.RejectReasonOf(err); ok {
			h.log.Debug("detection rejected", "reason", reason, "error", err)
			writeJSON(w, http.StatusUnprocessableEntity, ingestResponse{Status: "rejected", Reason: reason})
			return
		}
		h.log.Error("error processing detection", "error", err)
		writeError(w, err)
	}
}
