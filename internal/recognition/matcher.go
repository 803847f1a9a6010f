// Package recognition adapts an external face recognizer to the ingestion pipeline.
// The pipeline only consumes the recognizer's output contract: a frame goes in, an
// employee id and a confidence come out.
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"face-attendance/internal/errors"
	"face-attendance/internal/logger"
)

// ErrNoMatch is returned when the recognizer found no enrolled face in the frame
var ErrNoMatch = errors.NewStd("no face matched")

// Frame references a captured camera frame. The pipeline never stores image data.
type Frame struct {
	CameraID   string    `json:"camera_id"`
	FrameRef   string    `json:"frame_ref"`
	CapturedAt time.Time `json:"captured_at"`
}

// Match is the recognizer's answer for one frame
type Match struct {
	EmployeeID string  `json:"employee_id"`
	Confidence float64 `json:"confidence"`
}

// Matcher identifies the employee in a frame
type Matcher interface {
	Match(ctx context.Context, frame Frame) (*Match, error)
}

// HTTPMatcher calls a recognition service over HTTP
type HTTPMatcher struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

func NewHTTPMatcher(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPMatcher {
	if log == nil {
		log = logger.NewNop()
	}
	return &HTTPMatcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Named("recognition"),
	}
}

// Match posts the frame reference to /match on the recognition service
func (m *HTTPMatcher) Match(ctx context.Context, frame Frame) (*Match, error) {
	body, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/match", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("recognition").
			Category(errors.CategoryTransient).
			Context("frame_ref", frame.FrameRef).
			Build()
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return nil, ErrNoMatch
	case resp.StatusCode >= 500:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Newf("recognizer returned status %d: %s", resp.StatusCode, string(respBody)).
			Component("recognition").
			Category(errors.CategoryTransient).
			Build()
	case resp.StatusCode != http.StatusOK:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Newf("recognizer returned status %d: %s", resp.StatusCode, string(respBody)).
			Component("recognition").
			Category(errors.CategoryNetwork).
			Build()
	}

	var match Match
	if err := json.NewDecoder(resp.Body).Decode(&match); err != nil {
		return nil, fmt.Errorf("failed to decode match: %w", err)
	}
	if match.EmployeeID == "" {
		return nil, ErrNoMatch
	}

	m.log.Debug("frame matched",
		"camera_id", frame.CameraID,
		"frame_ref", frame.FrameRef,
		"employee_id", match.EmployeeID,
		"confidence", match.Confidence,
		"duration", time.Since(start))
	return &match, nil
}
