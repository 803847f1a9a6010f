package recognition

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"face-attendance/internal/errors"
	"face-attendance/internal/models"
)

const testRecognizerURL = "http://recognizer.test"

var capturedAt = time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC)

func newTestMatcher(t *testing.T) *HTTPMatcher {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewHTTPMatcher(testRecognizerURL+"/", time.Second, nil)
}

func TestHTTPMatcher(t *testing.T) {
	frame := Frame{CameraID: "cam1", FrameRef: "s3://frames/0001.jpg", CapturedAt: capturedAt}

	tests := []struct {
		name          string
		responder     httpmock.Responder
		wantMatch     *Match
		wantNoMatch   bool
		wantTransient bool
	}{
		{
			name:      "Match found",
			responder: httpmock.NewJsonResponderOrPanic(http.StatusOK, Match{EmployeeID: "E", Confidence: 0.93}),
			wantMatch: &Match{EmployeeID: "E", Confidence: 0.93},
		},
		{
			name:        "No face in frame",
			responder:   httpmock.NewStringResponder(http.StatusNoContent, ""),
			wantNoMatch: true,
		},
		{
			name:        "Empty employee id",
			responder:   httpmock.NewJsonResponderOrPanic(http.StatusOK, Match{Confidence: 0.2}),
			wantNoMatch: true,
		},
		{
			name:          "Recognizer overloaded",
			responder:     httpmock.NewStringResponder(http.StatusServiceUnavailable, "busy"),
			wantTransient: true,
		},
		{
			name:      "Bad request",
			responder: httpmock.NewStringResponder(http.StatusBadRequest, "frame_ref missing"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMatcher(t)
			httpmock.RegisterResponder(http.MethodPost, testRecognizerURL+"/match", tt.responder)

			got, err := m.Match(context.Background(), frame)
			if tt.wantMatch != nil {
				require.NoError(t, err)
				assert.Equal(t, tt.wantMatch, got)
				return
			}
			require.Error(t, err)
			assert.Nil(t, got)
			assert.Equal(t, tt.wantNoMatch, errors.Is(err, ErrNoMatch))
			assert.Equal(t, tt.wantTransient, errors.IsTransient(err))
		})
	}
}

func TestHTTPMatcherSendsFrameReference(t *testing.T) {
	m := newTestMatcher(t)
	httpmock.RegisterResponder(http.MethodPost, testRecognizerURL+"/match",
		func(req *http.Request) (*http.Response, error) {
			var frame Frame
			require.NoError(t, json.NewDecoder(req.Body).Decode(&frame))
			assert.Equal(t, "cam2", frame.CameraID)
			assert.Equal(t, "frame-42", frame.FrameRef)
			assert.True(t, frame.CapturedAt.Equal(capturedAt))
			return httpmock.NewJsonResponse(http.StatusOK, Match{EmployeeID: "E", Confidence: 0.8})
		})

	_, err := m.Match(context.Background(), Frame{CameraID: "cam2", FrameRef: "frame-42", CapturedAt: capturedAt})
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestHTTPMatcherNetworkError(t *testing.T) {
	m := newTestMatcher(t)
	httpmock.RegisterResponder(http.MethodPost, testRecognizerURL+"/match",
		httpmock.NewErrorResponder(errors.NewStd("connection refused")))

	_, err := m.Match(context.Background(), Frame{CameraID: "cam1", FrameRef: "f"})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

type recordingIngestor struct {
	detections []*models.RawDetection
}

func (r *recordingIngestor) Ingest(_ context.Context, d *models.RawDetection) (*models.MatchEvent, error) {
	r.detections = append(r.detections, d)
	return &models.MatchEvent{ID: "ev", EmployeeID: d.EmployeeID, CameraID: d.CameraID, Timestamp: d.Timestamp}, nil
}

type stubMatcher struct {
	match *Match
	err   error
}

func (s stubMatcher) Match(context.Context, Frame) (*Match, error) { return s.match, s.err }

func TestFrameProcessor(t *testing.T) {
	ingestor := &recordingIngestor{}
	p := NewFrameProcessor(stubMatcher{match: &Match{EmployeeID: "E", Confidence: 0.91}}, ingestor, nil)
	p.now = func() time.Time { return capturedAt }

	ev, err := p.Process(context.Background(), Frame{CameraID: "cam1", FrameRef: "frame-1"})
	require.NoError(t, err)
	assert.Equal(t, "E", ev.EmployeeID)

	require.Len(t, ingestor.detections, 1)
	d := ingestor.detections[0]
	assert.Equal(t, 0.91, d.Confidence)
	assert.Equal(t, "frame-1", d.FrameRef)
	assert.True(t, d.Timestamp.Equal(capturedAt), "missing capture time defaults to now")
}

func TestFrameProcessorSkipsUnmatchedFrames(t *testing.T) {
	ingestor := &recordingIngestor{}
	p := NewFrameProcessor(stubMatcher{err: ErrNoMatch}, ingestor, nil)

	_, err := p.Process(context.Background(), Frame{CameraID: "cam1", FrameRef: "frame-1", CapturedAt: capturedAt})
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.Empty(t, ingestor.detections)

	_, err = p.Process(context.Background(), Frame{CameraID: "cam1"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
