package recognition

import (
	"context"
	"time"

	"face-attendance/internal/errors"
	"face-attendance/internal/logger"
	"face-attendance/internal/models"
	"face-attendance/internal/services"
)

// FrameProcessor runs frames through the matcher and feeds the result to the ingestor
type FrameProcessor struct {
	matcher  Matcher
	ingestor services.DetectionIngestor
	log      *logger.Logger
	now      func() time.Time
}

func NewFrameProcessor(matcher Matcher, ingestor services.DetectionIngestor, log *logger.Logger) *FrameProcessor {
	if log == nil {
		log = logger.NewNop()
	}
	return &FrameProcessor{
		matcher:  matcher,
		ingestor: ingestor,
		log:      log.Named("frames"),
		now:      time.Now,
	}
}

// Process matches one frame. A frame without a recognizable face returns ErrNoMatch
// and produces no detection.
func (p *FrameProcessor) Process(ctx context.Context, frame Frame) (*models.MatchEvent, error) {
	if frame.CameraID == "" || frame.FrameRef == "" {
		return nil, errors.ValidationError(models.RejectMalformed, "frame requires camera_id and frame_ref")
	}
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = p.now()
	}

	match, err := p.matcher.Match(ctx, frame)
	if err != nil {
		return nil, err
	}

	return p.ingestor.Ingest(ctx, &models.RawDetection{
		EmployeeID: match.EmployeeID,
		CameraID:   frame.CameraID,
		Timestamp:  frame.CapturedAt,
		Confidence: match.Confidence,
		FrameRef:   frame.FrameRef,
	})
}
