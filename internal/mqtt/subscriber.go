package mqtt

import (
	"context"
	"encoding/json"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"

	"face-attendance/internal/errors"
	"face-attendance/internal/models"
	"face-attendance/internal/services"
)

// DetectionSubscriber feeds detections published by cameras into the ingestor
type DetectionSubscriber struct {
	client   *Client
	topic    string
	ingestor services.DetectionIngestor
	ctx      context.Context
}

func NewDetectionSubscriber(client *Client, ingestor services.DetectionIngestor) *DetectionSubscriber {
	return &DetectionSubscriber{client: client, topic: client.cfg.DetectionTopic, ingestor: ingestor}
}

// Run subscribes and blocks until ctx is cancelled
func (s *DetectionSubscriber) Run(ctx context.Context) error {
	s.ctx = ctx
	s.client.log.Info("subscribing to detections", "topic", s.topic)
	if err := s.client.subscribe(s.topic, s.handleMessage); err != nil {
		return err
	}
	<-ctx.Done()
	s.client.unsubscribe(s.topic)
	return nil
}

// cameraFromTopic returns the last topic level, e.g. attendance/detections/cam1
func cameraFromTopic(topic string) string {
	if i := strings.LastIndex(topic, "/"); i >= 0 && i < len(topic)-1 {
		return topic[i+1:]
	}
	return ""
}

func (s *DetectionSubscriber) handleMessage(_ paho.Client, msg paho.Message) {
	log := s.client.log

	var d models.RawDetection
	if err := json.Unmarshal(msg.Payload(), &d); err != nil {
		log.Warn("failed to parse detection", "topic", msg.Topic(), "error", err)
		return
	}
	if d.CameraID == "" {
		d.CameraID = cameraFromTopic(msg.Topic())
	}

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ev, err := s.ingestor.Ingest(ctx, &d)
	switch {
	case err == nil:
		log.Debug("detection ingested", "event_id", ev.ID, "camera_id", d.CameraID)
	case errors.Is(err, services.ErrQueued):
		log.Info("detection queued for retry", "employee_id", d.EmployeeID, "camera_id", d.CameraID)
	default:
		if reason, ok := errors.RejectReasonOf(err); ok {
			log.Debug("detection rejected", "reason", reason, "employee_id", d.EmployeeID, "camera_id", d.CameraID)
			return
		}
		log.Error("failed to ingest detection", "employee_id", d.EmployeeID, "error", err)
	}
}
