// Package notify delivers alerts through shoutrrr service URLs (Slack, Discord,
// ntfy, email and the rest of the shoutrrr catalogue).
package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"face-attendance/internal/errors"
	"face-attendance/internal/models"
	"face-attendance/internal/services"
)

type sender interface {
	Send(message string, params *stypes.Params) []error
}

// ShoutrrrSink is an alert sink backed by one shoutrrr sender for all URLs
type ShoutrrrSink struct {
	urls   []string
	sender sender
}

// NewShoutrrrSink validates urls and builds the sender
func NewShoutrrrSink(urls []string, timeout time.Duration) (*ShoutrrrSink, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one URL is required")
	}
	router, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// shoutrrr errors may echo tokens from the URL
		return nil, errors.Newf("invalid shoutrrr configuration (%d urls)", len(urls)).
			Component("notify").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout > 0 {
		router.Timeout = timeout
	}
	router.SetLogger(log.New(io.Discard, "", 0))
	return &ShoutrrrSink{urls: slices.Clone(urls), sender: router}, nil
}

func (s *ShoutrrrSink) Name() string { return "shoutrrr" }

// Deliver sends the alert to every configured service
func (s *ShoutrrrSink) Deliver(_ context.Context, alert *models.AbsenceAlert, emp *models.Employee) error {
	params := stypes.Params{}
	params.SetTitle(services.AlertTitle(alert))

	errs := s.sender.Send(plainMessage(alert, emp), &params)
	var failed []error
	for _, e := range errs {
		if e != nil {
			failed = append(failed, e)
		}
	}
	if len(failed) > 0 {
		return errors.New(fmt.Errorf("%d of %d services failed: %w", len(failed), len(s.urls), failed[0])).
			Component("notify").
			Category(errors.CategoryDelivery).
			Context("alert_id", alert.ID).
			Build()
	}
	return nil
}

func plainMessage(alert *models.AbsenceAlert, emp *models.Employee) string {
	name := alert.EmployeeID
	if emp != nil && emp.Name != "" {
		name = fmt.Sprintf("%s (%s)", emp.Name, alert.EmployeeID)
	}
	return fmt.Sprintf("%s: %s, %s", services.AlertTitle(alert), name, alert.ShiftDate)
}
