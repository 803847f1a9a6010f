package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"face-attendance/internal/models"
	"face-attendance/internal/repository"
	"face-attendance/internal/services"
)

// AnalyticsReader is the read side the reporting endpoints need
type AnalyticsReader interface {
	Window(ctx context.Context, q services.AnalyticsQuery) (*models.AnalyticsWindow, error)
	Trend(ctx context.Context, q services.AnalyticsQuery, bucketDays int) ([]*models.AnalyticsWindow, error)
	DailyRoster(ctx context.Context, date time.Time) (*models.DailyRoster, error)
}

// AttendanceHandler serves the ledger, event log, analytics, alerts and dead letters
type AttendanceHandler struct {
	ledger      repository.Ledger
	events      repository.EventLog
	analytics   AnalyticsReader
	alerts      repository.AlertStore
	deadLetters repository.DeadLetterStore
	loc         *time.Location
	now         func() time.Time
}

func NewAttendanceHandler(
	ledger repository.Ledger,
	events repository.EventLog,
	analytics AnalyticsReader,
	alerts repository.AlertStore,
	deadLetters repository.DeadLetterStore,
	loc *time.Location,
) *AttendanceHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceHandler{
		ledger:      ledger,
		events:      events,
		analytics:   analytics,
		alerts:      alerts,
		deadLetters: deadLetters,
		loc:         loc,
		now:         time.Now,
	}
}

func (h *AttendanceHandler) shiftKey(r *http.Request) (models.ShiftKey, bool) {
	vars := mux.Vars(r)
	if _, err := models.ParseDate(vars["date"], h.loc); err != nil {
		return models.ShiftKey{}, false
	}
	return models.ShiftKey{EmployeeID: vars["employeeID"], ShiftDate: vars["date"]}, true
}

// GetRecord returns the latest revision for an employee and shift date
func (h *AttendanceHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	key, ok := h.shiftKey(r)
	if !ok {
		badRequest(w, "date must be YYYY-MM-DD")
		return
	}
	rec, err := h.ledger.Latest(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetHistory returns every revision for an employee and shift date
func (h *AttendanceHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := h.shiftKey(r)
	if !ok {
		badRequest(w, "date must be YYYY-MM-DD")
		return
	}
	history, err := h.ledger.History(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(history) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no record for " + key.String()})
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// GetEvent returns an accepted match event, for auditing the events a record cites
func (h *AttendanceHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *AttendanceHandler) analyticsQuery(r *http.Request) (services.AnalyticsQuery, error) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"), h.loc)
	if err != nil {
		return services.AnalyticsQuery{}, err
	}
	to, err := parseDate(q.Get("to"), h.loc)
	if err != nil {
		return services.AnalyticsQuery{}, err
	}
	return services.AnalyticsQuery{EmployeeID: q.Get("employee_id"), From: from, To: to}, nil
}

// GetAnalytics returns the aggregate window for ?employee_id=&from=&to=
func (h *AttendanceHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	query, err := h.analyticsQuery(r)
	if err != nil {
		badRequest(w, "from and to must be YYYY-MM-DD")
		return
	}
	window, err := h.analytics.Window(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, window)
}

// GetTrend returns consecutive windows of ?bucket_days= days (default 7)
func (h *AttendanceHandler) GetTrend(w http.ResponseWriter, r *http.Request) {
	query, err := h.analyticsQuery(r)
	if err != nil {
		badRequest(w, "from and to must be YYYY-MM-DD")
		return
	}
	bucket, err := parseInt(r.URL.Query().Get("bucket_days"), 7)
	if err != nil {
		badRequest(w, "bucket_days must be a number")
		return
	}
	windows, err := h.analytics.Trend(r.Context(), query, bucket)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, windows)
}

// GetRoster returns present and absent employees for ?date= (default today)
func (h *AttendanceHandler) GetRoster(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"), h.loc)
	if err != nil {
		badRequest(w, "date must be YYYY-MM-DD")
		return
	}
	if date.IsZero() {
		date = h.now()
	}
	roster, err := h.analytics.DailyRoster(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

// ListAlerts returns alerts filtered by ?employee_id=&from=&to=&unacknowledged=&limit=
func (h *AttendanceHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseInt(q.Get("limit"), 100)
	if err != nil {
		badRequest(w, "limit must be a number")
		return
	}
	unacked, _ := strconv.ParseBool(q.Get("unacknowledged"))

	alerts, err := h.alerts.List(r.Context(), repository.AlertQuery{
		EmployeeID:     q.Get("employee_id"),
		FromDate:       q.Get("from"),
		ToDate:         q.Get("to"),
		Unacknowledged: unacked,
		Limit:          limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// AckAlert acknowledges an alert. Acknowledging twice keeps the first timestamp.
func (h *AttendanceHandler) AckAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		badRequest(w, "invalid alert id")
		return
	}
	alert, err := h.alerts.Acknowledge(r.Context(), uint(id), h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// ListDeadLetters returns the most recent dead letters
func (h *AttendanceHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, err := parseInt(r.URL.Query().Get("limit"), 100)
	if err != nil {
		badRequest(w, "limit must be a number")
		return
	}
	letters, err := h.deadLetters.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, letters)
}
