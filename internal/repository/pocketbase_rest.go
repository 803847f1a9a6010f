// Package repository provides PocketBase REST API and SQLite implementations
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"face-attendance/internal/errors"
	"face-attendance/internal/logger"
	"face-attendance/internal/models"
)

const (
	employeesCollection = "employees"
	schedulesCollection = "shift_schedules"
	listPageSize        = 500
)

// PocketBaseDirectory implements Directory over the PocketBase collections API
type PocketBaseDirectory struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	loc        *time.Location
	log        *logger.Logger
}

// NewPocketBaseDirectory creates the directory client. Requests are bounded by timeout.
func NewPocketBaseDirectory(baseURL, authToken string, timeout time.Duration, loc *time.Location, log *logger.Logger) *PocketBaseDirectory {
	if log == nil {
		log = logger.NewNop()
	}
	return &PocketBaseDirectory{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
		loc:        loc,
		log:        log.Named("directory"),
	}
}

type employeeItem struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TelegramChatID int64  `json:"telegram_chat_id"`
	Status         string `json:"status"`
}

type scheduleItem struct {
	ID        string `json:"id"`
	Employee  string `json:"employee"`
	Weekday   int    `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type listResult[T any] struct {
	Items      []T `json:"items"`
	TotalPages int `json:"totalPages"`
}

func (r *PocketBaseDirectory) addAuthHeader(req *http.Request) {
	if r.authToken != "" {
		req.Header.Set("Authorization", r.authToken)
	}
}

// get performs a GET against path and decodes the JSON body into out.
// Network failures and 5xx answers are transient; 404 maps to ErrNotFound.
func (r *PocketBaseDirectory) get(ctx context.Context, path string, query url.Values, out any) error {
	apiURL := r.baseURL + path
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return errors.New(err).Component("directory").Category(errors.CategoryConfiguration).Build()
	}
	r.addAuthHeader(req)

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return errors.New(fmt.Errorf("directory request failed: %w", err)).
			Component("directory").
			Category(errors.CategoryTransient).
			Timing("GET "+path, time.Since(start)).
			Build()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.TransientError("directory", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return errors.Newf("directory unavailable: %s", resp.Status).
			Component("directory").
			Category(errors.CategoryTransient).
			Context("status", resp.StatusCode).
			Build()
	case resp.StatusCode != http.StatusOK:
		return errors.Newf("directory request failed: %s - %s", resp.Status, string(body)).
			Component("directory").
			Category(errors.CategoryNetwork).
			Context("status", resp.StatusCode).
			Build()
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.New(fmt.Errorf("decode directory response: %w", err)).
			Component("directory").
			Category(errors.CategoryNetwork).
			Build()
	}
	return nil
}

func filterQuery(filter string, page int) url.Values {
	q := url.Values{}
	if filter != "" {
		q.Set("filter", filter)
	}
	q.Set("page", fmt.Sprint(page))
	q.Set("perPage", fmt.Sprint(listPageSize))
	return q
}

// quote escapes a value for a PocketBase filter expression
func quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `\'`) + "'"
}

func listAll[T any](ctx context.Context, r *PocketBaseDirectory, collection, filter string) ([]T, error) {
	var items []T
	for page := 1; ; page++ {
		var result listResult[T]
		path := fmt.Sprintf("/api/collections/%s/records", collection)
		if err := r.get(ctx, path, filterQuery(filter, page), &result); err != nil {
			return nil, err
		}
		items = append(items, result.Items...)
		if page >= result.TotalPages {
			return items, nil
		}
	}
}

func (item employeeItem) toModel() *models.Employee {
	status := models.EnrollmentStatus(item.Status)
	if status == "" {
		status = models.EnrollmentActive
	}
	return &models.Employee{
		ID:             item.ID,
		Name:           item.Name,
		TelegramChatID: item.TelegramChatID,
		Status:         status,
	}
}

func (item scheduleItem) toModel() models.ShiftSchedule {
	return models.ShiftSchedule{
		Weekday: time.Weekday(item.Weekday),
		Start:   item.StartTime,
		End:     item.EndTime,
	}
}

func (r *PocketBaseDirectory) schedulesOf(ctx context.Context, employeeID string) ([]models.ShiftSchedule, error) {
	items, err := listAll[scheduleItem](ctx, r, schedulesCollection, "employee="+quote(employeeID))
	if err != nil {
		return nil, err
	}
	schedule := make([]models.ShiftSchedule, 0, len(items))
	for _, item := range items {
		schedule = append(schedule, item.toModel())
	}
	return schedule, nil
}

func (r *PocketBaseDirectory) Lookup(ctx context.Context, employeeID string) (*models.Employee, error) {
	var item employeeItem
	path := fmt.Sprintf("/api/collections/%s/records/%s", employeesCollection, url.PathEscape(employeeID))
	if err := r.get(ctx, path, nil, &item); err != nil {
		if errors.Is(err, ErrNotFound) {
			r.log.Debug("employee not found", "employee_id", employeeID)
		}
		return nil, err
	}

	emp := item.toModel()
	schedule, err := r.schedulesOf(ctx, emp.ID)
	if err != nil {
		return nil, err
	}
	emp.Schedule = schedule
	return emp, nil
}

func (r *PocketBaseDirectory) ScheduleFor(ctx context.Context, employeeID string, date time.Time) (*models.ShiftWindow, error) {
	emp, err := r.Lookup(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return models.WindowFor(emp, date, r.loc), nil
}

func (r *PocketBaseDirectory) ListActive(ctx context.Context) ([]*models.Employee, error) {
	items, err := listAll[employeeItem](ctx, r, employeesCollection, "status='active'")
	if err != nil {
		return nil, err
	}
	schedules, err := listAll[scheduleItem](ctx, r, schedulesCollection, "")
	if err != nil {
		return nil, err
	}

	byEmployee := make(map[string][]models.ShiftSchedule)
	for _, s := range schedules {
		byEmployee[s.Employee] = append(byEmployee[s.Employee], s.toModel())
	}

	employees := make([]*models.Employee, 0, len(items))
	for _, item := range items {
		emp := item.toModel()
		emp.Schedule = byEmployee[emp.ID]
		employees = append(employees, emp)
	}
	r.log.Debug("listed active employees", "count", len(employees))
	return employees, nil
}

func (r *PocketBaseDirectory) LookupByTelegramChat(ctx context.Context, chatID int64) (*models.Employee, error) {
	var result listResult[employeeItem]
	path := fmt.Sprintf("/api/collections/%s/records", employeesCollection)
	if err := r.get(ctx, path, filterQuery(fmt.Sprintf("telegram_chat_id=%d", chatID), 1), &result); err != nil {
		return nil, err
	}
	if len(result.Items) == 0 {
		return nil, ErrNotFound
	}

	emp := result.Items[0].toModel()
	schedule, err := r.schedulesOf(ctx, emp.ID)
	if err != nil {
		return nil, err
	}
	emp.Schedule = schedule
	return emp, nil
}
