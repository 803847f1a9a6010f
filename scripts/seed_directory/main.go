// Command seed_directory loads a YAML directory export into PocketBase.
//
//	go run ./scripts/seed_directory directory.yaml
//
// Employees are upserted by id and their shift schedules replaced.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"

	"face-attendance/internal/repository"
)

const defaultPocketBaseURL = "http://192.168.100.100:8090"

type Seeder struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewSeeder() *Seeder {
	if err := godotenv.Load(); err == nil {
		log.Println("📝 Loaded .env file")
	}

	baseURL := os.Getenv("POCKETBASE_URL")
	if baseURL == "" {
		baseURL = defaultPocketBaseURL
	}

	token := os.Getenv("POCKETBASE_TOKEN")
	if token == "" {
		log.Fatal("❌ Error: POCKETBASE_TOKEN not found in environment variables")
	}

	return &Seeder{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Seeder) request(method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

func (s *Seeder) upsertEmployee(e repository.DirectoryEntry) error {
	status := e.Status
	if status == "" {
		status = "active"
	}
	record := map[string]any{
		"name":             e.Name,
		"telegram_chat_id": e.TelegramChatID,
		"status":           status,
	}

	code, body, err := s.request(http.MethodPatch, "/api/collections/employees/records/"+url.PathEscape(e.ID), record)
	if err != nil {
		return err
	}
	if code == http.StatusNotFound {
		record["id"] = e.ID
		code, body, err = s.request(http.MethodPost, "/api/collections/employees/records", record)
		if err != nil {
			return err
		}
	}
	if code != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", code, string(body))
	}
	return nil
}

func (s *Seeder) replaceSchedule(e repository.DirectoryEntry) error {
	query := url.Values{
		"filter":  {fmt.Sprintf("employee='%s'", e.ID)},
		"perPage": {"500"},
	}
	code, body, err := s.request(http.MethodGet, "/api/collections/shift_schedules/records?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("list schedules: HTTP %d: %s", code, string(body))
	}

	var existing struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &existing); err != nil {
		return fmt.Errorf("decode schedules: %w", err)
	}
	for _, item := range existing.Items {
		code, body, err := s.request(http.MethodDelete, "/api/collections/shift_schedules/records/"+item.ID, nil)
		if err != nil {
			return err
		}
		if code != http.StatusNoContent {
			return fmt.Errorf("delete schedule %s: HTTP %d: %s", item.ID, code, string(body))
		}
	}

	for _, shift := range e.Schedule {
		code, body, err := s.request(http.MethodPost, "/api/collections/shift_schedules/records", map[string]any{
			"employee":   e.ID,
			"weekday":    int(shift.Weekday),
			"start_time": shift.Start,
			"end_time":   shift.End,
		})
		if err != nil {
			return err
		}
		if code != http.StatusOK {
			return fmt.Errorf("create %s shift: HTTP %d: %s", shift.Weekday, code, string(body))
		}
	}
	return nil
}

func main() {
	path := "directory.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	file, err := repository.LoadDirectoryFile(path)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Printf("📖 %s: %d employees", path, len(file.Employees))

	s := NewSeeder()

	var failed int
	for _, e := range file.Employees {
		if err := s.upsertEmployee(e); err != nil {
			log.Printf("   ❌ %s: %v", e.ID, err)
			failed++
			continue
		}
		if err := s.replaceSchedule(e); err != nil {
			log.Printf("   ❌ %s schedule: %v", e.ID, err)
			failed++
			continue
		}
		log.Printf("   ✅ %s (%s) with %d shifts", e.ID, e.Name, len(e.Schedule))
	}

	if failed > 0 {
		log.Fatalf("❌ %d employees failed", failed)
	}
	log.Println("🎉 Directory seeded")
}
