// Command setup_collections creates the directory collections on an external PocketBase
// server. It mirrors the embedded migrations for servers that are not run from this module.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	pocketbaseURL = "http://192.168.100.100:8090"
	clockPattern  = `^([01][0-9]|2[0-3]):[0-5][0-9]$`
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

type field = map[string]any

func main() {
	fmt.Println("🚀 PocketBase Directory Setup")
	fmt.Println("=============================")

	// Load .env file if exists
	_ = godotenv.Load()

	url := getEnv("POCKETBASE_URL", pocketbaseURL)
	token := getEnv("POCKETBASE_TOKEN", "")

	fmt.Printf("Connecting to: %s\n", url)

	if err := checkHealth(url); err != nil {
		fmt.Printf("❌ Cannot connect to PocketBase: %v\n", err)
		fmt.Printf("Check with: curl %s/api/health\n", url)
		os.Exit(1)
	}

	if token == "" {
		fmt.Println("❌ POCKETBASE_TOKEN not set")
		fmt.Println("\nTo get a superuser token:")
		fmt.Printf("  curl -X POST %s/api/collections/_superusers/auth-with-password \\\n", url)
		fmt.Println("    -H \"Content-Type: application/json\" \\")
		fmt.Println("    -d '{\"identity\":\"admin@example.com\",\"password\":\"password123\"}'")
		os.Exit(1)
	}

	if err := testAuth(url, token); err != nil {
		fmt.Printf("❌ Auth test failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n📦 Collection: employees")
	employeesID, err := ensureCollection(url, token, "employees", employeeFields(), nil)
	if err != nil {
		fmt.Printf("   ❌ %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n📦 Collection: shift_schedules")
	indexes := []string{"CREATE UNIQUE INDEX `idx_shift_schedules_employee_weekday` ON `shift_schedules` (`employee`, `weekday`)"}
	if _, err := ensureCollection(url, token, "shift_schedules", scheduleFields(employeesID), indexes); err != nil {
		fmt.Printf("   ❌ %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n🎉 Setup complete!")
	fmt.Printf("\nAccess Admin UI: %s/_/\n", url)
}

func employeeFields() []field {
	return []field{
		{
			"name":                "id",
			"type":                "text",
			"primaryKey":          true,
			"system":              true,
			"required":            true,
			"min":                 1,
			"max":                 64,
			"pattern":             `^[A-Za-z0-9_-]+$`,
			"autogeneratePattern": "[a-z0-9]{15}",
		},
		textField("name", true, ""),
		numberField("telegram_chat_id", nil, nil),
		{
			"name":      "status",
			"type":      "select",
			"maxSelect": 1,
			"values":    []string{"active", "suspended"},
		},
	}
}

func scheduleFields(employeesID string) []field {
	zero, six := 0.0, 6.0
	return []field{
		{
			"name":          "employee",
			"type":          "relation",
			"required":      true,
			"collectionId":  employeesID,
			"maxSelect":     1,
			"cascadeDelete": true,
		},
		numberField("weekday", &zero, &six),
		textField("start_time", true, clockPattern),
		textField("end_time", true, clockPattern),
	}
}

func textField(name string, required bool, pattern string) field {
	return field{
		"name":     name,
		"type":     "text",
		"required": required,
		"pattern":  pattern,
	}
}

func numberField(name string, lo, hi *float64) field {
	return field{
		"name":    name,
		"type":    "number",
		"onlyInt": true,
		"min":     lo,
		"max":     hi,
	}
}

func do(method, url, token string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

func testAuth(baseURL, token string) error {
	status, body, err := do(http.MethodGet, baseURL+"/api/collections", token, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", status, string(body))
	}
	fmt.Println("✅ Authentication successful")
	return nil
}

type collection struct {
	ID      string   `json:"id"`
	Fields  []field  `json:"fields"`
	Indexes []string `json:"indexes"`
}

// ensureCollection creates the collection or adds the fields it is missing, returning its id
func ensureCollection(baseURL, token, name string, fields []field, indexes []string) (string, error) {
	status, body, err := do(http.MethodGet, baseURL+"/api/collections/"+name, token, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get collection: %w", err)
	}

	if status == http.StatusNotFound {
		status, body, err = do(http.MethodPost, baseURL+"/api/collections", token, map[string]any{
			"name":    name,
			"type":    "base",
			"fields":  fields,
			"indexes": indexes,
		})
		if err != nil {
			return "", err
		}
		if status != http.StatusOK && status != http.StatusCreated {
			return "", fmt.Errorf("create failed: HTTP %d - %s", status, string(body))
		}
		var created collection
		if err := json.Unmarshal(body, &created); err != nil {
			return "", fmt.Errorf("failed to parse collection: %w", err)
		}
		fmt.Printf("   ✅ Created with %d fields\n", len(fields))
		return created.ID, nil
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("get failed: HTTP %d - %s", status, string(body))
	}

	var existing collection
	if err := json.Unmarshal(body, &existing); err != nil {
		return "", fmt.Errorf("failed to parse collection: %w", err)
	}

	known := make(map[string]bool, len(existing.Fields))
	for _, f := range existing.Fields {
		if n, ok := f["name"].(string); ok {
			known[n] = true
		}
	}
	var missing []field
	for _, f := range fields {
		if !known[f["name"].(string)] {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		fmt.Println("   All fields already exist")
		return existing.ID, nil
	}

	status, body, err = do(http.MethodPatch, baseURL+"/api/collections/"+existing.ID, token, map[string]any{
		"fields": append(existing.Fields, missing...),
	})
	if err != nil {
		return "", fmt.Errorf("failed to update: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("update failed: HTTP %d - %s", status, string(body))
	}
	fmt.Printf("   ✅ Added %d new fields\n", len(missing))
	return existing.ID, nil
}

func checkHealth(baseURL string) error {
	resp, err := httpClient.Get(baseURL + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %s", resp.Status)
	}
	fmt.Println("✅ PocketBase is running")
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
