// File: internal/report/report.go
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Run status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// RegistrantSummary is the slice of the test data that is safe to persist.
// Passwords never reach the report.
type RegistrantSummary struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DashboardChecks records the post-registration assertions for one attempt.
type DashboardChecks struct {
	OK                        bool   `json:"ok"`
	ModelSelectDropdownExists bool   `json:"model_select_dropdown_exists"`
	DropdownMenuCount         int    `json:"dropdown_menu_count"`
	DropdownItemCount         int    `json:"dropdown_item_count"`
	GenerateButtonExists      bool   `json:"generate_button_exists"`
	Reason                    string `json:"reason,omitempty"`
}

// Attempt is one registration try. It is immutable once appended to the
// report, except for the decision fields the loop fills in after the fact.
type Attempt struct {
	Number           int               `json:"attempt"`
	Timestamp        time.Time         `json:"timestamp"`
	Registrant       RegistrantSummary `json:"user_data"`
	Success          bool              `json:"success"`
	Reason           string            `json:"reason,omitempty"`
	FinalURL         string            `json:"final_url,omitempty"`
	DashboardChecks  *DashboardChecks  `json:"dashboard_checks,omitempty"`
	Screenshots      []string          `json:"screenshots,omitempty"`
	VideoPath        string            `json:"video_path,omitempty"`
	NextAction       string            `json:"next_action,omitempty"`
	NextActionSource string            `json:"next_action_source,omitempty"`
	FrameworkError   string            `json:"framework_error,omitempty"`
}

// Report aggregates all attempts of a single run.
type Report struct {
	TestID            string    `json:"test_id"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	BaseURL           string    `json:"base_url"`
	RegisterURL       string    `json:"register_url"`
	MaxRetries        int       `json:"max_retries"`
	QwenEnabled       bool      `json:"qwen_enabled"`
	Attempts          []Attempt `json:"attempts"`
	Status            string    `json:"status"`
	SuccessfulAttempt int       `json:"successful_attempt,omitempty"`
}

// New creates a report shell for a run that is about to start.
func New(testID, baseURL, registerURL string, maxRetries int, qwenEnabled bool) *Report {
	return &Report{
		TestID:      testID,
		StartTime:   time.Now(),
		BaseURL:     baseURL,
		RegisterURL: registerURL,
		MaxRetries:  maxRetries,
		QwenEnabled: qwenEnabled,
		Attempts:    []Attempt{},
		Status:      StatusFailed,
	}
}

// NewTestID builds a run identifier from the wall clock.
func NewTestID(now time.Time) string {
	return "registration_test_" + now.Format("20060102_150405")
}

// Append records a finished attempt.
func (r *Report) Append(a Attempt) {
	r.Attempts = append(r.Attempts, a)
}

// Last returns a pointer to the most recent attempt, or nil before the first
// one. The loop uses it to attach the decision taken after a failure.
func (r *Report) Last() *Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

// MarkSuccess flips the run status and pins the winning attempt number.
func (r *Report) MarkSuccess(attempt int) {
	r.Status = StatusSuccess
	r.SuccessfulAttempt = attempt
}

// Finalize stamps the end time.
func (r *Report) Finalize() {
	r.EndTime = time.Now()
}

// Encode renders the report as indented JSON.
func (r *Report) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return data, nil
}

// WriteFile writes the report once into dir and returns the path.
func (r *Report) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}

	data, err := r.Encode()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, r.TestID+"_report.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return path, nil
}
