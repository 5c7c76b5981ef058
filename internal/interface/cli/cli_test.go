package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/student-insights/config"
	"github.com/alem-hub/student-insights/internal/application/query"
)

const fixture = `
as_of: 2026-03-31T12:00:00Z
students:
  - student_code: STU001
    full_name: Aigerim Bekova
    email: aigerim@example.com
    is_active: true
    scores:
      - {subject: Math, assessment_type: exam, score: 45, max_score: 100, date: 2026-03-30T09:00:00Z}
      - {subject: Physics, assessment_type: quiz, score: 5, max_score: 10, date: 2026-03-25T09:00:00Z}
    attendance:
      - {class_name: Math, status: present, date: 2026-03-30T08:00:00Z}
      - {class_name: Math, status: absent, date: 2026-03-27T08:00:00Z}
    engagement:
      - {activity_type: login, timestamp: 2026-03-30T07:55:00Z}
  - student_code: STU002
    full_name: Daniyar Sarsen
    email: daniyar@example.com
    is_active: true
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "insights.db"))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_DISABLED", "true")
	t.Setenv("REDIS_PUBLISH_EVENTS", "false")
	t.Setenv("ALERT_DEDUP_POLICY", "always")
	t.Setenv("PIPELINE_STRATEGY", "workflow")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("SCHEDULER_ENABLED", "true")
	t.Setenv("RULES_FILE", "")
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func ingestFixture(t *testing.T, cfg *config.Config) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	var out bytes.Buffer
	require.NoError(t, ingest(context.Background(), cfg, path, ingestOptions{rebase: true}, &out))
	assert.Contains(t, out.String(), "STU001")
	assert.Contains(t, out.String(), "2 scores, 2 attendance marks, 1 engagement events")
}

func TestIngestAnalyzeResolve(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	ingestFixture(t, cfg)

	var out bytes.Buffer
	require.NoError(t, analyze(ctx, cfg, analyzeOptions{studentID: 1, asJSON: true}, &out))

	var res struct {
		StudentID int64 `json:"student_id"`
		Academic  struct {
			Status string `json:"status"`
		} `json:"academic"`
		Analysis struct {
			OverallStatus string `json:"overall_status"`
			Alerts        []struct {
				Type     string `json:"type"`
				Severity string `json:"severity"`
			} `json:"alerts"`
		} `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, int64(1), res.StudentID)
	assert.Equal(t, "success", res.Academic.Status)
	assert.Equal(t, "critical", res.Analysis.OverallStatus)
	require.NotEmpty(t, res.Analysis.Alerts)
	assert.Equal(t, "grade_drop", res.Analysis.Alerts[0].Type)
	assert.Equal(t, "high", res.Analysis.Alerts[0].Severity)

	out.Reset()
	require.NoError(t, listAlerts(ctx, cfg, alertsListOptions{studentID: 1, asJSON: true}, &out))
	var listed query.ListAlertsResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))
	require.Len(t, listed.Alerts, len(res.Analysis.Alerts))
	assert.Equal(t, len(listed.Alerts), listed.Unresolved)

	out.Reset()
	first := listed.Alerts[0].ID
	require.NoError(t, resolveAlert(ctx, cfg, first, &out))
	assert.Contains(t, out.String(), "resolved")

	err := resolveAlert(ctx, cfg, first, &out)
	assert.Error(t, err)

	out.Reset()
	require.NoError(t, listAlerts(ctx, cfg, alertsListOptions{studentID: 1, unresolved: true, asJSON: true}, &out))
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))
	assert.Len(t, listed.Alerts, len(res.Analysis.Alerts)-1)
}

func TestAnalyze_HumanOutput(t *testing.T) {
	cfg := testConfig(t)
	ingestFixture(t, cfg)

	var out bytes.Buffer
	require.NoError(t, analyze(context.Background(), cfg, analyzeOptions{studentID: 1, strategy: "direct"}, &out))
	assert.Contains(t, out.String(), "Student 1:")
	assert.Contains(t, out.String(), "Strategy: direct")
	assert.Contains(t, out.String(), "grade_drop")

	out.Reset()
	require.NoError(t, listAlerts(context.Background(), cfg, alertsListOptions{studentID: 1}, &out))
	assert.Contains(t, out.String(), "grade_drop")
	assert.Contains(t, out.String(), "unresolved")
}

func TestAnalyze_RejectsBadInput(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	assert.Error(t, analyze(context.Background(), cfg, analyzeOptions{}, &out))
	assert.Error(t, analyze(context.Background(), cfg, analyzeOptions{studentID: 1, strategy: "bogus"}, &out))
}

func TestMigrate_SQLite(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	require.NoError(t, migrate(context.Background(), cfg, migrateOptions{}, &out))
	assert.Equal(t, "Schema is up to date.\n", out.String())

	err := migrate(context.Background(), cfg, migrateOptions{status: true}, &out)
	assert.ErrorContains(t, err, "postgres")
}

func TestWorker_BatchAndHealth(t *testing.T) {
	cfg := testConfig(t)
	ingestFixture(t, cfg)
	ctx := context.Background()

	a, err := newApp(ctx, cfg)
	require.NoError(t, err)
	w, err := buildWorker(ctx, a, "test")
	require.NoError(t, err)
	defer func() { _ = a.Close(context.Background()) }()

	rec := httptest.NewRecorder()
	w.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, w.job.Run(ctx))
	stats := w.job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.TotalStudents)
	assert.Equal(t, 2, stats.Completed)
	assert.GreaterOrEqual(t, stats.ByStatus["critical"], 1)

	rec = httptest.NewRecorder()
	w.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_students":2`)
}
