package handlers

import (
	"bytes"
	"encoding/json"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resolution-dashboard/config"
	"resolution-dashboard/database"
	"resolution-dashboard/dataset"
	"resolution-dashboard/models"
	"resolution-dashboard/runner"
	"resolution-dashboard/sources"
	"resolution-dashboard/web"
)

type testEnv struct {
	router *gin.Engine
	prefs  *database.PreferenceStore
	root   string
}

func writeResult(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newTestEnv(t *testing.T, processAPI string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	exp := filepath.Join(root, "outputs", "exp-1")
	writeResult(t, exp, "metadata.json", `{"title": "Baseline run"}`)
	writeResult(t, exp, "q1.json", `{"query_id": "0xq1", "recommendation": "p2", "resolved_price_outcome": "p2", "timestamp": 1717000000, "tags": ["crypto"], "question": "Will BTC hit 100k?"}`)
	writeResult(t, exp, "q1_run-2.json", `{"query_id": "0xq1", "recommendation": "p1", "resolved_price_outcome": "p2", "timestamp": 1717000500, "tags": ["crypto"], "question": "Will BTC hit 100k?"}`)
	writeResult(t, exp, "q2.json", `{"query_id": "0xq2", "recommendation": "p1", "resolved_price_outcome": "p1", "timestamp": 1716000000, "tags": ["sports"], "question": "Will the Lakers win?"}`)
	writeResult(t, exp, "q3.json", `{"query_id": "0xq3", "recommendation": "p4", "timestamp": 1715000000, "question": "Will it rain <tomorrow>?"}`)

	db, err := database.Open(":memory:")
	require.NoError(t, err)

	cfg := &config.Config{PageSize: 2}
	log := zerolog.Nop()
	files := sources.NewFileSource([]string{filepath.Join(root, "outputs")}, 10, log)
	catalog := sources.NewCatalog(files, nil, sources.CatalogOptions{}, log)
	history := database.NewHistoryStore(db)
	prefs := database.NewPreferenceStore(db)

	deps := Deps{
		Config:   cfg,
		Catalog:  catalog,
		Datasets: dataset.NewStore(catalog, log),
		Prefs:    prefs,
		History:  history,
		Log:      log,
	}
	if processAPI != "" {
		client := runner.NewClient(processAPI, log)
		monitor := runner.NewMonitor(client, history, 10*time.Millisecond, log)
		t.Cleanup(monitor.Close)
		deps.Runner = runner.NewService(client, monitor, history, log)
	}

	tmpl, err := web.Templates()
	require.NoError(t, err)
	return &testEnv{router: NewRouter(New(deps), tmpl), prefs: prefs, root: root}
}

func (e *testEnv) do(method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRootRedirects(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Baseline run")
	assert.Contains(t, w.Body.String(), `href="/experiments/exp-1"`)
}

func TestGetConfig(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var flags map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flags))
	assert.Equal(t, false, flags["mongo_only_results"])
	assert.Equal(t, false, flags["disable_experiment_runner"])
}

func TestExperimentPage(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodGet, "/experiments/exp-1?sort=title&dir=asc", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "Showing 1–2 of 3")
	assert.Contains(t, body, "Will BTC hit 100k?")
	assert.Contains(t, body, "Will it rain &lt;tomorrow&gt;?")
	assert.NotContains(t, body, "Will the Lakers win?", "third title is on page 2")
	assert.Contains(t, body, "/charts/exp-1/recommendations.png")
}

func TestExperimentPage_FiltersAndSavedPage(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodGet, "/experiments/exp-1?tags=sports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Will the Lakers win?")
	assert.NotContains(t, w.Body.String(), "Will BTC hit 100k?")

	w = env.do(http.MethodGet, "/experiments/exp-1?page=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Showing 3–3 of 3")

	// without a page parameter the saved page of this load is used
	w = env.do(http.MethodGet, "/experiments/exp-1", nil)
	assert.Contains(t, w.Body.String(), "Showing 3–3 of 3")
}

var hrefPattern = regexp.MustCompile(`href="([^"]*)">([^<]*)</a>`)

// link returns the target of the first anchor whose text starts with text.
func link(t *testing.T, body, text string) string {
	t.Helper()
	for _, m := range hrefPattern.FindAllStringSubmatch(body, -1) {
		if strings.HasPrefix(strings.TrimSpace(m[2]), text) {
			return html.UnescapeString(m[1])
		}
	}
	t.Fatalf("no link %q in page", text)
	return ""
}

func TestExperimentPage_LinksReturnToFirstPage(t *testing.T) {
	env := newTestEnv(t, "")

	second := env.do(http.MethodGet, "/experiments/exp-1?page=2", nil)
	require.Equal(t, http.StatusOK, second.Code)
	require.Contains(t, second.Body.String(), "Showing 3–3 of 3")

	for _, text := range []string{"‹ Prev", "« First", "Title", "Clear"} {
		t.Run(text, func(t *testing.T) {
			// the saved page is 2 before every link is followed
			env.do(http.MethodGet, "/experiments/exp-1?page=2", nil)

			target := link(t, second.Body.String(), text)
			assert.Contains(t, target, "page=1")
			w := env.do(http.MethodGet, target, nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), "Showing 1–2 of 3")
		})
	}
}

func TestExperimentPage_SelectedTagIgnoresCase(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodGet, "/experiments/exp-1?tags=Sports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<span class="tag active">sports (1)</span>`)
	assert.Contains(t, w.Body.String(), "Will the Lakers win?")
}

func TestExperimentPage_Unknown(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodGet, "/experiments/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to load experiment")
}

func TestGetResults(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodGet, "/api/experiments/exp-1/results?correct=correct", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		LoadID string `json:"load_id"`
		Table  struct {
			Rows []struct {
				ID       string `json:"id"`
				RunCount int    `json:"run_count"`
			} `json:"rows"`
			Pager struct {
				Total int `json:"total"`
			} `json:"pager"`
		} `json:"table"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.LoadID)
	// 0xq1 is incorrect in its latest run
	require.Len(t, resp.Table.Rows, 1)
	assert.Equal(t, "0xq2", resp.Table.Rows[0].ID)
	assert.Equal(t, 1, resp.Table.Pager.Total)
}

func TestGetAnalytics(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodGet, "/api/experiments/exp-1/analytics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var a struct {
		TotalRecords int `json:"total_records"`
		Total        int `json:"total"`
		Correct      int `json:"correct"`
		Unresolved   int `json:"unresolved"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	assert.Equal(t, 3, a.TotalRecords)
	assert.Equal(t, 2, a.Total)
	assert.Equal(t, 1, a.Correct)
	assert.Equal(t, 1, a.Unresolved)
}

func TestRecordPageAndAPI(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodGet, "/experiments/exp-1/records/0xq1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Will BTC hit 100k?")
	assert.Contains(t, w.Body.String(), "q1_run-2.json")

	w = env.do(http.MethodGet, "/api/experiments/exp-1/records/0xq1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Runs []struct {
			Run       int  `json:"run"`
			Canonical bool `json:"canonical"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	require.Len(t, detail.Runs, 2)
	assert.True(t, detail.Runs[1].Canonical)
	assert.Equal(t, 2, detail.Runs[1].Run)

	w = env.do(http.MethodGet, "/experiments/exp-1/records/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(http.MethodGet, "/api/experiments/exp-1/records/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReloadExperiment(t *testing.T) {
	env := newTestEnv(t, "")
	first := env.do(http.MethodGet, "/api/experiments/exp-1/results", nil)
	require.Equal(t, http.StatusOK, first.Code)

	writeResult(t, filepath.Join(env.root, "outputs", "exp-1"), "q4.json", `{"query_id": "0xq4"}`)
	w := env.do(http.MethodPost, "/api/experiments/exp-1/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		LoadID  string `json:"load_id"`
		Records int    `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Records)
	assert.NotContains(t, first.Body.String(), resp.LoadID)
}

func TestSetColumns(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodPut, "/api/preferences/columns", map[string]any{"columns": []string{"title", "bogus", "correct"}})
	require.Equal(t, http.StatusOK, w.Code)

	cols, err := env.prefs.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "correct"}, cols)

	page := env.do(http.MethodGet, "/experiments/exp-1", nil)
	assert.Contains(t, page.Body.String(), "col-title")
	assert.NotContains(t, page.Body.String(), "col-runs")

	w = env.do(http.MethodPut, "/api/preferences/columns", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChart(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodGet, "/charts/exp-1/tags.png?correct=correct", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = env.do(http.MethodGet, "/charts/exp-1/pie.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunnerRoutesDisabled(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(http.MethodPost, "/api/runner/start", map[string]string{"command": "ls"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func fakeProcessAPI(t *testing.T) *httptest.Server {
	t.Helper()
	var polls atomic.Int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/process/start":
			_, _ = w.Write([]byte(`{"process_id": "p-1"}`))
		case r.URL.Path == "/api/processes":
			_, _ = w.Write([]byte(`[{"id": "p-1", "command": "python run.py", "status": "running"}]`))
		case r.URL.Path == "/api/process/p-1":
			status, lines := "running", `[{"message": "Continue? [y/n]"}]`
			if polls.Add(1) > 2 {
				status, lines = "completed", `[{"message": "Continue? [y/n]"}, {"message": "done"}]`
			}
			_, _ = w.Write([]byte(`{"id": "p-1", "command": "python run.py", "status": "` + status + `", "logs": ` + lines + `}`))
		case strings.HasPrefix(r.URL.Path, "/api/process/input/"), strings.HasPrefix(r.URL.Path, "/api/process/stop/"):
			_, _ = w.Write([]byte(`{"success": true}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestRunnerAPI(t *testing.T) {
	api := fakeProcessAPI(t)
	defer api.Close()
	env := newTestEnv(t, api.URL)

	w := env.do(http.MethodPost, "/api/runner/start", map[string]string{"command": "python run.py"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"process_id": "p-1"}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/runner/start", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/runner/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []models.CommandHistory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "python run.py", history[0].Command)

	w = env.do(http.MethodPost, "/api/runner/input/p-1", map[string]string{"input": "y"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodPost, "/api/runner/stop/p-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodGet, "/api/runner/processes/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/runner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "python run.py")
}

func TestStreamProcess(t *testing.T) {
	api := fakeProcessAPI(t)
	defer api.Close()
	env := newTestEnv(t, api.URL)

	server := httptest.NewServer(env.router)
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/ws/runner/p-1"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var updates []runner.Update
	for {
		var upd runner.Update
		if err := conn.ReadJSON(&upd); err != nil {
			break
		}
		updates = append(updates, upd)
		if upd.Final {
			break
		}
	}

	require.NotEmpty(t, updates)
	assert.True(t, updates[0].AwaitingInput)
	last := updates[len(updates)-1]
	assert.True(t, last.Final)
	assert.Equal(t, models.StatusCompleted, last.Process.Status)
	assert.Equal(t, "done", last.Process.LastLine())
}

func TestStreamProcess_AlreadyEnded(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/process/start":
			_, _ = w.Write([]byte(`{"process_id": "p-9"}`))
		case "/api/process/p-9":
			_, _ = w.Write([]byte(`{"id": "p-9", "status": "completed", "logs": [{"message": "all done"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer api.Close()
	env := newTestEnv(t, api.URL)

	w := env.do(http.MethodPost, "/api/runner/start", map[string]string{"command": "python run.py"})
	require.Equal(t, http.StatusOK, w.Code)

	server := httptest.NewServer(env.router)
	defer server.Close()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/ws/runner/p-9"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var first runner.Update
	require.NoError(t, conn.ReadJSON(&first))
	assert.True(t, first.Final)
	assert.Equal(t, "all done", first.Process.LastLine())

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
