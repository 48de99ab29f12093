package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"resolution-dashboard/models"
)

// APISource reads experiments through the results API.
type APISource struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	batchSize int
	log       zerolog.Logger
}

// NewAPISource creates a results API source. Batch requests are limited to
// batchRate per second.
func NewAPISource(baseURL string, batchSize int, batchRate float64, log zerolog.Logger) *APISource {
	limit := rate.Inf
	if batchRate > 0 {
		limit = rate.Limit(batchRate)
	}
	return &APISource{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 60 * time.Second},
		limiter:   rate.NewLimiter(limit, 1),
		batchSize: batchSize,
		log:       log.With().Str("source", "api").Logger(),
	}
}

func (s *APISource) Name() string { return "api" }

type directoriesEnvelope struct {
	Results     []Experiment `json:"results"`
	MongoStatus string       `json:"mongo_status"`
}

// ListExperiments accepts both the plain list and the enveloped listing. A
// mongo_status of "error" returns the listing together with ErrDegraded.
func (s *APISource) ListExperiments(ctx context.Context) ([]Experiment, error) {
	body, err := s.get(ctx, "/api/results-directories", nil)
	if err != nil {
		return nil, fmt.Errorf("list results directories: %w", err)
	}

	var exps []Experiment
	var status string
	if trimmed := strings.TrimSpace(string(body)); strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, &exps); err != nil {
			return nil, fmt.Errorf("decode results directories: %w", err)
		}
	} else {
		var env directoriesEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("decode results directories: %w", err)
		}
		exps, status = env.Results, env.MongoStatus
	}

	for i := range exps {
		e := &exps[i]
		if e.ID == "" {
			e.ID = e.Directory
		}
		if e.Title == "" {
			e.Title = e.Directory
		}
		if e.Source == "" {
			e.Source = OriginFilesystem
		}
		e.origin = s
	}
	sortExperiments(exps)

	if status == "error" {
		return exps, ErrDegraded
	}
	return exps, nil
}

// LoadRecords loads a stored MongoDB experiment in one request, and a file
// experiment in paced batches.
func (s *APISource) LoadRecords(ctx context.Context, exp Experiment) ([]*models.Record, error) {
	log := s.log.With().Str("experiment", exp.ID).Logger()
	if exp.Source == OriginMongoDB {
		body, err := s.get(ctx, "/api/mongodb/experiment/"+url.PathEscape(exp.ID), nil)
		if err != nil {
			return nil, fmt.Errorf("load experiment %s: %w", exp.ID, err)
		}
		return decodeRecordList(body, log)
	}

	dir := exp.Path
	if dir == "" {
		dir = exp.Directory
	}
	names, err := s.listFiles(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list files of %s: %w", exp.ID, err)
	}

	batch := func(ctx context.Context, chunk []string) (map[string][]byte, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return s.batchFiles(ctx, dir, chunk)
	}
	one := func(ctx context.Context, name string) ([]byte, error) {
		return s.get(ctx, "/"+strings.TrimLeft(path.Join(dir, name), "./"), nil)
	}
	return loadInBatches(ctx, names, s.batchSize, batch, one, log)
}

// AllRecords returns every record stored in MongoDB.
func (s *APISource) AllRecords(ctx context.Context) ([]*models.Record, error) {
	body, err := s.get(ctx, "/api/mongodb/analytics", nil)
	if err != nil {
		return nil, fmt.Errorf("load mongodb analytics: %w", err)
	}
	return decodeRecordList(body, s.log)
}

func (s *APISource) listFiles(ctx context.Context, dir string) ([]string, error) {
	body, err := s.get(ctx, "/api/files", url.Values{"path": {dir}})
	if err != nil {
		return nil, err
	}

	var env struct {
		Files []json.RawMessage `json:"files"`
	}
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("decode file listing: %w", err)
		}
		items = env.Files
	}

	var names []string
	for _, raw := range items {
		name := fileItemName(raw)
		if isResultFile(name) {
			names = append(names, path.Base(name))
		}
	}
	sort.Strings(names)
	return names, nil
}

// fileItemName reads a listing item that is either a name or an object
// with a name field.
func fileItemName(raw json.RawMessage) string {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}
	var obj struct {
		Name     string `json:"name"`
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if obj.Name != "" {
		return obj.Name
	}
	return obj.Filename
}

type batchItem struct {
	Filename string          `json:"filename"`
	Name     string          `json:"name"`
	Content  json.RawMessage `json:"content"`
	Error    string          `json:"error"`
}

// batchFiles fetches several files. The response is a map of file name to
// content, optionally under "files", or a list of {filename, content}.
func (s *APISource) batchFiles(ctx context.Context, dir string, names []string) (map[string][]byte, error) {
	body, err := s.get(ctx, "/api/batch-files", url.Values{
		"dir":   {dir},
		"files": {strings.Join(names, ",")},
	})
	if err != nil {
		return nil, err
	}

	var env struct {
		Files json.RawMessage `json:"files"`
	}
	payload := json.RawMessage(body)
	if err := json.Unmarshal(body, &env); err == nil && len(env.Files) > 0 {
		payload = env.Files
	}

	out := map[string][]byte{}
	var list []batchItem
	if err := json.Unmarshal(payload, &list); err == nil {
		for _, it := range list {
			name := it.Filename
			if name == "" {
				name = it.Name
			}
			if it.Error == "" && len(it.Content) > 0 && string(it.Content) != "null" {
				out[path.Base(name)] = it.Content
			}
		}
		return out, nil
	}

	var byName map[string]json.RawMessage
	if err := json.Unmarshal(payload, &byName); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	for name, content := range byName {
		if len(content) > 0 && string(content) != "null" {
			out[path.Base(name)] = content
		}
	}
	return out, nil
}

func (s *APISource) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	u := s.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, notFound(endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// decodeRecordList decodes a list of records, optionally wrapped in
// {"results": [...]}. Undecodable items are skipped.
func decodeRecordList(body []byte, log zerolog.Logger) ([]*models.Record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		var env struct {
			Results []json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		items = env.Results
	}

	records := make([]*models.Record, 0, len(items))
	for i, raw := range items {
		rec, err := models.DecodeRecord(raw)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("skipping undecodable record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
