package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"resolution-dashboard/models"
)

// IndexSource reads experiments from a static file server by scraping its
// HTML directory listings.
type IndexSource struct {
	baseURL   string
	roots     []string
	client    *http.Client
	batchSize int
	log       zerolog.Logger
}

// NewIndexSource creates a source over baseURL/<root>/<experiment>/ listings.
func NewIndexSource(baseURL string, roots []string, batchSize int, log zerolog.Logger) *IndexSource {
	clean := make([]string, 0, len(roots))
	for _, r := range roots {
		// "../outputs" is served as "outputs"
		if r = strings.Trim(path.Clean("/"+r), "/"); r != "" {
			clean = append(clean, r)
		}
	}
	return &IndexSource{
		baseURL:   strings.TrimRight(baseURL, "/"),
		roots:     clean,
		client:    &http.Client{Timeout: 30 * time.Second},
		batchSize: batchSize,
		log:       log.With().Str("source", "index").Logger(),
	}
}

func (s *IndexSource) Name() string { return "index" }

func (s *IndexSource) ListExperiments(ctx context.Context) ([]Experiment, error) {
	var out []Experiment
	for _, root := range s.roots {
		links, err := s.listing(ctx, root+"/")
		if err != nil {
			s.log.Warn().Err(err).Str("root", root).Msg("skipping unreadable index")
			continue
		}
		for _, link := range links {
			if !strings.HasSuffix(link, "/") {
				continue
			}
			name := strings.TrimSuffix(link, "/")
			out = append(out, Experiment{
				ID:        name,
				Directory: name,
				Path:      root + "/" + name,
				Title:     name,
				Source:    OriginFilesystem,
				origin:    s,
			})
		}
	}
	sortExperiments(out)
	return out, nil
}

func (s *IndexSource) LoadRecords(ctx context.Context, exp Experiment) ([]*models.Record, error) {
	links, err := s.listing(ctx, exp.Path+"/")
	if err != nil {
		return nil, fmt.Errorf("list experiment %s: %w", exp.ID, err)
	}
	var names []string
	for _, link := range links {
		if isResultFile(link) {
			names = append(names, link)
		}
	}
	sort.Strings(names)

	one := func(ctx context.Context, name string) ([]byte, error) {
		return s.fetch(ctx, exp.Path+"/"+name)
	}
	return loadInBatches(ctx, names, s.batchSize, nil, one, s.log.With().Str("experiment", exp.ID).Logger())
}

// listing returns the relative links of a directory index page.
func (s *IndexSource) listing(ctx context.Context, dir string) ([]string, error) {
	body, err := s.fetch(ctx, dir)
	if err != nil {
		return nil, err
	}
	return ExtractLinks(bytes.NewReader(body))
}

func (s *IndexSource) fetch(ctx context.Context, rel string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+rel, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, notFound(rel)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", rel, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ExtractLinks returns the unescaped href values of anchors that point to
// entries of the listed directory itself: parent links, absolute URLs,
// queries and fragments are dropped. Duplicates are removed.
func ExtractLinks(r io.Reader) ([]string, error) {
	z := html.NewTokenizer(r)
	seen := map[string]bool{}
	var links []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("parse index: %w", err)
			}
			return links, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					if link, ok := entryLink(string(val)); ok && !seen[link] {
						seen[link] = true
						links = append(links, link)
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

func entryLink(href string) (string, bool) {
	if href == "" || strings.ContainsAny(href, "?#") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil || u.IsAbs() || u.Host != "" || strings.HasPrefix(u.Path, "/") {
		return "", false
	}
	p := u.Path
	trimmed := strings.TrimSuffix(p, "/")
	if trimmed == "" || trimmed == "." || trimmed == ".." || strings.Contains(trimmed, "/") {
		return "", false
	}
	return p, true
}
