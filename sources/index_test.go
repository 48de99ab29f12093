package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const outputsIndex = `<html><body><h1>Directory listing for /outputs/</h1><ul>
<li><a href="../">../</a></li>
<li><a href="exp-1/">exp-1/</a></li>
<li><a href="exp-2/">exp-2/</a></li>
<li><a href="exp-2/">exp-2/</a></li>
<li><a href="/elsewhere/">elsewhere</a></li>
<li><a href="http://example.com/x.json">remote</a></li>
<li><a href="?C=M;O=A">sort</a></li>
</ul></body></html>`

func TestExtractLinks(t *testing.T) {
	links, err := ExtractLinks(strings.NewReader(outputsIndex))
	require.NoError(t, err)
	assert.Equal(t, []string{"exp-1/", "exp-2/"}, links)

	links, err = ExtractLinks(strings.NewReader(`<a href="q%201.json">q 1</a><a href="metadata.json"/>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"q 1.json", "metadata.json"}, links)
}

func TestIndexSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/outputs/":
			_, _ = w.Write([]byte(outputsIndex))
		case "/outputs/exp-1/":
			_, _ = w.Write([]byte(`<a href="b.json">b</a><a href="a.json">a</a><a href="metadata.json">m</a><a href="log.txt">l</a>`))
		case "/outputs/exp-1/a.json":
			_, _ = w.Write([]byte(`{"query_id": "qa"}`))
		case "/outputs/exp-1/b.json":
			_, _ = w.Write([]byte(`{"query_id": "qb"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	src := NewIndexSource(server.URL, []string{"../outputs", "../reruns"}, 10, zerolog.Nop())
	exps, err := src.ListExperiments(context.Background())
	require.NoError(t, err)
	require.Len(t, exps, 2)
	assert.Equal(t, "outputs/exp-1", exps[0].Path)

	records, err := src.LoadRecords(context.Background(), exps[0])
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "qa", records[0].LogicalID())
	assert.Equal(t, "b.json", records[1].SourceFile)
}
