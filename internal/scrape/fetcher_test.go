package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html>
<html>
<head><title> Go Generics </title><style>body{color:red}</style></head>
<body>
<nav>Home | Docs</nav>
<h1>Type parameters</h1>
<p>Go 1.18 added   generics.</p>
<script>alert("x")</script>
<ul><li>constraints</li><li>inference</li></ul>
<footer>copyright</footer>
</body>
</html>`

func TestExtractText(t *testing.T) {
	title, text, err := ExtractText(samplePage)
	require.NoError(t, err)

	assert.Equal(t, "Go Generics", title)
	assert.Equal(t, "Type parameters\nGo 1.18 added generics.\nconstraints\ninference", text)
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "copyright")
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(samplePage))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("  just text  "))
		case "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 1<<20)
	ctx := context.Background()

	page, err := f.Fetch(ctx, srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "Go Generics", page.Title)
	assert.Equal(t, len(page.Text), page.Bytes)

	page, err = f.Fetch(ctx, srv.URL+"/plain")
	require.NoError(t, err)
	assert.Equal(t, "just text", page.Text)

	_, err = f.Fetch(ctx, srv.URL+"/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedContent)

	_, err = f.Fetch(ctx, srv.URL+"/missing")
	assert.Error(t, err)
}

func TestFetchTruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", 1000)))
	}))
	defer srv.Close()

	page, err := NewFetcher(time.Second, 100).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 100, page.Bytes)
}

func TestQuality(t *testing.T) {
	assert.Equal(t, 0.0, Quality(""))
	assert.Equal(t, 0.5, Quality(strings.Repeat("word ", 200)))
	assert.Equal(t, 1.0, Quality(strings.Repeat("word ", 1000)))
}
