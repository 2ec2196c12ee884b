package skills

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPage = `<html><body>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&rut=x">The Go Programming Language</a>
  <a class="result__snippet">Go is an   open source
  programming language.</a>
</div>
<div class="result"><a class="result__a" href="https://pkg.go.dev/">Go Packages</a></div>
<div class="result"><span>ad without link</span></div>
<div class="result"><a class="result__a" href="https://gobyexample.com/">Go by Example</a></div>
<div class="result"><a class="result__a" href="https://example.com/4">Fourth</a></div>
</body></html>`

func TestSearchParsesResults(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(searchPage))
	}))
	defer srv.Close()

	res, err := NewSearch(srv.URL+"/html/", time.Second).Execute(context.Background(), map[string]any{"query": "golang"})
	require.NoError(t, err)
	assert.Equal(t, "golang", gotQuery)
	assert.Equal(t, StatusSuccess, res.Status)

	hits := res.Data["results"].([]searchHit)
	require.Len(t, hits, 3)
	assert.Equal(t, searchHit{
		Title:       "The Go Programming Language",
		URL:         "https://go.dev/",
		Description: "Go is an open source programming language.",
	}, hits[0])
	assert.Equal(t, "Go by Example", hits[2].Title)
	assert.Contains(t, res.Message, "Search Results for 'golang'")
}

func TestSearchFailureBecomesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	res, err := NewSearch(srv.URL, time.Second).Execute(context.Background(), map[string]any{"query": "x"})
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
}

func TestSearchRequiresQuery(t *testing.T) {
	_, err := NewSearch("http://unused", time.Second).Execute(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestWeather(t *testing.T) {
	var gotPath, gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFormat = r.URL.Query().Get("format")
		_, _ = w.Write([]byte("Sunny +21°C 40% ↗10km/h\n"))
	}))
	defer srv.Close()

	res, err := NewWeather(srv.URL+"/", time.Second).Execute(context.Background(), map[string]any{"location": "New York"})
	require.NoError(t, err)
	assert.Equal(t, "/New York", gotPath)
	assert.Equal(t, "%C %t %h %w", gotFormat)
	assert.Equal(t, "Weather in New York: Sunny +21°C 40% ↗10km/h", res.Message)
	assert.Equal(t, "New York", res.Data["location"])
}

func TestWeatherServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res, err := NewWeather(srv.URL, time.Second).Execute(context.Background(), map[string]any{"location": "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "Could not fetch weather for Oslo")
}
