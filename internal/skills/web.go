package skills

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	userAgent       = "maxai/1.0 (+https://github.com/ent0n29/maxai)"
	maxFetchBytes   = 2 << 20
	defaultResults  = 3
	defaultFetchTTL = 8 * time.Second
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultFetchTTL
	}
	return &http.Client{Timeout: timeout}
}

func fetch(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	return string(body), nil
}

// Search queries an HTML search page (DuckDuckGo's by default) and returns
// the top results.
type Search struct {
	endpoint string
	client   *http.Client
	limit    int
}

func NewSearch(endpoint string, timeout time.Duration) *Search {
	return &Search{
		endpoint: strings.TrimSpace(endpoint),
		client:   newHTTPClient(timeout),
		limit:    defaultResults,
	}
}

func (s *Search) Definition() Definition {
	return Definition{
		Name:        "search",
		Description: "Search the web for information.",
		Parameters:  objectSchema([]string{"query"}, map[string]string{"query": "What to search for."}),
	}
}

type searchHit struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

func (s *Search) Execute(ctx context.Context, params map[string]any) (Result, error) {
	query := stringParam(params, "query")
	if query == "" {
		return Result{}, missing("query")
	}

	u, err := url.Parse(s.endpoint)
	if err != nil {
		return Result{}, fmt.Errorf("search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	page, err := fetch(ctx, s.client, u.String())
	if err != nil {
		return Result{Status: StatusError, Message: "Failed to search: " + err.Error()}, nil
	}
	hits, err := parseSearchResults(page, s.limit)
	if err != nil {
		return Result{}, err
	}
	if len(hits) == 0 {
		return Result{Status: StatusSuccess, Message: fmt.Sprintf("No results found for '%s'.", query)}, nil
	}

	formatted := make([]string, 0, len(hits))
	for _, h := range hits {
		formatted = append(formatted, fmt.Sprintf("Title: %s\nURL: %s\nDescription: %s", h.Title, h.URL, h.Description))
	}
	summary := strings.Join(formatted, "\n\n")
	return Result{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Search Results for '%s':\n\n%s", query, summary),
		Data:    map[string]any{"results": hits, "summary": summary},
	}, nil
}

func parseSearchResults(page string, limit int) ([]searchHit, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var hits []searchHit
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return true
		}
		href, _ := link.Attr("href")
		hits = append(hits, searchHit{
			Title:       title,
			URL:         resolveResultURL(href),
			Description: strings.Join(strings.Fields(sel.Find(".result__snippet").Text()), " "),
		})
		return len(hits) < limit
	})
	return hits, nil
}

// resolveResultURL unwraps DuckDuckGo's "/l/?uddg=<target>" redirect links.
func resolveResultURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

// Weather reads a one-line report from a wttr.in compatible service.
type Weather struct {
	endpoint string
	client   *http.Client
}

func NewWeather(endpoint string, timeout time.Duration) *Weather {
	return &Weather{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		client:   newHTTPClient(timeout),
	}
}

func (w *Weather) Definition() Definition {
	return Definition{
		Name:        "weather",
		Description: "Get current weather information for a location. Use this when the user asks about weather.",
		Parameters:  objectSchema([]string{"location"}, map[string]string{"location": "City name or location, e.g. 'Tokyo'."}),
	}
}

func (w *Weather) Execute(ctx context.Context, params map[string]any) (Result, error) {
	location := stringParam(params, "location")
	if location == "" {
		return Result{}, missing("location")
	}

	target := w.endpoint + "/" + url.PathEscape(location) + "?format=" + url.QueryEscape("%C %t %h %w")
	body, err := fetch(ctx, w.client, target)
	if err != nil {
		return Result{
			Status:  StatusError,
			Message: fmt.Sprintf("Could not fetch weather for %s: %v", location, err),
		}, nil
	}
	report := strings.TrimSpace(body)
	return Result{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Weather in %s: %s", location, report),
		Data:    map[string]any{"location": location, "weather": report},
	}, nil
}
