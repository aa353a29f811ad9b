// Package scrape downloads web pages and extracts their readable text.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const userAgent = "Mozilla/5.0 (compatible; AgentStream/1.0)"

// ErrUnsupportedContent is returned for responses that are neither HTML nor text.
var ErrUnsupportedContent = errors.New("unsupported content type")

// Page is the extracted content of one URL.
type Page struct {
	URL   string
	Title string
	Text  string
	// Bytes is the size of the extracted text.
	Bytes int
}

// Fetcher loads pages over HTTP.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher creates a fetcher that reads at most maxBytes of each body.
func NewFetcher(timeout time.Duration, maxBytes int) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: int64(maxBytes),
	}
}

// WithClient replaces the HTTP client.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// Fetch downloads url and extracts its text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return Page{}, fmt.Errorf("failed to read response: %w", err)
	}

	page := Page{URL: url}
	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "text/html"), contentType == "":
		page.Title, page.Text, err = ExtractText(string(body))
		if err != nil {
			return Page{}, err
		}
	case strings.HasPrefix(contentType, "text/"):
		page.Text = strings.TrimSpace(string(body))
	default:
		return Page{}, fmt.Errorf("%w: %s", ErrUnsupportedContent, contentType)
	}

	page.Bytes = len(page.Text)
	return page, nil
}

var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
	"nav":      true,
	"footer":   true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "pre": true, "blockquote": true,
}

// ExtractText returns the title and the visible text of an HTML document,
// one non-empty line per block element.
func ExtractText(htmlContent string) (title, text string, err error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "title" {
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
			if skipElements[n.Data] {
				return
			}
			if blockElements[n.Data] {
				b.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return title, strings.Join(lines, "\n"), nil
}

// Quality scores extracted text between 0 and 1 by its length. Pages with
// about 400 words or more score 1.
func Quality(text string) float64 {
	words := len(strings.Fields(text))
	q := float64(words) / 400
	if q > 1 {
		return 1
	}
	return float64(int(q*100)) / 100
}
