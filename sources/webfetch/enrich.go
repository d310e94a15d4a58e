package webfetch

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

var excessiveLinesRe = regexp.MustCompile(`\n{4,}`)

// Article is the readable form of a fetched page.
type Article struct {
	Title    string
	Markdown string
}

// Enricher turns evidence URLs into readable article text: fetch,
// readability extraction, then markdown conversion.
type Enricher struct {
	fetcher   *Fetcher
	converter *md.Converter
}

// NewEnricher creates an enricher around a fetcher.
func NewEnricher(fetcher *Fetcher) *Enricher {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Enricher{fetcher: fetcher, converter: converter}
}

// Enrich fetches the page and reduces it to a titled markdown article.
func (e *Enricher) Enrich(ctx context.Context, pageURL string) (*Article, error) {
	result, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if ct := result.ContentType; ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "xml") {
		return nil, fmt.Errorf("not an HTML page: %s", ct)
	}
	return e.Convert(result.Body, pageURL)
}

// Convert reduces raw HTML to a titled markdown article. Readability
// extraction strips navigation and boilerplate; when it fails the full
// document is converted instead.
func (e *Enricher) Convert(rawHTML []byte, pageURL string) (*Article, error) {
	content := string(rawHTML)
	title := ""

	parsedURL, _ := url.Parse(pageURL)
	if article, err := readability.FromReader(bytes.NewReader(rawHTML), parsedURL); err == nil {
		if article.Content != "" {
			content = article.Content
		}
		title = article.Title
	}

	markdown, err := e.converter.ConvertString(content)
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}
	markdown = excessiveLinesRe.ReplaceAllString(strings.TrimSpace(markdown), "\n\n\n")

	if title == "" {
		title = extractHTMLTitle(rawHTML)
	}

	return &Article{Title: title, Markdown: markdown}, nil
}

// extractHTMLTitle pulls the <title> text out of a document.
func extractHTMLTitle(content []byte) string {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return ""
	}

	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}
