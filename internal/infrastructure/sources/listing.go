package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ContentCurator/internal/connector"
	"ContentCurator/internal/domain"
	"ContentCurator/internal/retry"
)

const defaultDateLayout = "2006-01-02"

// ListingOptions configure how the scraper walks a listing page.
// Selectors come from per-source YAML options so new sites are config,
// not code.
type ListingOptions struct {
	ItemSelector    string
	TitleSelector   string
	LinkSelector    string
	SummarySelector string
	DateSelector    string
	DateLayout      string
}

// OptionsFromMap reads listing options out of config key/value pairs.
func OptionsFromMap(m map[string]string) ListingOptions {
	opts := ListingOptions{
		ItemSelector:    m["itemSelector"],
		TitleSelector:   m["titleSelector"],
		LinkSelector:    m["linkSelector"],
		SummarySelector: m["summarySelector"],
		DateSelector:    m["dateSelector"],
		DateLayout:      m["dateLayout"],
	}
	if opts.ItemSelector == "" {
		opts.ItemSelector = "article"
	}
	if opts.TitleSelector == "" {
		opts.TitleSelector = "h2"
	}
	if opts.LinkSelector == "" {
		opts.LinkSelector = "a"
	}
	if opts.DateLayout == "" {
		opts.DateLayout = defaultDateLayout
	}
	return opts
}

// ListingConnector scrapes an HTML listing page and extracts candidates
// published within the requested window.
type ListingConnector struct {
	name    string
	pageURL string
	opts    ListingOptions
	client  *http.Client
}

var _ connector.Connector = (*ListingConnector)(nil)

// NewListing wires an HTTP client; nil defaults to a 20s-timeout client.
func NewListing(name, pageURL string, opts ListingOptions, client *http.Client) *ListingConnector {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ListingConnector{
		name:    name,
		pageURL: pageURL,
		opts:    opts,
		client:  client,
	}
}

// Name identifies the configured source.
func (c *ListingConnector) Name() string {
	return c.name
}

// EstimateRequests reports one request per page fetch.
func (c *ListingConnector) EstimateRequests(q connector.Query) int {
	return 1
}

// Search fetches the listing page and extracts matching items in page
// order.
func (c *ListingConnector) Search(ctx context.Context, q connector.Query) ([]domain.Candidate, error) {
	doc, err := c.fetchDocument(ctx)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(c.pageURL)
	if err != nil {
		return nil, retry.Fail(fmt.Errorf("invalid page url %s: %w", c.pageURL, err))
	}

	fetchedAt := time.Now().UTC()
	var candidates []domain.Candidate

	doc.Find(c.opts.ItemSelector).Each(func(i int, item *goquery.Selection) {
		title := strings.TrimSpace(item.Find(c.opts.TitleSelector).First().Text())
		if title == "" {
			return
		}

		href, _ := item.Find(c.opts.LinkSelector).First().Attr("href")
		link := resolveLink(base, href)

		summary := ""
		if c.opts.SummarySelector != "" {
			summary = strings.TrimSpace(item.Find(c.opts.SummarySelector).First().Text())
		}

		publishedAt := time.Time{}
		if c.opts.DateSelector != "" {
			dateText := strings.TrimSpace(item.Find(c.opts.DateSelector).First().Text())
			if parsed, err := time.Parse(c.opts.DateLayout, dateText); err == nil {
				publishedAt = parsed.UTC()
			}
		}

		// An unparseable date is kept; the window filter only applies
		// to items that carry one.
		if !publishedAt.IsZero() {
			if !q.From.IsZero() && publishedAt.Before(q.From) {
				return
			}
			if !q.To.IsZero() && publishedAt.After(q.To) {
				return
			}
		}

		id := link
		if id == "" {
			id = fmt.Sprintf("%s#%d", c.pageURL, i)
		}

		candidates = append(candidates, domain.Candidate{
			ExternalID:  id,
			Title:       title,
			Summary:     summary,
			URL:         link,
			Provider:    c.name,
			PublishedAt: publishedAt,
			FetchedAt:   fetchedAt,
		})
	})

	return candidates, nil
}

func (c *ListingConnector) fetchDocument(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL, nil)
	if err != nil {
		return nil, retry.Fail(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", "ContentCurator/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%s returned %s", c.name, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Fail(err)
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(parsed).String()
}
