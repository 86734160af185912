package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ContentCurator/internal/connector"
	"ContentCurator/internal/domain"
	"ContentCurator/internal/retry"
)

// NewsAPIConnector queries a NewsAPI-style REST endpoint for articles
// matching the keyword set within a date window.
type NewsAPIConnector struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
}

var _ connector.Connector = (*NewsAPIConnector)(nil)

// NewNewsAPI wires an HTTP client; nil defaults to a 20s-timeout client.
func NewNewsAPI(name, endpoint, apiKey string, client *http.Client) *NewsAPIConnector {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &NewsAPIConnector{
		name:     name,
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   client,
	}
}

// Name identifies the configured source.
func (c *NewsAPIConnector) Name() string {
	return c.name
}

// EstimateRequests reports one request per search.
func (c *NewsAPIConnector) EstimateRequests(q connector.Query) int {
	return 1
}

// Search runs one everything-style query and maps the response.
func (c *NewsAPIConnector) Search(ctx context.Context, q connector.Query) ([]domain.Candidate, error) {
	reqURL, err := c.buildURL(q)
	if err != nil {
		return nil, retry.Fail(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, retry.Fail(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", "ContentCurator/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s fetch: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%s returned %s", c.name, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Fail(err)
		}
		return nil, err
	}

	var raw newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%s decode: %w", c.name, err)
	}

	fetchedAt := time.Now().UTC()
	candidates := make([]domain.Candidate, 0, len(raw.Articles))
	for _, item := range raw.Articles {
		publishedAt, err := time.Parse(time.RFC3339, item.PublishedAt)
		if err != nil {
			// Malformed or absent timestamps are tolerated.
			publishedAt = time.Time{}
		}

		id := item.URL
		if item.Source.ID != "" {
			id = item.Source.ID + ":" + item.URL
		}

		candidates = append(candidates, domain.Candidate{
			ExternalID:  id,
			Title:       item.Title,
			Summary:     item.Description,
			URL:         item.URL,
			Provider:    c.name,
			PublishedAt: publishedAt,
			FetchedAt:   fetchedAt,
		})
	}

	return candidates, nil
}

func (c *NewsAPIConnector) buildURL(q connector.Query) (string, error) {
	parsed, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %s: %w", c.endpoint, err)
	}

	query := parsed.Query()
	if len(q.Keywords) > 0 {
		query.Set("q", strings.Join(q.Keywords, " OR "))
	}
	if !q.From.IsZero() {
		query.Set("from", q.From.UTC().Format("2006-01-02"))
	}
	if !q.To.IsZero() {
		query.Set("to", q.To.UTC().Format("2006-01-02"))
	}
	if q.Limit > 0 {
		query.Set("pageSize", strconv.Itoa(q.Limit))
	}
	if c.apiKey != "" {
		query.Set("apiKey", c.apiKey)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

type newsAPIResponse struct {
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source      newsAPISource `json:"source"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	URL         string        `json:"url"`
	PublishedAt string        `json:"publishedAt"`
}

type newsAPISource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
