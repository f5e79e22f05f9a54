package sparql

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	// DefaultEndpoint is the conventional location of the triplestore
	// inside a mu.semte.ch stack.
	DefaultEndpoint = "http://database:8890/sparql"

	resultsContentType = "application/sparql-results+json"
)

// Config holds the connection settings for the SPARQL endpoint.
type Config struct {
	Endpoint string
}

// NewConfig reads the endpoint from the MU_SPARQL_ENDPOINT environment
// variable, falling back to the conventional in-stack address.
func NewConfig() *Config {
	endpoint := os.Getenv("MU_SPARQL_ENDPOINT")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	return &Config{Endpoint: endpoint}
}

// Client issues SPARQL 1.1 protocol round trips against a single endpoint.
// Queries and updates are form-POSTed; query results are decoded from
// application/sparql-results+json.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client for the given endpoint URL.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Term is a single RDF term in a result binding.
type Term struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Binding maps selected variable names to terms for one result row.
type Binding map[string]Term

// Value returns the bound value for a variable, or "" when unbound.
func (b Binding) Value(name string) string {
	return b[name].Value
}

// Results is the decoded body of a SELECT query response.
type Results struct {
	Results struct {
		Bindings []Binding `json:"bindings"`
	} `json:"results"`
}

// Query executes a SELECT query and returns its decoded bindings.
func (c *Client) Query(ctx context.Context, query string) (*Results, error) {
	body, err := c.post(ctx, url.Values{"query": {query}})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var results Results
	if err := json.NewDecoder(body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode query results: %w", err)
	}

	return &results, nil
}

// Update executes an update (INSERT/DELETE) request.
func (c *Client) Update(ctx context.Context, update string) error {
	body, err := c.post(ctx, url.Values{"update": {update}})
	if err != nil {
		return err
	}
	defer body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, body)

	return nil
}

func (c *Client) post(ctx context.Context, form url.Values) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build store request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", resultsContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata store unreachable: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("metadata store returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return resp.Body, nil
}
