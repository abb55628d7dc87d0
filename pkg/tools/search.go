package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// ErrSearchNotConfigured is returned when no search credentials were
// supplied.
var ErrSearchNotConfigured = errors.New("tools: web search not configured")

// SearchResult is one hit.
type SearchResult struct {
	Title   string
	URL     string
	Content string
}

type searcher struct {
	cfg    Config
	logger *slog.Logger
}

func (s *searcher) handle(ctx context.Context, args map[string]any) (string, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return "I need a search query to look up.", nil
	}

	answer, results, err := s.search(ctx, query)
	if errors.Is(err, ErrSearchNotConfigured) {
		return "Web search is not available: no search API key was provided.", nil
	}
	if err != nil {
		return "", err
	}
	return formatResults(query, answer, results), nil
}

// search tries Tavily first and Programmable Search second.
func (s *searcher) search(ctx context.Context, query string) (string, []SearchResult, error) {
	var tavilyErr error
	if s.cfg.TavilyKey != "" {
		answer, results, err := s.tavily(ctx, query)
		if err == nil {
			s.logger.Info("web search", "provider", "tavily", "query", query, "results", len(results))
			return answer, results, nil
		}
		tavilyErr = err
		s.logger.Warn("tavily search failed", "error", err)
	}

	if s.cfg.GoogleSearchKey != "" && s.cfg.GoogleCX != "" {
		results, err := s.google(ctx, query)
		if err != nil {
			return "", nil, errors.Join(tavilyErr, err)
		}
		s.logger.Info("web search", "provider", "google", "query", query, "results", len(results))
		return "", results, nil
	}

	if tavilyErr != nil {
		return "", nil, tavilyErr
	}
	return "", nil, ErrSearchNotConfigured
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
	SearchDepth   string `json:"search_depth"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (s *searcher) tavily(ctx context.Context, query string) (string, []SearchResult, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:        s.cfg.TavilyKey,
		Query:         query,
		MaxResults:    s.cfg.MaxResults,
		IncludeAnswer: true,
		SearchDepth:   "basic",
	})
	if err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TavilyURL, bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := send(s.cfg.HTTPClient, req)
	if err != nil {
		return "", nil, fmt.Errorf("tools: tavily: %w", err)
	}

	var tr tavilyResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return "", nil, fmt.Errorf("tools: tavily: decode: %w", err)
	}
	results := make([]SearchResult, 0, len(tr.Results))
	for _, r := range tr.Results {
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Content: r.Content})
	}
	return tr.Answer, results, nil
}

func (s *searcher) google(ctx context.Context, query string) ([]SearchResult, error) {
	opts := []option.ClientOption{option.WithAPIKey(s.cfg.GoogleSearchKey)}
	if s.cfg.SearchEndpoint != "" {
		opts = append(opts, option.WithEndpoint(s.cfg.SearchEndpoint))
	}

	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tools: custom search: %w", err)
	}
	res, err := svc.Cse.List().Cx(s.cfg.GoogleCX).Q(query).Num(int64(s.cfg.MaxResults)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("tools: custom search: %w", err)
	}

	results := make([]SearchResult, 0, len(res.Items))
	for _, item := range res.Items {
		results = append(results, SearchResult{Title: item.Title, URL: item.Link, Content: item.Snippet})
	}
	return results, nil
}

func formatResults(query, answer string, results []SearchResult) string {
	if answer == "" && len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n", query)
	if answer != "" {
		fmt.Fprintf(&b, "Summary: %s\n", answer)
	}
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   Source: %s\n", i+1, r.Title, r.Content, r.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}
