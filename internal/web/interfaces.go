package web

import "context"

// PageFetcher retrieves the readable form of a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Searcher runs a web search and returns ranked results.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}
