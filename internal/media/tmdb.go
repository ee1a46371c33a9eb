// Package media recommends movies and TV shows via the TMDB catalogue,
// scoped to Dutch streaming availability.
package media

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"companion-agent/internal/common/errors"
	"companion-agent/internal/common/httpx"
	"companion-agent/internal/common/logger"
)

const serviceName = "tmdb"

// Recommendation is a single formatted catalogue hit.
type Recommendation struct {
	Title       string
	Year        string
	Kind        string // "Film" or "Serie"
	Rating      string
	Description string
	Streaming   []string
}

// Client calls the TMDB v3 API.
type Client struct {
	baseURL    string
	apiKey     string
	region     string
	language   string
	maxResults int
	httpClient *http.Client
	log        logger.Logger
}

// NewClient builds a TMDB client. Region defaults to NL, language to
// nl-NL, and result cap to 5.
func NewClient(baseURL, apiKey, region, language string, maxResults int, log logger.Logger) *Client {
	if region == "" {
		region = "NL"
	}
	if language == "" {
		language = "nl-NL"
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		region:     region,
		language:   language,
		maxResults: maxResults,
		httpClient: httpx.NewClient(10 * time.Second),
		log:        log,
	}
}

// Configured reports whether an API key is present. Without one the tool
// layer goes straight to the web-search fallback.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type searchItem struct {
	ID           int     `json:"id"`
	MediaType    string  `json:"media_type"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	VoteAverage  float64 `json:"vote_average"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
}

type providerEntry struct {
	ProviderName string `json:"provider_name"`
}

type providersResponse struct {
	Results map[string]struct {
		Flatrate []providerEntry `json:"flatrate"`
		Free     []providerEntry `json:"free"`
	} `json:"results"`
}

// Recommend searches the catalogue and resolves streaming providers for
// each hit in parallel. mediaType is "movie", "tv", or "both".
func (c *Client) Recommend(ctx context.Context, query, mediaType string) ([]Recommendation, error) {
	searchType := mediaType
	if mediaType == "both" || mediaType == "" {
		searchType = "multi"
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("query", query)
	params.Set("language", c.language)
	params.Set("region", c.region)
	params.Set("include_adult", "false")

	var searchResp struct {
		Results []searchItem `json:"results"`
	}
	err := httpx.DoJSON(ctx, c.httpClient, httpx.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/search/%s?%s", c.baseURL, searchType, params.Encode()),
		Service: serviceName,
	}, &searchResp)
	if err != nil {
		return nil, errors.NewMediaLookupFailedError(err)
	}

	items := searchResp.Results
	if len(items) > c.maxResults {
		items = items[:c.maxResults]
	}

	recs := make([]*Recommendation, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		itemType := item.MediaType
		if itemType == "" {
			if mediaType == "both" || mediaType == "" {
				itemType = "movie"
			} else {
				itemType = mediaType
			}
		}
		if itemType != "movie" && itemType != "tv" {
			continue
		}

		wg.Add(1)
		go func(i int, item searchItem, itemType string) {
			defer wg.Done()
			recs[i] = c.buildRecommendation(ctx, item, itemType)
		}(i, item, itemType)
	}
	wg.Wait()

	var out []Recommendation
	for _, r := range recs {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (c *Client) buildRecommendation(ctx context.Context, item searchItem, itemType string) *Recommendation {
	title := item.Title
	if title == "" {
		title = item.Name
	}
	if title == "" {
		title = "Unknown"
	}

	// Dutch overviews carry multi-byte runes; cut on a rune boundary so
	// the tail never ends in a mangled character.
	overview := item.Overview
	if runes := []rune(overview); len(runes) > 200 {
		overview = string(runes[:200])
	}

	year := item.ReleaseDate
	if year == "" {
		year = item.FirstAirDate
	}
	if len(year) > 4 {
		year = year[:4]
	}

	rating := "Geen score"
	if item.VoteAverage > 0 {
		rating = fmt.Sprintf("%.1f/10", item.VoteAverage)
	}

	kind := "Serie"
	if itemType == "movie" {
		kind = "Film"
	}

	rec := &Recommendation{
		Title:       title,
		Year:        year,
		Kind:        kind,
		Rating:      rating,
		Description: overview,
		Streaming:   c.streamingProviders(ctx, itemType, item.ID),
	}
	if len(rec.Streaming) == 0 {
		rec.Streaming = []string{"Niet gevonden op streaming"}
	}
	return rec
}

// streamingProviders looks up flatrate and free providers for the region.
// Free providers are marked "(gratis)". Lookup failures degrade to none.
func (c *Client) streamingProviders(ctx context.Context, itemType string, id int) []string {
	var resp providersResponse
	err := httpx.DoJSON(ctx, c.httpClient, httpx.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/%s/%d/watch/providers?api_key=%s", c.baseURL, itemType, id, url.QueryEscape(c.apiKey)),
		Service: serviceName,
	}, &resp)
	if err != nil {
		c.log.WithError(err).Debug("Watch-provider lookup failed", map[string]interface{}{
			"id":   id,
			"type": itemType,
		})
		return nil
	}

	regionData, ok := resp.Results[c.region]
	if !ok {
		return nil
	}

	var providers []string
	for _, p := range regionData.Flatrate {
		providers = append(providers, p.ProviderName)
	}
	for _, p := range regionData.Free {
		providers = append(providers, p.ProviderName+" (gratis)")
	}
	return providers
}

// FormatRecommendations renders the Dutch recommendation block read to
// the user.
func FormatRecommendations(query string, recs []Recommendation) string {
	if len(recs) == 0 {
		return fmt.Sprintf("No results found for '%s'. Try a different search term.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Entertainment recommendations for '%s' (Netherlands):\n\n", query)
	for i, r := range recs {
		fmt.Fprintf(&b, "%d. %s (%s) - %s\n", i+1, r.Title, r.Year, r.Kind)
		fmt.Fprintf(&b, "   Score: %s\n", r.Rating)
		fmt.Fprintf(&b, "   Beschikbaar op: %s\n", strings.Join(r.Streaming, ", "))
		if r.Description != "" {
			fmt.Fprintf(&b, "   %s\n", r.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FallbackQuery builds the web-search query used when the catalogue is
// unavailable.
func FallbackQuery(query, genre string) string {
	year := time.Now().Year()
	return fmt.Sprintf("beste %s films series op Netflix Amazon Prime NPO Nederland %d: %s", genre, year, query)
}
