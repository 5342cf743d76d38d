// Package shopping wraps the shopping-price-search capability service, a
// SerpAPI-compatible index of current marketplace offers.
package shopping

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/antoinelm/listful/internal/provider"
)

type ClientOpts struct {
	BaseURL string
	APIKey  string
	Lang    string // hl param, e.g. "fr"
	Country string // gl param, e.g. "fr"
	Timeout time.Duration
	Retries int
}

// Client searches the shopping index for comparable listings.
type Client struct {
	httpClient *resty.Client
	apiKey     string
	lang       string
	country    string
}

func NewClient(opts ClientOpts) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 12 * time.Second
	}
	retries := opts.Retries
	if retries == 0 {
		retries = 2
	}
	lang := opts.Lang
	if lang == "" {
		lang = "fr"
	}
	country := opts.Country
	if country == "" {
		country = "fr"
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://serpapi.com"
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: httpClient,
		apiKey:     opts.APIKey,
		lang:       lang,
		country:    country,
	}
}

type searchResponse struct {
	ShoppingResults []shoppingResult `json:"shopping_results"`
}

type shoppingResult struct {
	Title          string  `json:"title"`
	Source         string  `json:"source"`
	Price          string  `json:"price"`
	ExtractedPrice float64 `json:"extracted_price"`
	Link           string  `json:"link"`
}

var priceNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// parseNumberFromPrice extracts a numeric amount from a raw price label like
// "1 299,00 €". Comma is treated as the decimal separator.
func parseNumberFromPrice(s string) (float64, bool) {
	clean := strings.NewReplacer(" ", "", " ", "", ",", ".").Replace(s)
	m := priceNumber.FindString(clean)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Search implements provider.ShoppingClient. Items without a parseable price
// are dropped; an empty list is a valid result.
func (c *Client) Search(ctx context.Context, query string) ([]provider.PriceItem, error) {
	result := &searchResponse{}
	res, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"engine":  "google_shopping",
			"q":       query,
			"hl":      c.lang,
			"gl":      c.country,
			"num":     "50",
			"api_key": c.apiKey,
		}).
		SetResult(result).
		Get("/search.json")
	if err != nil {
		return nil, &provider.Error{Provider: "shopping-search", Err: err}
	}
	if res.IsError() {
		return nil, &provider.Error{
			Provider: "shopping-search",
			Status:   res.StatusCode(),
			Err:      fmt.Errorf("request failed: GET %s", res.Request.URL),
		}
	}

	items := make([]provider.PriceItem, 0, len(result.ShoppingResults))
	for _, r := range result.ShoppingResults {
		label := strings.TrimSpace(r.Price)
		amount := r.ExtractedPrice
		if amount == 0 {
			parsed, ok := parseNumberFromPrice(label)
			if !ok {
				continue
			}
			amount = parsed
		}
		if amount <= 0 {
			continue
		}
		if label == "" {
			label = fmt.Sprintf("%g", amount)
		}
		items = append(items, provider.PriceItem{
			Title:     r.Title,
			Source:    r.Source,
			Price:     label,
			Extracted: amount,
			Link:      r.Link,
		})
	}

	return items, nil
}
