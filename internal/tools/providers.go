package tools

import (
	"net/http"
	"net/url"
	"time"
)

// Tool names, as used in rosters.
const (
	StockQuote           = "StockQuote"
	FinancialNews        = "FinancialNews"
	RecommendationTrends = "RecommendationTrends"
	EarningSurprise      = "EarningSurprise"
	IncomeStatement      = "IncomeStatement"
	FinancialScore       = "FinancialScore"
	StockPriceChange     = "StockPriceChange"
)

// Default provider endpoints.
const (
	DefaultFinnhubURL = "https://finnhub.io/api/v1"
	DefaultFMPURL     = "https://financialmodelingprep.com/api"
)

// newsWindow is how far back company news is requested.
const newsWindow = 7 * 24 * time.Hour

func symbolQuery(_ Provider, symbol string) url.Values {
	return url.Values{"symbol": {symbol}}
}

// Finnhub returns the Finnhub-backed tools: quote, company news,
// recommendation trends and earnings surprises.
func Finnhub(p Provider) []Tool {
	if p.BaseURL == "" {
		p.BaseURL = DefaultFinnhubURL
	}
	if p.KeyParam == "" {
		p.KeyParam = "token"
	}

	return []Tool{
		&httpTool{
			name:        StockQuote,
			description: "Latest price, day high and low, open and previous close for a symbol.",
			provider:    p,
			build: func(p Provider, symbol string) (string, url.Values) {
				return "/quote", symbolQuery(p, symbol)
			},
		},
		&httpTool{
			name:        FinancialNews,
			description: "Company news headlines and summaries from the last seven days.",
			provider:    p,
			build: func(p Provider, symbol string) (string, url.Values) {
				to := p.now()
				from := to.Add(-newsWindow)
				q := symbolQuery(p, symbol)
				q.Set("from", from.Format("2006-01-02"))
				q.Set("to", to.Format("2006-01-02"))
				return "/company-news", q
			},
		},
		&httpTool{
			name:        RecommendationTrends,
			description: "Analyst buy, hold and sell recommendation counts by month.",
			provider:    p,
			build: func(p Provider, symbol string) (string, url.Values) {
				return "/stock/recommendation", symbolQuery(p, symbol)
			},
		},
		&httpTool{
			name:        EarningSurprise,
			description: "Reported versus estimated earnings per share for recent quarters.",
			provider:    p,
			build: func(p Provider, symbol string) (string, url.Values) {
				return "/stock/earnings", symbolQuery(p, symbol)
			},
		},
	}
}

// FMP returns the Financial Modeling Prep tools: income statement,
// financial score and price change.
func FMP(p Provider) []Tool {
	if p.BaseURL == "" {
		p.BaseURL = DefaultFMPURL
	}
	if p.KeyParam == "" {
		p.KeyParam = "apikey"
	}

	return []Tool{
		&httpTool{
			name:        IncomeStatement,
			description: "Annual income statements: revenue, margins, net income and EPS.",
			provider:    p,
			build: func(_ Provider, symbol string) (string, url.Values) {
				return "/v3/income-statement/" + url.PathEscape(symbol), url.Values{"limit": {"2"}}
			},
		},
		&httpTool{
			name:        FinancialScore,
			description: "Altman Z-score and Piotroski score for a company.",
			provider:    p,
			build: func(p Provider, symbol string) (string, url.Values) {
				return "/v4/score", symbolQuery(p, symbol)
			},
		},
		&httpTool{
			name:        StockPriceChange,
			description: "Price change percentages over periods from one day to ten years.",
			provider:    p,
			build: func(_ Provider, symbol string) (string, url.Values) {
				return "/v3/stock-price-change/" + url.PathEscape(symbol), nil
			},
		},
	}
}

// Settings configures the default catalog.
type Settings struct {
	FinnhubKey string
	FinnhubURL string
	FMPKey     string
	FMPURL     string
	Timeout    time.Duration
}

// DefaultCatalog builds a catalog holding every provider tool.
func DefaultCatalog(s Settings) *Catalog {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	c := NewCatalog()
	for _, t := range Finnhub(Provider{BaseURL: s.FinnhubURL, APIKey: s.FinnhubKey, HTTPClient: client}) {
		c.Add(t)
	}
	for _, t := range FMP(Provider{BaseURL: s.FMPURL, APIKey: s.FMPKey, HTTPClient: client}) {
		c.Add(t)
	}
	return c
}
