// internal/wbclient/client.go
package wbclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/marketdesk/wb-backoffice/internal/config"
	"github.com/marketdesk/wb-backoffice/internal/models"
)

const (
	cardsListPath     = "/content/v2/get/cards/list"
	subjectCharcsPath = "/content/v2/object/charcs/%d"
	pingPath          = "/ping"
	sellerInfoPath    = "/api/v1/seller-info"
)

// Card is one raw product card from the upstream catalog. VendorCode is the
// stable product identifier; the full payload stays opaque in Data.
type Card struct {
	VendorCode string
	Data       models.JSONB
}

// CardsPage is one page of the seller's catalog.
type CardsPage struct {
	Cards []Card
	// Total catalog size advertised by the upstream cursor; 0 when absent.
	Total int
}

// HasMore reports whether the upstream indicated further pages for the
// requested limit.
func (p *CardsPage) HasMore(limit int) bool {
	return len(p.Cards) >= limit
}

type PingResult struct {
	IsValid   bool
	Timestamp string
	Error     string
}

type Seller struct {
	Name      string `json:"name"`
	SID       string `json:"sid"`
	TradeMark string `json:"tradeMark"`
}

// CatalogClient is the capability the sync engine depends on. The offset
// parameter is known to be unreliable upstream: the same first page may come
// back regardless of the requested offset, and callers must defend against it.
type CatalogClient interface {
	FetchPage(ctx context.Context, apiKey string, offset, limit int) (*CardsPage, error)
	SubjectCharcs(ctx context.Context, apiKey string, subjectID int) (models.JSONBList, error)
	Ping(ctx context.Context, apiKey string) (*PingResult, error)
	SellerInfo(ctx context.Context, apiKey string) (*Seller, error)
}

// HTTPClient talks to the Wildberries content and common APIs.
type HTTPClient struct {
	contentBaseURL string
	commonBaseURL  string
	httpClient     *http.Client
	limiter        *rate.Limiter
}

func NewHTTPClient(cfg config.WildberriesConfig) *HTTPClient {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 100
	}
	return &HTTPClient{
		contentBaseURL: cfg.ContentBaseURL,
		commonBaseURL:  cfg.CommonBaseURL,
		httpClient:     &http.Client{Timeout: cfg.RequestTimeout},
		limiter:        rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm/10+1),
	}
}

type cardsListRequest struct {
	Settings struct {
		Cursor struct {
			Limit  int `json:"limit"`
			Offset int `json:"offset,omitempty"`
		} `json:"cursor"`
		Filter struct {
			WithPhoto int `json:"withPhoto"`
		} `json:"filter"`
	} `json:"settings"`
}

type cardsListResponse struct {
	Cards  []map[string]interface{} `json:"cards"`
	Cursor struct {
		Total int `json:"total"`
	} `json:"cursor"`
}

func (c *HTTPClient) FetchPage(ctx context.Context, apiKey string, offset, limit int) (*CardsPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyTransport(err)
	}

	var reqBody cardsListRequest
	reqBody.Settings.Cursor.Limit = limit
	reqBody.Settings.Cursor.Offset = offset
	reqBody.Settings.Filter.WithPhoto = -1

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &APIError{Kind: ErrorKindMalformed, Message: fmt.Sprintf("encoding request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentBaseURL+cardsListPath, bytes.NewReader(payload))
	if err != nil {
		return nil, &APIError{Kind: ErrorKindMalformed, Message: err.Error()}
	}
	req.Header.Set("Authorization", apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp.StatusCode, string(body))
	}

	var decoded cardsListResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &APIError{Kind: ErrorKindMalformed, Message: fmt.Sprintf("decoding cards list: %v", err)}
	}

	page := &CardsPage{
		Cards: make([]Card, 0, len(decoded.Cards)),
		Total: decoded.Cursor.Total,
	}
	for _, raw := range decoded.Cards {
		page.Cards = append(page.Cards, Card{
			VendorCode: extractVendorCode(raw),
			Data:       models.JSONB(raw),
		})
	}

	return page, nil
}

// extractVendorCode pulls the product identifier out of a raw card. Vendor
// codes are strings upstream ("ABC-123"); a numeric value still round-trips
// as its decimal text, never as a truncated integer.
func extractVendorCode(card map[string]interface{}) string {
	switch v := card["vendorCode"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

type subjectCharcsResponse struct {
	Data models.JSONBList `json:"data"`
}

// SubjectCharcs fetches the characteristics schema for a subject (category).
func (c *HTTPClient) SubjectCharcs(ctx context.Context, apiKey string, subjectID int) (models.JSONBList, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyTransport(err)
	}

	url := c.contentBaseURL + fmt.Sprintf(subjectCharcsPath, subjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &APIError{Kind: ErrorKindMalformed, Message: err.Error()}
	}
	req.Header.Set("Authorization", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp.StatusCode, string(body))
	}

	var decoded subjectCharcsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &APIError{Kind: ErrorKindMalformed, Message: fmt.Sprintf("decoding subject characteristics: %v", err)}
	}

	return decoded.Data, nil
}

type pingResponse struct {
	TS     string `json:"TS"`
	Status string `json:"Status"`
}

func (c *HTTPClient) Ping(ctx context.Context, apiKey string) (*PingResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyTransport(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.commonBaseURL+pingPath, nil)
	if err != nil {
		return nil, &APIError{Kind: ErrorKindMalformed, Message: err.Error()}
	}
	req.Header.Set("Authorization", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var decoded pingResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, &APIError{Kind: ErrorKindMalformed, Message: fmt.Sprintf("decoding ping: %v", err)}
		}
		return &PingResult{IsValid: true, Timestamp: decoded.TS}, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return &PingResult{IsValid: false, Error: "invalid token or unauthorized"}, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp.StatusCode, string(body))
	}
}

func (c *HTTPClient) SellerInfo(ctx context.Context, apiKey string) (*Seller, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyTransport(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.commonBaseURL+sellerInfoPath, nil)
	if err != nil {
		return nil, &APIError{Kind: ErrorKindMalformed, Message: err.Error()}
	}
	req.Header.Set("Authorization", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp.StatusCode, string(body))
	}

	var seller Seller
	if err := json.NewDecoder(resp.Body).Decode(&seller); err != nil {
		return nil, &APIError{Kind: ErrorKindMalformed, Message: fmt.Sprintf("decoding seller info: %v", err)}
	}

	return &seller, nil
}

var _ CatalogClient = (*HTTPClient)(nil)
