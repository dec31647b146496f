package teamleader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const DefaultAPIURL = "https://api.focus.teamleader.eu"

// APIError is a non-2xx answer from the Teamleader API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("teamleader API error (status %d): %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(10*time.Second, 30*time.Second)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// NewHTTPClient returns a client with separate connect and read timeouts.
// It is shared by the API client and the OAuth token exchange.
func NewHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &http.Client{
		Timeout: connectTimeout + readTimeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: readTimeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

type Email struct {
	Type  string `json:"type"`
	Email string `json:"email"`
}

type Telephone struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type BusinessType struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Company is a company record as returned by companies.list and companies.info.
type Company struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	VATNumber    *string       `json:"vat_number"`
	Emails       []Email       `json:"emails"`
	Telephones   []Telephone   `json:"telephones"`
	Website      *string       `json:"website"`
	BusinessType *BusinessType `json:"business_type"`
	Status       string        `json:"status"`
}

// PrimaryEmail returns the "primary" email, else the first one.
func (c Company) PrimaryEmail() string {
	for _, e := range c.Emails {
		if e.Type == "primary" {
			return e.Email
		}
	}
	if len(c.Emails) > 0 {
		return c.Emails[0].Email
	}
	return ""
}

// PrimaryPhone returns the first telephone number.
func (c Company) PrimaryPhone() string {
	if len(c.Telephones) > 0 {
		return c.Telephones[0].Number
	}
	return ""
}

// CompanyPage is one page of companies.list.
type CompanyPage struct {
	Companies []Company
	Page      int
	// Matches is the total reported by the API, 0 when not included.
	Matches int
}

type pageRequest struct {
	Size   int `json:"size"`
	Number int `json:"number"`
}

// ListCompanies fetches one page of companies. Page numbers start at 1.
func (c *Client) ListCompanies(ctx context.Context, accessToken string, pageSize, pageNumber int) (*CompanyPage, error) {
	reqBody := map[string]interface{}{
		"page":     pageRequest{Size: pageSize, Number: pageNumber},
		"includes": "pagination",
	}

	var apiResp struct {
		Data []Company `json:"data"`
		Meta struct {
			Page struct {
				Size   int `json:"size"`
				Number int `json:"number"`
			} `json:"page"`
			Matches int `json:"matches"`
		} `json:"meta"`
	}
	if err := c.post(ctx, accessToken, "/companies.list", reqBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to list companies (page %d): %w", pageNumber, err)
	}

	page := apiResp.Meta.Page.Number
	if page == 0 {
		page = pageNumber
	}
	return &CompanyPage{
		Companies: apiResp.Data,
		Page:      page,
		Matches:   apiResp.Meta.Matches,
	}, nil
}

// GetCompany fetches a single company by its Teamleader ID.
func (c *Client) GetCompany(ctx context.Context, accessToken, id string) (*Company, error) {
	var apiResp struct {
		Data Company `json:"data"`
	}
	if err := c.post(ctx, accessToken, "/companies.info", map[string]string{"id": id}, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to get company %s: %w", id, err)
	}
	if apiResp.Data.ID == "" {
		return nil, fmt.Errorf("company %s: empty response", id)
	}
	return &apiResp.Data, nil
}

func (c *Client) post(ctx context.Context, accessToken, path string, payload interface{}, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse API response: %w", err)
	}
	return nil
}
