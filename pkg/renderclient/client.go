/**
 * @description
 * This package provides a client for the document render service, which turns the
 * rendered contract HTML plus both signature images into the final PDF.
 */
package renderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxPDFBytes = 25 << 20

// Client is a client for the render service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new render service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// RenderContractRequest defines the request payload for rendering a signed contract.
type RenderContractRequest struct {
	HTML               string `json:"html"`
	TenantSignatureURL string `json:"tenantSignatureUrl"`
	ListerSignatureURL string `json:"listerSignatureUrl"`
}

// RenderContractPDF asks the render service for the signed PDF bytes.
func (c *Client) RenderContractPDF(ctx context.Context, html, tenantSignatureURL, listerSignatureURL string) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("render service base url is empty")
	}

	body, err := json.Marshal(RenderContractRequest{
		HTML:               html,
		TenantSignatureURL: tenantSignatureURL,
		ListerSignatureURL: listerSignatureURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render/contract", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to render service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("render service returned error status %d", resp.StatusCode)
	}

	pdf, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read render response: %w", err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("render service returned an empty document")
	}
	return pdf, nil
}
