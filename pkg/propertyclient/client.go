/**
 * @description
 * This package provides a client for communicating with the property-service.
 * The contract-service only flips listing status: inactive when a contract completes,
 * leased once the payment has fully settled.
 */
package propertyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
)

// Client is a client for the property service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new property service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// UpdateProperty patches the listing status. The call is idempotent on the property side.
func (c *Client) UpdateProperty(ctx context.Context, propertyID uuid.UUID, update domain.PropertyUpdate) error {
	if c.baseURL == "" {
		return fmt.Errorf("property service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/properties/%s", c.baseURL, propertyID)
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to property service: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("property service returned error status %d", resp.StatusCode)
	}
	return nil
}
