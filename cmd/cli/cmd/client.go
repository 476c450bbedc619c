package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/viper"

	"github.com/nuulab/dicomflow/internal/httpclient"
)

// APIClient is a thin JSON-over-HTTP wrapper around a dicomflow server's
// REST surface (/api/servers, /api/jobs, /api/listener, /api/dlq). Requests
// ride the resilient httpclient.Client so a server mid-restart or under
// momentary load doesn't fail a CLI invocation outright.
type APIClient struct {
	BaseURL string
	Client  *httpclient.Client
}

func NewAPIClient() *APIClient {
	baseURL := viper.GetString("api.url")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return &APIClient{
		BaseURL: baseURL,
		Client:  httpclient.New(httpclient.DefaultConfig()),
	}
}

func (c *APIClient) Get(path string, target interface{}) error {
	resp, err := c.Client.Get(context.Background(), c.BaseURL+path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// Post sends body (marshaled as JSON, or no body when nil) and decodes the
// response into target when non-nil.
func (c *APIClient) Post(path string, body interface{}, target interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(encoded)
	}

	resp, err := c.Client.Post(context.Background(), c.BaseURL+path, "application/json", bodyReader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func (c *APIClient) Delete(path string) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, c.BaseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.Client.Do(context.Background(), req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("API error: %d", resp.StatusCode)
}
