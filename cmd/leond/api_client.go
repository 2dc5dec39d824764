package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leon-agent/leon/internal/config"
)

// apiClient is a thin HTTP client the CLI uses to talk to a running leond
// server, grounded on cmd/nexus/api_client.go's getJSON/postJSON/deleteJSON
// idiom (narrowed: no bearer token/API key headers, since §6 names no auth
// scheme for the administrative surface).
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("request %s %s failed: %s (read body: %w)", method, path, resp.Status, readErr)
		}
		if len(respBody) > 0 {
			return fmt.Errorf("request %s %s failed: %s (%s)", method, path, resp.Status, strings.TrimSpace(string(respBody)))
		}
		return fmt.Errorf("request %s %s failed: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *apiClient) postJSON(ctx context.Context, path string, payload, out any) error {
	return c.do(ctx, http.MethodPost, path, payload, out)
}

func (c *apiClient) deleteJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

// resolveHTTPBaseURL picks the CLI's target server address: an explicit
// --server flag, or the http_port a config file would have the server
// listen on.
func resolveHTTPBaseURL(configPath, serverAddr string) (string, error) {
	addr := strings.TrimSpace(serverAddr)
	if addr == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return "", fmt.Errorf("load config: %w", err)
		}
		host := cfg.Server.Host
		if host == "" || host == "0.0.0.0" {
			host = "localhost"
		}
		addr = fmt.Sprintf("%s:%d", host, cfg.Server.HTTPPort)
	}
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/"), nil
	}
	return "http://" + strings.TrimRight(addr, "/"), nil
}
