package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type threadCreateBody struct {
	Sandbox string `json:"sandbox"`
	Cwd     string `json:"cwd,omitempty"`
	Agent   string `json:"agent,omitempty"`
}

func runThreadCreate(cmd *cobra.Command, configPath, server, sandbox, cwd, agent string) error {
	if sandbox == "" {
		return usageErrorf("--sandbox is required")
	}
	baseURL, err := resolveHTTPBaseURL(configPath, server)
	if err != nil {
		return err
	}
	client := newAPIClient(baseURL)

	var resp map[string]any
	if err := client.postJSON(cmd.Context(), "/threads", threadCreateBody{Sandbox: sandbox, Cwd: cwd, Agent: agent}, &resp); err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	return printJSON(cmd, resp)
}

func runThreadDelete(cmd *cobra.Command, configPath, server, threadID string) error {
	baseURL, err := resolveHTTPBaseURL(configPath, server)
	if err != nil {
		return err
	}
	client := newAPIClient(baseURL)
	var resp map[string]any
	if err := client.deleteJSON(cmd.Context(), "/threads/"+threadID, &resp); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return printJSON(cmd, resp)
}

func runThreadShow(cmd *cobra.Command, configPath, server, threadID string) error {
	baseURL, err := resolveHTTPBaseURL(configPath, server)
	if err != nil {
		return err
	}
	client := newAPIClient(baseURL)
	var resp map[string]any
	if err := client.getJSON(cmd.Context(), "/threads/"+threadID, &resp); err != nil {
		return fmt.Errorf("show thread: %w", err)
	}
	return printJSON(cmd, resp)
}

func printJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
