package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type runStartBody struct {
	Message string `json:"message"`
}

func runRunStart(cmd *cobra.Command, configPath, server, threadID, message string) error {
	if threadID == "" {
		return usageErrorf("--thread is required")
	}
	if message == "" {
		return usageErrorf("--message is required")
	}
	baseURL, err := resolveHTTPBaseURL(configPath, server)
	if err != nil {
		return err
	}
	client := newAPIClient(baseURL)
	var resp map[string]any
	if err := client.postJSON(cmd.Context(), "/threads/"+threadID+"/runs", runStartBody{Message: message}, &resp); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return printJSON(cmd, resp)
}

func runRunCancel(cmd *cobra.Command, configPath, server, threadID string) error {
	if threadID == "" {
		return usageErrorf("--thread is required")
	}
	baseURL, err := resolveHTTPBaseURL(configPath, server)
	if err != nil {
		return err
	}
	client := newAPIClient(baseURL)
	var resp map[string]any
	if err := client.postJSON(cmd.Context(), "/threads/"+threadID+"/runs/cancel", nil, &resp); err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	return printJSON(cmd, resp)
}
