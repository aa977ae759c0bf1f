package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func postJSON(out io.Writer, url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()
	return printResponse(out, resp)
}

func getJSON(out io.Writer, url string) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()
	return printResponse(out, resp)
}

func printResponse(out io.Writer, resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Fprintln(out, pretty.String())
	} else {
		fmt.Fprintln(out, string(raw))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s", resp.Status)
	}
	return nil
}

func newAttachCommand(baseURL *string) *cobra.Command {
	var (
		agentID string
		query   string
		limit   int
		keep    []string
	)
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach tools to an agent by natural-language query",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON(cmd.OutOrStdout(), *baseURL+"/api/v1/tools/attach", map[string]any{
				"agent_id":   agentID,
				"query":      query,
				"limit":      limit,
				"keep_tools": keep,
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent-id", "", "agent id (required)")
	cmd.Flags().StringVar(&query, "query", "", "natural-language query")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum candidates to resolve")
	cmd.Flags().StringSliceVar(&keep, "keep-tools", nil, "tool ids to always keep attached")
	cmd.MarkFlagRequired("agent-id")
	return cmd
}

func newPruneCommand(baseURL *string) *cobra.Command {
	var (
		agentID  string
		prompt   string
		dropRate float64
		keep     []string
		matched  []string
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Prune an agent's attached MCP tools under a drop rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON(cmd.OutOrStdout(), *baseURL+"/api/v1/tools/prune", map[string]any{
				"agent_id":               agentID,
				"user_prompt":            prompt,
				"drop_rate":              dropRate,
				"keep_tool_ids":          keep,
				"newly_matched_tool_ids": matched,
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent-id", "", "agent id (required)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "user prompt driving the relevance ranking")
	cmd.Flags().Float64Var(&dropRate, "drop-rate", 0.1, "fraction of MCP tools to drop, in [0,1]")
	cmd.Flags().StringSliceVar(&keep, "keep-tool-ids", nil, "tool ids to always keep attached")
	cmd.Flags().StringSliceVar(&matched, "newly-matched-tool-ids", nil, "tool ids from a just-completed attach")
	cmd.MarkFlagRequired("agent-id")
	return cmd
}

func newSyncCommand(baseURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Trigger an immediate reconciliation cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON(cmd.OutOrStdout(), *baseURL+"/api/v1/tools/sync", map[string]any{})
		},
	}
}

func newHealthCommand(baseURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON(cmd.OutOrStdout(), *baseURL+"/api/health")
		},
	}
}

func newToolsCommand(baseURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tool catalog cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON(cmd.OutOrStdout(), *baseURL+"/api/v1/tools")
		},
	}
}
