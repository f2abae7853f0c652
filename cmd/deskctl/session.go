package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// coordinatorTimeout covers an interact call, which waits on a full agent turn.
const coordinatorTimeout = 5 * time.Minute

// call sends one request to the coordinator and prints the JSON body.
func call(ctx context.Context, method, path string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	endpoint, err := url.JoinPath(cfg.CoordinatorURL, path)
	if err != nil {
		return fmt.Errorf("invalid coordinator url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: coordinatorTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("coordinator request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		out = strings.TrimSpace(string(data))
	}
	if err := printJSON(out); err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("coordinator returned %d", resp.StatusCode)
	}
	return nil
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage agent sessions",
}

var (
	createDescription  string
	createInstructions string
	createModel        string
	createParams       string
)

var sessionCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a configuration and a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]interface{}{}
		if createParams != "" {
			if err := json.Unmarshal([]byte(createParams), &params); err != nil {
				return fmt.Errorf("invalid --params: %w", err)
			}
		}
		if createInstructions != "" {
			params["instructions"] = createInstructions
		}
		if createModel != "" {
			params["model"] = createModel
		}

		body := map[string]interface{}{"name": args[0], "parameters": params}
		if createDescription != "" {
			body["description"] = createDescription
		}
		return call(cmd.Context(), http.MethodPost, "/agents", body)
	},
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <session_id>",
	Short: "Start a session's agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd.Context(), http.MethodPost, "/agents/"+url.PathEscape(args[0])+"/start", nil)
	},
}

var sessionInteractCmd = &cobra.Command{
	Use:   "interact <session_id> <input...>",
	Short: "Send input to a running session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"input": strings.Join(args[1:], " ")}
		return call(cmd.Context(), http.MethodPost, "/agents/"+url.PathEscape(args[0])+"/interact", body)
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status <session_id>",
	Short: "Show a session's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd.Context(), http.MethodGet, "/agents/"+url.PathEscape(args[0])+"/status", nil)
	},
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <session_id>",
	Short: "Show a session with its configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd.Context(), http.MethodGet, "/sessions/"+url.PathEscape(args[0]), nil)
	},
}

var sessionScreenshotCmd = &cobra.Command{
	Use:   "screenshot <session_id>",
	Short: "Pull a frame through the coordinator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd.Context(), http.MethodGet, "/agents/"+url.PathEscape(args[0])+"/screenshot", nil)
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recently active first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd.Context(), http.MethodGet, "/sessions", nil)
	},
}

var systemCmd = &cobra.Command{
	Use:   "system",
	Short: "Manage coordinator services",
}

var systemStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show managed service status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd.Context(), http.MethodGet, "/system/status", nil)
	},
}

var systemStartCmd = &cobra.Command{
	Use:   "start <service>",
	Short: "Start a managed service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd.Context(), http.MethodPost, "/system/start", map[string]string{"service": args[0]})
	},
}

var systemStopCmd = &cobra.Command{
	Use:   "stop <service>",
	Short: "Stop a managed service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd.Context(), http.MethodPost, "/system/stop", map[string]string{"service": args[0]})
	},
}

func init() {
	sessionCreateCmd.Flags().StringVar(&createDescription, "description", "", "configuration description")
	sessionCreateCmd.Flags().StringVar(&createInstructions, "instructions", "", "agent instructions")
	sessionCreateCmd.Flags().StringVar(&createModel, "model", "", "agent model")
	sessionCreateCmd.Flags().StringVar(&createParams, "params", "", "extra parameters as a JSON object")

	sessionCmd.AddCommand(sessionCreateCmd, sessionStartCmd, sessionInteractCmd, sessionStatusCmd, sessionGetCmd, sessionScreenshotCmd, sessionListCmd)
	systemCmd.AddCommand(systemStatusCmd, systemStartCmd, systemStopCmd)
	rootCmd.AddCommand(sessionCmd, systemCmd)
}
