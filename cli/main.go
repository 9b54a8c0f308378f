// Command kernelctl is a small client for the kernel HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	actorID    string
	actorRoles string
)

var rootCmd = &cobra.Command{
	Use:           "kernelctl",
	Short:         "Inspect and drive a kernel server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create [tenant] [decision-context]",
	Short: "Open a session with its first epoch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		return call(cmd, http.MethodPost, "/v1/sessions", map[string]any{
			"tenant_id":           args[0],
			"decision_context_id": args[1],
			"mode":                mode,
		})
	},
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close [session]",
	Short: "Close a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodPost, "/v1/sessions/"+url.PathEscape(args[0])+"/close", nil)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events [session]",
	Short: "Print the audit trail of a session, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		eventType, _ := cmd.Flags().GetString("type")
		q := url.Values{"limit": {strconv.Itoa(limit)}}
		if eventType != "" {
			q.Set("event_type", eventType)
		}
		return call(cmd, http.MethodGet, "/v1/sessions/"+url.PathEscape(args[0])+"/events?"+q.Encode(), nil)
	},
}

var runCmd = &cobra.Command{
	Use:   "run [session] [zone]",
	Short: "Execute a zone in the latest epoch of a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("inputs")
		allowExternal, _ := cmd.Flags().GetBool("allow-external")
		inputs := map[string]any{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
				return fmt.Errorf("invalid --inputs: %w", err)
			}
		}
		path := fmt.Sprintf("/v1/sessions/%s/zones/%s/run", url.PathEscape(args[0]), url.PathEscape(args[1]))
		return call(cmd, http.MethodPost, path, map[string]any{
			"inputs":         inputs,
			"allow_external": allowExternal,
		})
	},
}

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "List loaded zones",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodGet, "/v1/zones", nil)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [session]",
	Short: "Stream observe notifications",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := ""
		if len(args) == 1 {
			sessionID = args[0]
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		out := cmd.OutOrStdout()
		return NewClient(serverAddr, actorID, actorRoles).Watch(ctx, sessionID, func(data []byte) error {
			_, err := fmt.Fprintln(out, string(data))
			return err
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", envOr("KERNEL_ADDR", "http://localhost:8080"), "kernel base URL")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", os.Getenv("KERNEL_ACTOR"), "acting human identity")
	rootCmd.PersistentFlags().StringVar(&actorRoles, "roles", "", "comma separated actor roles")

	sessionCreateCmd.Flags().String("mode", "live", "session mode (live or whatif)")
	eventsCmd.Flags().Int("limit", 50, "maximum events to print")
	eventsCmd.Flags().String("type", "", "only events of this type")
	runCmd.Flags().String("inputs", "", "zone inputs as a JSON object")
	runCmd.Flags().Bool("allow-external", false, "allow external_untrusted capabilities")

	sessionCmd.AddCommand(sessionCreateCmd, sessionCloseCmd)
	rootCmd.AddCommand(sessionCmd, eventsCmd, runCmd, zonesCmd, watchCmd)
}

func call(cmd *cobra.Command, method, path string, body any) error {
	out, err := NewClient(serverAddr, actorID, actorRoles).Do(cmd.Context(), method, path, body)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
