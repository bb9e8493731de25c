package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/kalambet/propmatch/internal/config"
	"github.com/kalambet/propmatch/internal/pipeline"
	"github.com/kalambet/propmatch/internal/storage"
)

// --- match ---

var matchCmd = &cobra.Command{
	Use:   "match <client-id>",
	Short: "Rank available listings for a client",
	Long: `Rank available listings for a client and record them in the match ledger.

Examples:
  propmatch match c-1042
  propmatch match c-1042 --refresh --min-score 60 --max-results 5
  propmatch match c-1042 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := matchRequest(cmd, args[0])
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/match", req)
		if err != nil {
			return err
		}
		var result pipeline.Response
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		return renderMatches(os.Stdout, result)
	},
}

// matchRequest builds the invocation body. Limits are sent only when the
// flag was given so the server defaults apply otherwise.
func matchRequest(cmd *cobra.Command, clientID string) (pipeline.Request, error) {
	req := pipeline.Request{ClientID: clientID}
	req.RefreshScore, _ = cmd.Flags().GetBool("refresh")

	if cmd.Flags().Changed("min-score") {
		v, _ := cmd.Flags().GetInt("min-score")
		if v < 0 || v > 100 {
			return req, fmt.Errorf("--min-score must be between 0 and 100")
		}
		req.MinScore = &v
	}
	if cmd.Flags().Changed("max-results") {
		v, _ := cmd.Flags().GetInt("max-results")
		if v < 1 || v > 100 {
			return req, fmt.Errorf("--max-results must be between 1 and 100")
		}
		req.MaxResults = &v
	}
	return req, nil
}

func addMatchFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("refresh", false, "recompute and store the intent score")
	cmd.Flags().Int("min-score", 70, "minimum match score (0-100)")
	cmd.Flags().Int("max-results", 10, "maximum number of matches (1-100)")
}

func init() {
	addMatchFlags(matchCmd)
	matchCmd.Flags().Bool("json", false, "print the raw JSON response")
}

// --- refresh ---

var refreshCmd = &cobra.Command{
	Use:   "refresh <client-id>",
	Short: "Queue a background match refresh for a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := matchRequest(cmd, args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"refresh_score": req.RefreshScore}
		if req.MinScore != nil {
			body["min_score"] = *req.MinScore
		}
		if req.MaxResults != nil {
			body["max_results"] = *req.MaxResults
		}
		resp, err := client.post(cmd.Context(), "/clients/"+url.PathEscape(args[0])+"/refresh", body)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued refresh job %s", result["job_id"])
		return nil
	},
}

func init() {
	addMatchFlags(refreshCmd)
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import clients, properties and market insights from JSON files",
	Long: `Import records from files holding a JSON array of objects. Each object is
posted to the server on its own; failures are reported and skipped.

Examples:
  propmatch import --clients clients.json
  propmatch import --properties listings.json --insights insights.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sources := []struct{ flag, endpoint string }{
			{"clients", "/clients"},
			{"properties", "/properties"},
			{"insights", "/insights"},
		}

		given := false
		for _, s := range sources {
			if v, _ := cmd.Flags().GetString(s.flag); v != "" {
				given = true
			}
		}
		if !given {
			return fmt.Errorf("one of --clients, --properties, or --insights is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		totalFailed := 0
		for _, s := range sources {
			path, _ := cmd.Flags().GetString(s.flag)
			if path == "" {
				continue
			}
			printStep("Importing %s from %s...", s.flag, path)
			ok, failed, err := importFile(cmd.Context(), client, path, s.endpoint)
			if err != nil {
				return err
			}
			totalFailed += failed
			printSuccess("Imported %d %s", ok, s.flag)
		}

		if totalFailed > 0 {
			return fmt.Errorf("%d records failed to import", totalFailed)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().String("clients", "", "JSON file with an array of clients")
	importCmd.Flags().String("properties", "", "JSON file with an array of properties")
	importCmd.Flags().String("insights", "", "JSON file with an array of market insights")
}

// importFile posts every element of the JSON array in path to endpoint and
// returns the number of successes and failures.
func importFile(ctx context.Context, client *apiClient, path, endpoint string) (int, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return 0, 0, fmt.Errorf("parsing %s: expected a JSON array: %w", path, err)
	}

	ok, failed := 0, 0
	for i, item := range items {
		resp, err := client.post(ctx, endpoint, item)
		if err != nil {
			return ok, failed, err
		}
		if err := decodeJSON(resp, nil); err != nil {
			printError("%s[%d]: %v", path, i, err)
			failed++
			continue
		}
		ok++
	}
	return ok, failed, nil
}

// --- ledger ---

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or clear a client's match ledger",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show <client-id>",
	Short: "Show the listings already offered to a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/clients/"+url.PathEscape(args[0])+"/matches")
		if err != nil {
			return err
		}
		var records []storage.MatchRecord
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}
		return renderLedger(os.Stdout, records)
	},
}

var ledgerClearCmd = &cobra.Command{
	Use:   "clear <client-id>",
	Short: "Delete a client's match ledger so listings can be offered again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes every ledger entry for %s. Use --confirm to proceed.", args[0])
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/clients/"+url.PathEscape(args[0])+"/matches")
		if err != nil {
			return err
		}
		var result struct {
			Deleted int64 `json:"deleted"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Cleared %d ledger entries for %s", result.Deleted, args[0])
		return nil
	},
}

func init() {
	ledgerClearCmd.Flags().Bool("confirm", false, "confirm ledger deletion")
	ledgerCmd.AddCommand(ledgerShowCmd)
	ledgerCmd.AddCommand(ledgerClearCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
