package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show runtime statistics of a running service",
		Long:  `Query a running profilynx service for queue, worker and cache statistics.`,
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}

	cmd.Flags().String("addr", "http://localhost:8087", "Base URL of the running service")
	cmd.Flags().String("api-key", "", "API key when authentication is enabled")
	cmd.Flags().String("token", "", "Bearer token when authentication is enabled")

	_ = viper.BindPFlag("stats.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("stats.api_key", cmd.Flags().Lookup("api-key"))
	_ = viper.BindPFlag("stats.token", cmd.Flags().Lookup("token"))

	return cmd
}

func runStats(cmd *cobra.Command, args []string) error {
	url := strings.TrimRight(viper.GetString("stats.addr"), "/") + "/api/v1/stats"
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if key := viper.GetString("stats.api_key"); key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if token := viper.GetString("stats.token"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("query service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var stats map[string]map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}

	fmt.Println("Runtime Statistics:")
	fmt.Println("═══════════════════════════════════════════════════════════════")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	components := make([]string, 0, len(stats))
	for name := range stats {
		components = append(components, name)
	}
	sort.Strings(components)

	for _, name := range components {
		fmt.Fprintf(w, "%s:\t\n", strings.ToUpper(name))
		keys := make([]string, 0, len(stats[name]))
		for k := range stats[name] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s:\t%v\n", k, stats[name][k])
		}
		fmt.Fprintln(w)
	}

	_ = w.Flush()
	return nil
}
