package invitectl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"curry2cakes/pkg/invite"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"

	statsPath = "/api/admin/stats"
)

// Stats queries the API for registry statistics and prints them.
func Stats(ctx context.Context, cfg StatsConfig) (invite.Stats, error) {
	stats, err := FetchStats(ctx, cfg.HTTPClient, cfg.APIBaseURL)
	if err != nil {
		return invite.Stats{}, err
	}
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	return stats, WriteStats(stdout, stats, cfg.Format)
}

// FetchStats reads /api/admin/stats from the API at baseURL.
func FetchStats(ctx context.Context, client *http.Client, baseURL string) (invite.Stats, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return invite.Stats{}, errors.New("api base url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+statsPath, nil)
	if err != nil {
		return invite.Stats{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return invite.Stats{}, fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return invite.Stats{}, fmt.Errorf("fetch stats: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var stats invite.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return invite.Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}

// WriteStats renders stats as a table, JSON or YAML.
func WriteStats(w io.Writer, stats invite.Stats, format string) error {
	switch strings.ToLower(format) {
	case "", FormatTable:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TOTAL\tUSED\tEXPIRED\tACTIVE")
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", stats.Total, stats.Used, stats.Expired, stats.Active)
		return tw.Flush()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(stats)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
