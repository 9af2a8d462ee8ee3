package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outcome   string
	limit     int
	offset    int
)

func main() {
	root := &cobra.Command{
		Use:   "sentinel-cli",
		Short: "CLI client for the kernel execution sentinel",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:7411", "Sentinel URL")

	// Health check
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check sentinel health",
		RunE:  runHealth,
	})

	// List execution history
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent executions",
		RunE:  runList,
	}
	listCmd.Flags().StringVar(&outcome, "outcome", "", "Filter by outcome (success, error)")
	listCmd.Flags().IntVar(&limit, "limit", 100, "Maximum rows to fetch")
	listCmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	root.AddCommand(listCmd)

	// Get a single execution
	root.AddCommand(&cobra.Command{
		Use:   "get [execution-count]",
		Short: "Show one execution by its sequence number",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	})

	// Tail the live event stream
	root.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Tail live execution metadata and notices",
		RunE:  runWatch,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runHealth(_ *cobra.Command, _ []string) error {
	return getJSON(serverURL + "/health")
}

func runList(_ *cobra.Command, _ []string) error {
	url := fmt.Sprintf("%s/executions?limit=%d&offset=%d", serverURL, limit, offset)
	if outcome != "" {
		url += "&outcome=" + outcome
	}
	return getJSON(url)
}

func runGet(_ *cobra.Command, args []string) error {
	if _, err := strconv.ParseUint(args[0], 10, 64); err != nil {
		return fmt.Errorf("execution count must be a positive integer, got %q", args[0])
	}
	return getJSON(serverURL + "/executions/" + args[0])
}

// runWatch streams Server-Sent Events and prints one line per payload.
func runWatch(_ *cobra.Command, _ []string) error {
	resp, err := http.Get(serverURL + "/events")
	if err != nil {
		return fmt.Errorf("connecting to event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream returned %s", resp.Status)
	}

	var event string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			fmt.Printf("[%s] %s %s\n",
				time.Now().Format(time.TimeOnly), event, strings.TrimPrefix(line, "data: "))
		}
	}
	return scanner.Err()
}

func getJSON(url string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))

	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
	return nil
}
