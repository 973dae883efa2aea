// Package statuscmder provides the status command for displaying the resolved
// configuration of the local .memd directory and querying job status over the
// read API.
package statuscmder

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/memd/pkg/config"
	"github.com/papercomputeco/memd/pkg/dotdir"
	"github.com/papercomputeco/memd/pkg/memory"
)

const statusLongDesc string = `Show the effective memd configuration, or the status of a job.

Without arguments, resolves the local .memd/ directory (or ~/.memd/), reports
whether a config.toml file is present, and displays the providers and
addresses the serve command would use after applying environment variables.

With a job id, queries the running read API for that job's consolidation
record.

Examples:
  memd status
  memd status 01JC3V9A2M5N8P0Q1R2S3T4V5W`

const statusShortDesc string = "Show the effective configuration or a job's status"

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			if len(args) == 1 {
				return runJobStatus(args[0], configDir)
			}
			return runStatus(configDir)
		},
	}

	return cmd
}

func runStatus(configDir string) error {
	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return fmt.Errorf("resolving config directory: %w", err)
	}

	v, err := config.InitViper(configDir)
	if err != nil {
		return err
	}
	cfg := config.FromViper(v)

	fmt.Printf("Config directory: %s\n", target)

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return err
	}
	if path := cfger.GetTarget(); path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			fmt.Printf("Config file:      %s\n", path)
		} else {
			fmt.Print("Config file:      <not present, using defaults>\n")
		}
	} else {
		fmt.Print("Config file:      <not present, using defaults>\n")
	}

	fmt.Println()
	fmt.Printf("Storage:       %s\n", describeStorage(cfg))
	fmt.Printf("Queue:         %s\n", describeQueue(cfg))
	fmt.Printf("Vector store:  %s (%s)\n", cfg.VectorStore.Provider, cfg.VectorStore.Collection)
	fmt.Printf("Embedding:     %s %s (%d dims)\n", cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	fmt.Printf("Workers:       %d\n", cfg.Workers.Num)

	if cfg.API.Enabled {
		fmt.Printf("Read API:      %s\n", cfg.API.Listen)
	} else {
		fmt.Print("Read API:      disabled\n")
	}

	return nil
}

// runJobStatus fetches a job record from the read API of a running serve
// process.
func runJobStatus(jobID, configDir string) error {
	v, err := config.InitViper(configDir)
	if err != nil {
		return err
	}
	cfg := config.FromViper(v)

	if !cfg.API.Enabled {
		return fmt.Errorf("read API is disabled; enable api.enabled to query job status")
	}

	url := fmt.Sprintf("http://%s/v1/jobs/%s", apiHost(cfg.API.Listen), jobID)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("querying read API at %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("no job record for %s", jobID)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("read API returned %s", resp.Status)
	}

	var record memory.JobRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return fmt.Errorf("decoding job record: %w", err)
	}

	fmt.Printf("Job:      %s\n", record.ID)
	fmt.Printf("Scope:    %s\n", record.ScopeKey)
	fmt.Printf("Status:   %s\n", record.Status)
	fmt.Printf("Attempts: %d\n", record.AttemptCount)
	fmt.Printf("Updated:  %s\n", record.UpdatedAt.Format(time.RFC3339))
	if record.Result.Error != "" {
		fmt.Printf("Error:    %s\n", record.Result.Error)
	}
	fmt.Printf("Result:   created=%d updated=%d superseded=%d\n",
		record.Result.MemoriesCreated,
		record.Result.MemoriesUpdated,
		record.Result.MemoriesSuperseded,
	)
	return nil
}

// apiHost turns a listen address like ":8081" into a dialable host.
func apiHost(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "localhost" + listen
	}
	return listen
}

func describeStorage(cfg *config.Config) string {
	switch cfg.Storage.Provider {
	case "sqlite":
		return fmt.Sprintf("sqlite (%s)", cfg.Storage.SQLitePath)
	case "postgres":
		return "postgres"
	default:
		return cfg.Storage.Provider
	}
}

func describeQueue(cfg *config.Config) string {
	if cfg.Queue.Provider == "kafka" {
		return fmt.Sprintf("kafka %v (group %s)", cfg.Queue.Brokers, cfg.Queue.GroupID)
	}
	return cfg.Queue.Provider
}
