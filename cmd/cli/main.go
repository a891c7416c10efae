package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type Config struct {
	BaseURL string `json:"base_url"`
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".clickview")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "cli_config.json"), nil
}

func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{BaseURL: "http://localhost:8000"}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	return &cfg, nil
}

func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func apiGet(cfg *Config, path string, out any) error {
	resp, err := http.Get(cfg.BaseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

func apiPost(cfg *Config, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := http.Post(cfg.BaseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

func renderRows(w io.Writer, columns []string, rows []map[string]any) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(columns)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := row[col]; ok && v != nil {
				record[i] = fmt.Sprint(v)
			}
		}
		table.Append(record)
	}
	table.Render()
}

// columnsOf derives a stable column order from the first row when the
// server response does not carry one.
func columnsOf(rows []map[string]any) []string {
	if len(rows) == 0 {
		return nil
	}
	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	return columns
}

// --- Cobra root and commands ---

var rootCmd = &cobra.Command{
	Use:   "clickview",
	Short: "ClickView CLI",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
}

var configSetURLCmd = &cobra.Command{
	Use:   "set-url <base-url>",
	Short: "Set the API base URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.BaseURL = args[0]
		return saveConfig(cfg)
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List registered tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var out struct {
			Tables []string `json:"tables"`
		}
		if err := apiGet(cfg, "/api/v1/tables", &out); err != nil {
			return err
		}
		for _, name := range out.Tables {
			fmt.Println(name)
		}
		return nil
	},
}

var sampleCmd = &cobra.Command{
	Use:   "sample <table>",
	Short: "Show sample rows from a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		var out struct {
			Columns []struct {
				Name string `json:"name"`
			} `json:"columns"`
			Data []map[string]any `json:"data"`
		}
		if err := apiGet(cfg, fmt.Sprintf("/api/v1/tables/%s/sample?limit=%d", args[0], limit), &out); err != nil {
			return err
		}
		columns := make([]string, len(out.Columns))
		for i, c := range out.Columns {
			columns[i] = c.Name
		}
		renderRows(os.Stdout, columns, out.Data)
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <plan.json>",
	Short: "Run a query plan from a JSON file and render the page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		planData, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var plan map[string]any
		if err := json.Unmarshal(planData, &plan); err != nil {
			return fmt.Errorf("invalid plan file: %w", err)
		}
		var out struct {
			Rows     []map[string]any `json:"rows"`
			Total    uint64           `json:"total"`
			Page     int              `json:"page"`
			PageSize int              `json:"page_size"`
		}
		if err := apiPost(cfg, "/api/v1/data/query", plan, &out); err != nil {
			return err
		}
		renderRows(os.Stdout, columnsOf(out.Rows), out.Rows)
		fmt.Printf("\npage %d (%d rows shown, %d total)\n", out.Page, len(out.Rows), out.Total)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <plan.json> <output-file>",
	Short: "Export matching rows to a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		planData, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var plan map[string]any
		if err := json.Unmarshal(planData, &plan); err != nil {
			return fmt.Errorf("invalid plan file: %w", err)
		}
		format, _ := cmd.Flags().GetString("format")
		plan["format"] = format

		payload, err := json.Marshal(plan)
		if err != nil {
			return err
		}
		resp, err := http.Post(cfg.BaseURL+"/api/v1/data/export", "application/json", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
		}

		out, err := os.Create(args[1])
		if err != nil {
			return err
		}
		defer out.Close()
		n, err := io.Copy(out, resp.Body)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %d bytes to %s\n", n, args[1])
		return nil
	},
}

func init() {
	sampleCmd.Flags().Int("limit", 20, "Number of sample rows")
	exportCmd.Flags().String("format", "csv", "Export format: csv or ndjson")

	configCmd.AddCommand(configSetURLCmd)
	rootCmd.AddCommand(configCmd, tablesCmd, sampleCmd, queryCmd, exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
