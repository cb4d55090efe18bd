package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Dump the live object tree from a running 'serve' instance",
	Long: `inspect queries a running lwm2mcored serve instance's debug
HTTP+JSON service and prints the registered Object/Instance/Resource
tree as JSON.`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().String("addr", "127.0.0.1:8090", "Debug HTTP+JSON service address to query")
}

func runInspect(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/debug/tree")
	if err != nil {
		return fmt.Errorf("failed to reach debug service at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("debug service returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var pretty interface{}
	if err := json.Unmarshal(body, &pretty); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
