// Command lwm2mcored is a demo/debug host for the data model engine: it
// seeds an in-memory device out of the built-in Security/Server/Device/
// FirmwareUpdate/AccessControl objects, runs the notification pump
// against them, and exposes the result over the debug HTTP+JSON service
// (see pkg/debugapi) so a human or a test script can poke at a live
// engine without a real CoAP stack.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/lwm2mcore/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lwm2mcored",
	Short: "lwm2mcored - LwM2M client-side data model engine demo host",
	Long: `lwm2mcored hosts the LwM2M client data model engine: Object/Instance/
Resource registry, transactional Write/Create/Delete, the Observation
Table and notification pump, and the built-in Security/Server/Device/
FirmwareUpdate/Access Control objects.

It is a demo and debug harness, not a CoAP endpoint: the engine is
reachable only through the debug HTTP+JSON service (see 'serve').`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"lwm2mcored version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
