// Package brainmemcmder provides the root brainmem command.
package brainmemcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/omnii-ai/brainmem/cmd/brainmem/config"
	consolidatecmder "github.com/omnii-ai/brainmem/cmd/brainmem/consolidate"
	servecmder "github.com/omnii-ai/brainmem/cmd/brainmem/serve"
	versioncmder "github.com/omnii-ai/brainmem/cmd/version"
)

const brainmemLongDesc string = `Brainmem is a conversational memory engine for multi-channel assistants.

Run services using:
  brainmem serve          Run the memory API server
  brainmem consolidate    Run one consolidation pass and exit`

const brainmemShortDesc string = "Brainmem - Conversational Memory Engine"

func NewBrainmemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brainmem",
		Short: brainmemShortDesc,
		Long:  brainmemLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .brainmem/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(consolidatecmder.NewConsolidateCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
