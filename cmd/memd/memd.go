// Package memdcmder
package memdcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/memd/cmd/memd/config"
	servecmder "github.com/papercomputeco/memd/cmd/memd/serve"
	statuscmder "github.com/papercomputeco/memd/cmd/memd/status"
	"github.com/papercomputeco/memd/pkg/utils"
)

const memdLongDesc string = `memd consolidates extracted facts into durable, deduplicated memories.

Candidate facts arrive on the job queue in scoped batches; each batch is
deduplicated against the existing memories of its scope, conflicts are
resolved, and every mutation lands in an append-only revision ledger.

Run services using:
  memd serve           Run the consolidation workers and the read API`

const memdShortDesc string = "memd - Memory Consolidation Engine"

func NewMemdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memd",
		Short:   memdShortDesc,
		Long:    memdLongDesc,
		Version: fmt.Sprintf("%s (%s, built %s)", utils.Version, utils.Sha, utils.Buildtime),
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .memd/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())

	return cmd
}
