package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Sims2k/citeloom-sub000/internal/version"
)

// Execute builds and runs the root command tree.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "citeloom",
		Short:   "Ingest Zotero-managed research libraries into a per-project vector index",
		Version: version.Version,
		Long: `citeloom ingests Zotero-managed PDFs and bibliographic metadata into a
per-project vector index and serves grounded retrieval over it.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to citeloom.toml (default: $CITELOOM_CONFIG or ./citeloom.toml)")

	root.AddCommand(newIngestCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newZoteroCmd())

	return root
}
