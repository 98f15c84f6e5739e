package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/jury-instructions/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the reference claim and instruction catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <seed.yaml>",
	Short: "Load reference claims and instruction templates from a seed file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogImport,
}

var catalogStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog size",
	RunE:  runCatalogStats,
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogStatsCmd)
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	seed, err := catalog.LoadSeed(args[0])
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ImportSeed(cmd.Context(), seed); err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}
	logger.Info("catalog imported",
		zap.String("seed", args[0]),
		zap.Int("claims", len(seed.Claims)),
		zap.Int("templates", len(seed.Templates)))
	return nil
}

func runCatalogStats(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.Snapshot(cmd.Context())
	if err != nil {
		return err
	}
	claims, templates := snap.Len()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Claims:     %d\n", claims)
	fmt.Fprintf(out, "Templates:  %d\n", templates)
	fmt.Fprintf(out, "Categories: %d\n", len(snap.Categories()))
	return nil
}
