package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/pbrgen/internal/pipeline"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete generated PBR channels",
	Long: `Delete every _Normal, _Metalness and _Roughness file below the input.
Base-color files and thumbnails are kept. Prints {"deleted":[...]} to stdout.`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().StringP("input", "i", "", "Input directory or derived channel file")
	cleanCmd.Flags().Bool("dry-run", false, "List files without deleting them")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"clean.input", "input"},
		{"clean.dry_run", "dry-run"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, cleanCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runClean(cmd *cobra.Command, args []string) error {
	input := viper.GetString("clean.input")
	if input == "" && len(args) > 0 {
		input = args[0]
	}
	dryRun := viper.GetBool("clean.dry_run")

	if logger == nil {
		initLogging()
	}

	if input == "" {
		return fmt.Errorf("--input is required")
	}

	report, err := pipeline.Clean(input, dryRun, logger)
	if err != nil {
		return err
	}

	if !dryRun && len(report.Deleted) > 0 {
		cat, err := openCatalog()
		if err != nil {
			return err
		}
		if cat != nil {
			defer cat.Close()
			n, err := report.ForgetDeleted(cat, input)
			if err != nil {
				return err
			}
			logger.Info("Dropped catalog rows", "input", input, "rows", n)
		}
	}

	if err := json.NewEncoder(cmd.OutOrStdout()).Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d files could not be deleted", len(report.Failed))
	}
	return nil
}
