package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/pbrgen/internal/catalog"
)

var materialsCmd = &cobra.Command{
	Use:   "materials",
	Short: "List materials recorded in the catalog",
	RunE:  runMaterials,
}

func init() {
	rootCmd.AddCommand(materialsCmd)

	materialsCmd.Flags().String("near", "", "Order by swatch similarity to this #rrggbb color")
	if err := viper.BindPFlag("materials.near", materialsCmd.Flags().Lookup("near")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

// openCatalog opens the configured catalog, or returns nil when none is configured.
func openCatalog() (*catalog.Catalog, error) {
	path := viper.GetString("catalog")
	if path == "" {
		return nil, nil
	}
	cat, err := catalog.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	logger.Debug("Opened material catalog", "path", path)
	return cat, nil
}

func runMaterials(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	cat, err := openCatalog()
	if err != nil {
		return err
	}
	if cat == nil {
		return fmt.Errorf("--catalog is required")
	}
	defer cat.Close()

	materials, err := cat.List()
	if err != nil {
		return err
	}
	if near := viper.GetString("materials.near"); near != "" {
		if err := catalog.SortBySwatch(materials, near); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"materials": materials})
}
