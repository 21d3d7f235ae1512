package cli

import (
	"fmt"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/catalog"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/config"

	"github.com/spf13/cobra"
)

var seedFile string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the ingredient and recipe catalog",
}

var catalogMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply catalog schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCatalog()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		fmt.Fprintln(cmd.OutOrStdout(), "catalog migrated")
		return nil
	},
}

var catalogSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load ingredients and recipes from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		seed, err := catalog.LoadSeed(seedFile)
		if err != nil {
			return err
		}

		store, err := openCatalog()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.ApplySeed(cmd.Context(), seed); err != nil {
			return fmt.Errorf("applying seed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d ingredients and %d recipes\n",
			len(seed.Ingredients), len(seed.Recipes))
		return nil
	},
}

func init() {
	catalogSeedCmd.Flags().StringVar(&seedFile, "file", "", "seed file in YAML")
	_ = catalogSeedCmd.MarkFlagRequired("file")

	catalogCmd.AddCommand(catalogMigrateCmd, catalogSeedCmd)
	rootCmd.AddCommand(catalogCmd)
}

// openCatalog only needs catalog.path, so it skips full config validation.
func openCatalog() (*catalog.Store, error) {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return nil, err
	}

	store, err := catalog.Open(v.GetString("catalog.path"))
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
