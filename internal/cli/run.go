package cli

import (
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/app"
	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/config"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the fulfillment service",
	Long:  `Start consuming orders. Runs until interrupted.`,
	RunE:  runService,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runService(cmd *cobra.Command, args []string) error {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return err
	}

	application, err := app.NewApplication(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	return application.Run()
}
