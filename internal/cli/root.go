package cli

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "coffeemachine",
	Short: "Coffee machine order fulfillment service",
	Long: `Consumes coffee orders from Kafka, brews them on the machine and reports
every milestone back as events.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./coffeemachine.yaml or /etc/coffeemachine/coffeemachine.yaml)")
}

// Execute runs the command line.
func Execute() error {
	return rootCmd.Execute()
}
