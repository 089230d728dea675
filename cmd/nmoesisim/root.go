package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nmoesisim",
	Short: "nmoesisim simulates an NMOESI write-through cache hierarchy.",
	Long: `nmoesisim simulates an NMOESI write-through cache hierarchy. ` +
		`The run command drives a synthetic workload through the hierarchy ` +
		`and the report command summarizes a recorded run.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := cmd.Flags().GetString("log-level")
		if err != nil {
			return err
		}

		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return err
		}

		logger.SetLevel(lvl)

		return nil
	},
}

var logger = logrus.New()

func init() {
	rootCmd.PersistentFlags().String("log-level", "warning",
		"Logging level: panic, fatal, error, warning, info, debug or trace.")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
