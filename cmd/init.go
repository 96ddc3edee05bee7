package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mkoblar/machdoc/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize machdoc configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure machdoc for your documentation set and generates a .machdoc.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
