package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deepaksubu/norbert/version"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print norbertd's version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.Get().String())
		return nil
	},
}
