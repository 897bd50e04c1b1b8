package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/moji/pkg/moji"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the moji version",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.flags.jsonMode {
				return a.printJSON(map[string]string{"version": moji.Version, "module": moji.ModulePath})
			}
			fmt.Fprintf(a.stdout, "moji v%s\nmodule: %s\n", moji.Version, moji.ModulePath)
			return nil
		},
	}
}
