package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pmkol/resolver-x/coremain"
	"github.com/pmkol/resolver-x/mlog"
	_ "github.com/pmkol/resolver-x/plugin"
)

var version = "dev/unknown"

func init() {
	coremain.AddSubCmd(&cobra.Command{
		Use:   "version",
		Short: "Print out version info and exit.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})
}

func main() {
	if err := coremain.Run(); err != nil {
		mlog.S().Fatal(err)
	}
}
