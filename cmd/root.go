package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	account    string
}

func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "courtsched",
		Short:        "Acquires badminton court slots from the gym booking service as soon as they open",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML config file merged over the built-in defaults")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&g.account, "account", "", "load credentials for this stored account (needs DATABASE_URL)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newRunCmd(g))
	root.AddCommand(newScheduleCmd(g))
	root.AddCommand(newOrdersCmd(g))
	root.AddCommand(newAccountCmd(g))

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
