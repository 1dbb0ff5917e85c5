package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/trstruth/pingback"
)

var verbose bool

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:               "pingback",
	Short:             "a controllable icmp echo responder",
	Long:              "Answer ICMP echo requests on a raw socket, optionally rewriting the echoed payload",
	PersistentPreRunE: rootPreRun,
	SilenceUsage:      true,
	Version:           "v0.1.0",
}

func initRoot() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output, including packet dumps")
	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(PingCmd)
}

func rootPreRun(cmd *cobra.Command, args []string) error {
	if verbose {
		pingback.Logger().SetLevel(logrus.DebugLevel)
	}
	return nil
}
