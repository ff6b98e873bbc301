// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "0.1.0"

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hoststack",
	Short: "hoststack - single-interface IPv4 host stack",
	Long: `hoststack is a user-space IPv4 host stack bound to one interface.
It validates and delivers inbound datagrams, fragments outbound ones,
answers ICMP echo requests and reports unreachable protocols.

Frames come from a live interface (AF_PACKET, linux) or are replayed
from a pcap file, with outbound frames recorded to another pcap file.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/hoststack/config.yml",
		"config file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
