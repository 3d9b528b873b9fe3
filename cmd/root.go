package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/sKV/cmd/bench"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "skv",
		Short: "sharded in-memory key-value store",
		Long: fmt.Sprintf(`sKV (v%s)

A shared-nothing, sharded in-memory key-value store library written in Go.
Each shard runs single-threaded; a transaction coordination core carries
commands across shards with isolation, ordering and atomicity but without
any cross-shard lock manager.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sKV v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
