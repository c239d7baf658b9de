package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dvm-project/dvmkit/pkg/config"
)

var endpoints []string
var swarmPort int
var peerConnect []string

func init() { //nolint:gochecknoinits // Using init in cobra command is idiomatic
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(submitCmd)
	RootCmd.AddCommand(idCmd)
	RootCmd.PersistentFlags().StringSliceVar(
		&endpoints, "endpoint", nil,
		`Relay endpoint (topic) to publish and subscribe on. Repeatable; at least one is required.`,
	)
	RootCmd.PersistentFlags().IntVar(
		&swarmPort, "port", 4222,
		`The port to listen on for gossip connections.`,
	)
	RootCmd.PersistentFlags().StringSliceVar(
		&peerConnect, "peer", nil,
		`A libp2p multiaddress of a peer to connect to. Repeatable.`,
	)

	// Accept underscores as a spelling of dashes in flag names.
	RootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	config.SetDefaults(viper.GetViper())
	_ = viper.BindPFlag(config.KeyEndpoints, RootCmd.PersistentFlags().Lookup("endpoint"))
}

var RootCmd = &cobra.Command{
	Use:   "dvmkit",
	Short: "Pay-per-job inference over gossip relays",
	Long:  `Broker inference jobs between submitters and processors over gossip relays, settled with Lightning invoices.`,
}

func Execute(version string) {
	RootCmd.Version = version
	RootCmd.SetVersionTemplate(fmt.Sprintf("dvmkit version: %s\n", version))

	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
