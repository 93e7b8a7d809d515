package commands

import (
	"github.com/mosaicnetworks/relay/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for relay
var RootCmd = &cobra.Command{
	Use:              "relay",
	Short:            "relay server with live client migration",
	TraverseChildren: true,
}
