package commands

import (
	"github.com/mosaicnetworks/relay/src/relay"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a relay server
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run server",
		PreRunE: loadConfig,
		RunE:    runRelay,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runRelay(cmd *cobra.Command, args []string) error {
	engine := relay.NewRelay(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write logs to this file, as JSON")
	cmd.Flags().String("name", _config.Name, "Name of this server in tree.json")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for the relay server")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for the relay server")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")

	// Migration
	cmd.Flags().Int("buffer-limit", _config.BufferLimit, "Max lines buffered for a client migrating here, 0 for no limit")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"relay.DataDir":       _config.DataDir,
		"relay.Name":          _config.Name,
		"relay.BindAddr":      _config.BindAddr,
		"relay.AdvertiseAddr": _config.AdvertiseAddr,
		"relay.ServiceAddr":   _config.ServiceAddr,
		"relay.NoService":     _config.NoService,
		"relay.MaxPool":       _config.MaxPool,
		"relay.TCPTimeout":    _config.TCPTimeout,
		"relay.Store":         _config.Store,
		"relay.LogLevel":      _config.LogLevel,
		"relay.LogFile":       _config.LogFile,
		"relay.BufferLimit":   _config.BufferLimit,
	}

	if _config.Store {
		logFields["relay.DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/relay.toml (.json, .yaml also work)
	viper.SetConfigName("relay")         // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	found := true
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		found = false
	}

	// second unmarshal to read from config file
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// Logger is built only after the final unmarshal
	if found {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	}

	return nil
}
