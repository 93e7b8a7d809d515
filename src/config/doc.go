// Package config defines the configuration for a relay server.
//
// Regardless of how the server is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, the server relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//  tree.json // a JSON file describing the servers of the tree and their uplinks.
//  relay.toml // (optional) configuration file, read by the relay command.
//  badger_db // (optional) the database of migration records, when Store is set.
package config
