// Package config defines the configuration for a Pythagoras node.
//
// Regardless of how Pythagoras is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, Pythagoras relies on a data directory, defined by
// Config.DataDir, where it expects to find one additional file:
//
//	node_key // a plain text file containing the raw node private key, generated on first run.
package config
