// Package config defines the rmap-server configuration.
//
// A ServerConfig starts from Default, is overlaid by confloader (file, env,
// flags) and is checked by Verify before use. Sanitize masks secrets for
// logging.
package config
