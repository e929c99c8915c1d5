// Package confloader loads layered configuration with koanf.
//
// Sources, lowest to highest priority:
//
//  1. defaults already present in the target struct
//  2. a YAML file
//  3. environment variables (RMAP_ prefix, "__" separates nesting levels)
//  4. explicit overrides, usually command-line flags (LoadMap)
//
// Watcher reports writes to the configuration file so the caller can reload.
package confloader
