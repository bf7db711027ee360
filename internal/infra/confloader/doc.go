// Package confloader loads configuration from a YAML file and the
// environment using koanf.
//
// Priority (highest to lowest):
//
//  1. Environment variables (VOTIFIER_SECTION_KEY)
//  2. Configuration file
//  3. Defaults already present in the target struct
//
// Watcher reports changes to the configuration file so callers can reload
// tokens and log level without a restart.
package confloader
