// Package cli implements the mmoclient command tree.
//
// Every command loads the same YAML config (plus MMO_* environment
// overrides) through --config, so a single file drives both the long-running
// client and the one-shot helpers.
package cli
