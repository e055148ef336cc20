// Package templates embeds the default configuration and agent profiles
// written by `tradedesk init`.
package templates

import "embed"

//go:embed config.yaml agents
var FS embed.FS

// AgentsDir is the embedded directory holding the default profiles.
const AgentsDir = "agents"
