// Package defaults provides embedded copies of default configuration
// files for the rocky init subcommand.
package defaults

import _ "embed"

//go:embed config.example.yaml
var ConfigYAML []byte
