// Package command defines the votifier-cli commands on urfave/cli/v2.
//
//   - vote send: send a v1 or v2 test vote to a receiver
//   - keys generate|show: manage the RSA key pair in a key directory
//   - token new|list: manage v2 service tokens in a key directory
//   - votes list: read the journal of a running receiver over HTTP
//   - status, metrics, version: admin endpoint and build information
//   - config show|init: the CLI profile
//
// Commands resolve defaults from flags first, then the profile, and write
// through the output package so every result prints as table, json or yaml.
package command
