// Package output renders votifier-cli results as table, json or yaml.
//
// Table output flattens nested structs, so a vote journal entry prints as
// one row with the vote fields inline. Fields tagged `table:"wide"` only
// show with --wide; `table:"-"` hides a field.
package output
