// Package buildinfo carries version identifiers stamped via -ldflags.
package buildinfo

var (
	Version = "dev"
	Build   = ""
)
