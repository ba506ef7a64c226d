// Package utils holds the small helpers shared across the engine that have
// no better home.
package utils

// Build metadata, stamped in via -ldflags at release time.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)
