//go:build !profile

package prof

import "flag"

// Enabled reports whether the binary was built with profiling.
const Enabled = false

// Register adds no flags when built without the "profile" tag.
func (o *Options) Register(_ *flag.FlagSet) {}

// Start does nothing when built without the "profile" tag.
func Start(_ Options) (func() error, error) {
	return func() error { return nil }, nil
}
