package vm

import "io"

// Config carries the host-supplied VM construction parameters: output
// sinks, heap limits, frame caps, and the error/print hooks. It is passed
// once, at VM construction time.
type Config struct {
	// Stdout and Stderr are used by the default print/error handlers below.
	// If nil, os.Stdout / os.Stderr are used.
	Stdout io.Writer
	Stderr io.Writer

	// InitialHeapThreshold is the allocation total, in approximate bytes,
	// that triggers the first collection. Zero selects a 1 MiB default
	// (gc.NewHeap's own default).
	InitialHeapThreshold uint64

	// HeapGrowthFactor scales the survived-bytes estimate into the next
	// collection threshold. Zero selects 2.0.
	HeapGrowthFactor float64

	// GCStress, when true, forces a collection on every allocation site
	// that would otherwise only check the threshold.
	GCStress bool

	// MaxCallFrames overrides object.MaxCallFrames per-VM when non-zero.
	MaxCallFrames int

	// ErrorHandler receives every error that escapes an unprotected
	// top-level call. If nil, a default handler writes to Stderr.
	ErrorHandler func(err error)

	// PrintHandler, when set, receives each line the built-in print
	// function produces (without its trailing newline) instead of that line
	// being written to Stdout.
	PrintHandler func(s string)
}

func (c *Config) heapThreshold() uint64 {
	return c.InitialHeapThreshold
}

func (c *Config) heapGrowth() float64 {
	if c.HeapGrowthFactor <= 1 {
		return 2
	}
	return c.HeapGrowthFactor
}

func (c *Config) maxCallFrames(fallback int) int {
	if c.MaxCallFrames > 0 {
		return c.MaxCallFrames
	}
	return fallback
}
