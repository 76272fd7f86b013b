package stress

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/poolstress/pkg/pmpool"
)

// Default run parameters.
const (
	DefaultWorkers = 32
	DefaultCycles  = 10
	DefaultExtent  = 16 << 20
	DefaultMode    = os.FileMode(0o644)
	DefaultIDs     = "seq"
)

// DefaultPrefix returns the default pool path prefix under the temp dir.
func DefaultPrefix() string {
	return filepath.Join(os.TempDir(), "pmemobj_mt_safety")
}

// Config holds the parameters of one run.
type Config struct {
	// Prefix is joined with each worker id as "<Prefix>-<id>".
	Prefix string

	// Workers is the number of concurrent workers and barrier parties.
	Workers int

	// Cycles is the number of open/close cycles per worker.
	Cycles int

	// Extent is the number of bytes pre-allocated for each backing file.
	Extent int64

	// Layout is passed to every create and open.
	Layout string

	// Mode is passed to create.
	Mode os.FileMode

	// IDs selects the id scheme: "seq" or "pid".
	IDs string

	// Sweep destroys stale "<Prefix>-*" pools before the run.
	Sweep bool
}

// DefaultConfig returns the parameters used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Prefix:  DefaultPrefix(),
		Workers: DefaultWorkers,
		Cycles:  DefaultCycles,
		Extent:  DefaultExtent,
		Mode:    DefaultMode,
		IDs:     DefaultIDs,
	}
}

// Validate reports the first invalid field wrapped in [ErrInvalidConfig].
//
// Workers < 1 is left to [NewBarrier] so it surfaces as a fatal barrier
// init error at run time.
func (c *Config) Validate() error {
	switch {
	case c.Prefix == "":
		return fmt.Errorf("%w: prefix is required", ErrInvalidConfig)
	case strings.ContainsAny(filepath.Base(c.Prefix), "*?["):
		return fmt.Errorf("%w: prefix %q contains glob characters", ErrInvalidConfig, c.Prefix)
	case c.Cycles < 0:
		return fmt.Errorf("%w: cycles must be >= 0, got %d", ErrInvalidConfig, c.Cycles)
	case c.Extent < pmpool.MinPoolSize:
		return fmt.Errorf("%w: extent must be >= %d (minimum pool size), got %d", ErrInvalidConfig, pmpool.MinPoolSize, c.Extent)
	case len(c.Layout) >= pmpool.MaxLayoutLen:
		return fmt.Errorf("%w: layout must be shorter than %d bytes", ErrInvalidConfig, pmpool.MaxLayoutLen)
	case c.Mode&^os.ModePerm != 0:
		return fmt.Errorf("%w: mode %#o has non-permission bits", ErrInvalidConfig, uint32(c.Mode))
	}

	if _, ok := NewIDSource(c.IDs); !ok {
		return fmt.Errorf("%w: unknown id scheme %q (want seq or pid)", ErrInvalidConfig, c.IDs)
	}

	return nil
}
