package stress

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
)

// IDSource hands out worker identifiers. Every call to Next must return a
// value never returned before by the same source.
//
// Implementations must be safe for concurrent use.
type IDSource interface {
	Next() string
}

// Sequence returns "1", "2", "3", ... in call order.
type Sequence struct {
	n atomic.Uint64
}

// NewSequence returns a Sequence starting at 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next sequence number.
func (s *Sequence) Next() string {
	return strconv.FormatUint(s.n.Add(1), 10)
}

// ProcessScoped returns "<pid>.<n>", so harness processes running at the
// same time with the same prefix never share a pool path.
type ProcessScoped struct {
	pid string
	seq Sequence
}

// NewProcessScoped returns a ProcessScoped source for the current process.
func NewProcessScoped() *ProcessScoped {
	return &ProcessScoped{pid: strconv.Itoa(os.Getpid())}
}

// Next returns the next process-scoped identifier.
func (p *ProcessScoped) Next() string {
	return p.pid + "." + p.seq.Next()
}

// NewIDSource returns the source named by scheme: "seq" (or "") for
// [Sequence], "pid" for [ProcessScoped].
func NewIDSource(scheme string) (IDSource, bool) {
	switch scheme {
	case "", "seq":
		return NewSequence(), true
	case "pid":
		return NewProcessScoped(), true
	default:
		return nil, false
	}
}

// PoolPath returns the backing file path for a worker.
func PoolPath(prefix, id string) string {
	return prefix + "-" + id
}

// workerID matches the ids produced by [Sequence] and [ProcessScoped].
var workerID = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// IsPoolPath reports whether path is one [PoolPath] can return for prefix
// with a [Sequence] or [ProcessScoped] id.
func IsPoolPath(prefix, path string) bool {
	id, ok := strings.CutPrefix(path, prefix+"-")

	return ok && workerID.MatchString(id)
}
