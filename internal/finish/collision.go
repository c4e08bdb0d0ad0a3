package finish

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MeKo-Tech/docsplit/internal/export"
)

// CollisionPolicy decides what happens when the resolved filename already
// exists in the destination.
type CollisionPolicy string

const (
	// CollisionRename appends an increasing sequence number.
	CollisionRename CollisionPolicy = "rename"
	// CollisionOverwrite replaces the existing artifact.
	CollisionOverwrite CollisionPolicy = "overwrite"
	// CollisionFail rejects the document.
	CollisionFail CollisionPolicy = "fail"
)

// ParseCollisionPolicy normalizes a policy name from configuration.
func ParseCollisionPolicy(name string) (CollisionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "rename":
		return CollisionRename, nil
	case "overwrite":
		return CollisionOverwrite, nil
	case "fail":
		return CollisionFail, nil
	default:
		return "", fmt.Errorf("unknown collision policy: %q", name)
	}
}

// Allocator serializes filename allocation within shared destination
// directories so concurrently finished documents cannot claim the same
// path.
type Allocator struct {
	mu       sync.Mutex
	reserved map[string]bool // base paths handed out this process
}

// NewAllocator creates an empty allocator.
func NewAllocator() *Allocator {
	return &Allocator{reserved: make(map[string]bool)}
}

// Reserve returns a unique base path (destination joined with name, no
// extension) for the given format, applying the collision policy against
// both the filesystem and paths already handed out.
func (a *Allocator) Reserve(dir, name string, format export.Format, policy CollisionPolicy) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	base := filepath.Join(dir, name)
	if !a.taken(base, format) {
		a.reserved[base] = true
		return base, nil
	}

	switch policy {
	case CollisionOverwrite:
		a.reserved[base] = true
		return base, nil
	case CollisionFail:
		return "", fmt.Errorf("artifact already exists: %s%s", base, format.Ext())
	default: // rename
		for seq := 1; ; seq++ {
			candidate := fmt.Sprintf("%s-%03d", base, seq)
			if !a.taken(candidate, format) {
				a.reserved[candidate] = true
				return candidate, nil
			}
		}
	}
}

// taken reports whether the base path collides with a prior reservation or
// an existing file. Per-page formats are checked via their first page.
func (a *Allocator) taken(base string, format export.Format) bool {
	if a.reserved[base] {
		return true
	}
	candidates := []string{base + format.Ext()}
	if !format.MultiPage() {
		candidates = append(candidates, fmt.Sprintf("%s-001%s", base, format.Ext()))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return true
		}
	}
	return false
}
