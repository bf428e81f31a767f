// Package checkpoint discovers versioned policy checkpoints on disk.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// DefaultPattern matches names such as policy_7.json, dt_v12.json or a bare
// timestep directory like 00042. The single capture group is the version.
const DefaultPattern = `^(?:.*[_-])?v?(\d+)(?:\.[A-Za-z0-9]+)?$`

var (
	// ErrNotFound indicates no entry in the directory carried a parseable version.
	ErrNotFound = errors.New("no checkpoint found")
)

// Locator identifies one checkpoint artifact. It is a value and is never mutated.
type Locator struct {
	Dir     string `json:"dir"`
	Name    string `json:"name"`
	Version uint64 `json:"version"`
}

// Path returns the artifact path.
func (l Locator) Path() string {
	return filepath.Join(l.Dir, l.Name)
}

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool {
	return l.Name == ""
}

func (l Locator) String() string {
	if l.IsZero() {
		return "<none>"
	}
	return fmt.Sprintf("%s@v%d", l.Path(), l.Version)
}

// Newer reports whether l ranks above other. Equal versions fall back to the
// lexicographically greater name.
func (l Locator) Newer(other Locator) bool {
	if l.Version != other.Version {
		return l.Version > other.Version
	}
	return l.Name > other.Name
}

// Resolver maps directory entries to versions.
type Resolver struct {
	pattern *regexp.Regexp
}

// NewResolver compiles pattern, which must contain exactly one capture group.
// An empty pattern selects DefaultPattern.
func NewResolver(pattern string) (*Resolver, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile checkpoint pattern: %w", err)
	}
	if re.NumSubexp() != 1 {
		return nil, fmt.Errorf("checkpoint pattern %q must have exactly one capture group, has %d", pattern, re.NumSubexp())
	}
	return &Resolver{pattern: re}, nil
}

// ParseVersion extracts the version from an artifact name. ok is false for
// names that do not match or whose version does not fit in a uint64.
func (r *Resolver) ParseVersion(name string) (uint64, bool) {
	m := r.pattern.FindStringSubmatch(name)
	if m == nil || m[1] == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Resolve returns the highest-version artifact in dir. Entries that do not
// parse are ignored; ErrNotFound is returned only when none parse. A missing
// directory is treated as empty.
func (r *Resolver) Resolve(dir string) (Locator, error) {
	entries, err := r.scan(dir)
	if err != nil {
		return Locator{}, err
	}
	var best Locator
	for _, loc := range entries {
		if best.IsZero() || loc.Newer(best) {
			best = loc
		}
	}
	if best.IsZero() {
		return Locator{}, fmt.Errorf("resolve %s: %w", dir, ErrNotFound)
	}
	return best, nil
}

// List returns every parseable artifact in dir ordered by version, then name.
func (r *Resolver) List(dir string) ([]Locator, error) {
	entries, err := r.scan(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[j].Newer(entries[i])
	})
	return entries, nil
}

// Locate builds a locator for an explicit artifact path.
func (r *Resolver) Locate(path string) Locator {
	dir, name := filepath.Split(filepath.Clean(path))
	version, _ := r.ParseVersion(name)
	return Locator{Dir: filepath.Clean(dir), Name: name, Version: version}
}

func (r *Resolver) scan(dir string) ([]Locator, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint dir %s: %w", dir, err)
	}
	out := make([]Locator, 0, len(entries))
	for _, entry := range entries {
		version, ok := r.ParseVersion(entry.Name())
		if !ok {
			continue
		}
		out = append(out, Locator{Dir: dir, Name: entry.Name(), Version: version})
	}
	return out, nil
}
