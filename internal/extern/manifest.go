// Package extern embeds external components (independently versioned git
// repositories) inside the project by reference.
//
// The project records only a pointer per component in externals.yaml: the
// directory it occupies, where to fetch it from and the exact commit it is
// pinned to. Materializing the files is a separate, explicit step (Init then
// Update), and commits made inside a component directory belong to the
// component's own repository; the project sees them only as a moved HEAD
// until Pin records the new revision.
package extern

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the pointer record file at the project root.
const ManifestFile = "externals.yaml"

var (
	ErrNotFound       = errors.New("external component not found")
	ErrExists         = errors.New("external component already exists")
	ErrInvalidPointer = errors.New("invalid external component pointer")
	ErrNotCheckedOut  = errors.New("external component is not checked out")
	ErrDirty          = errors.New("external component has local changes")
)

var revisionRe = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Pointer references one revision of an external repository.
type Pointer struct {
	Path     string `yaml:"-"`
	URL      string `yaml:"url"`
	Revision string `yaml:"revision"`
	// Branch is followed by "update --remote"; empty for detached pins.
	Branch string `yaml:"branch,omitempty"`
}

// Manifest is the decoded externals.yaml.
type Manifest struct {
	Externals map[string]Pointer `yaml:"externals"`
}

// LoadManifest reads root/externals.yaml. A missing file is an empty manifest.
func LoadManifest(root string) (*Manifest, error) {
	m := &Manifest{Externals: map[string]Pointer{}}

	data, err := os.ReadFile(filepath.Join(root, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ManifestFile, err)
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestFile, err)
	}
	if m.Externals == nil {
		m.Externals = map[string]Pointer{}
	}
	for p, ptr := range m.Externals {
		ptr.Path = p
		m.Externals[p] = ptr
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", ManifestFile, err)
	}
	return m, nil
}

// Save writes the manifest to root/externals.yaml, keys sorted.
func (m *Manifest) Save(root string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", ManifestFile, err)
	}

	target := filepath.Join(root, ManifestFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", ManifestFile, err)
	}
	return os.Rename(tmp, target)
}

// Get returns the pointer registered at p.
func (m *Manifest) Get(p string) (Pointer, error) {
	ptr, ok := m.Externals[p]
	if !ok {
		return Pointer{}, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return ptr, nil
}

// Set adds or replaces the pointer at ptr.Path.
func (m *Manifest) Set(ptr Pointer) {
	m.Externals[ptr.Path] = ptr
}

// Pointers returns every pointer ordered by path.
func (m *Manifest) Pointers() []Pointer {
	out := make([]Pointer, 0, len(m.Externals))
	for _, ptr := range m.Externals {
		out = append(out, ptr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Select returns the pointers named by paths, or all of them when paths is
// empty. Paths are cleaned first so "./a/b/" selects "a/b".
func (m *Manifest) Select(paths ...string) ([]Pointer, error) {
	if len(paths) == 0 {
		return m.Pointers(), nil
	}
	out := make([]Pointer, 0, len(paths))
	seen := map[string]bool{}
	for _, p := range paths {
		ptr, err := m.Get(CleanPath(p))
		if err != nil {
			return nil, err
		}
		if !seen[ptr.Path] {
			seen[ptr.Path] = true
			out = append(out, ptr)
		}
	}
	return out, nil
}

// Validate checks every pointer and that no pointer nests inside another.
func (m *Manifest) Validate() error {
	ptrs := m.Pointers()
	for i, ptr := range ptrs {
		if err := ptr.Validate(); err != nil {
			return err
		}
		for _, other := range ptrs[i+1:] {
			if strings.HasPrefix(other.Path, ptr.Path+"/") {
				return fmt.Errorf("%w: %s is nested inside %s", ErrInvalidPointer, other.Path, ptr.Path)
			}
		}
	}
	return nil
}

// Validate checks a single pointer.
func (p Pointer) Validate() error {
	if err := ValidatePath(p.Path); err != nil {
		return err
	}
	if err := ValidateURL(p.URL); err != nil {
		return fmt.Errorf("%s: %w", p.Path, err)
	}
	if !revisionRe.MatchString(p.Revision) {
		return fmt.Errorf("%w: %s: revision %q is not a full commit hash", ErrInvalidPointer, p.Path, p.Revision)
	}
	return nil
}

// CleanPath normalizes a user-supplied pointer path to slash form.
func CleanPath(p string) string {
	return path.Clean(filepath.ToSlash(strings.TrimSpace(p)))
}

// ValidatePath accepts relative, clean, slash-separated paths that stay
// inside the project and do not touch dot-directories.
func ValidatePath(p string) error {
	switch {
	case p == "" || p == ".":
		return fmt.Errorf("%w: empty path", ErrInvalidPointer)
	case strings.HasPrefix(p, "/") || filepath.IsAbs(p):
		return fmt.Errorf("%w: path %q must be relative", ErrInvalidPointer, p)
	case strings.Contains(p, `\`):
		return fmt.Errorf("%w: path %q must use forward slashes", ErrInvalidPointer, p)
	case path.Clean(p) != p:
		return fmt.Errorf("%w: path %q is not clean", ErrInvalidPointer, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." || strings.HasPrefix(seg, ".") {
			return fmt.Errorf("%w: path %q may not contain %q", ErrInvalidPointer, p, seg)
		}
	}
	return nil
}

// ValidateURL rejects empty or whitespace-bearing source locations.
func ValidateURL(u string) error {
	if u == "" {
		return fmt.Errorf("%w: empty url", ErrInvalidPointer)
	}
	if strings.ContainsAny(u, " \t\r\n") {
		return fmt.Errorf("%w: url %q contains whitespace", ErrInvalidPointer, u)
	}
	return nil
}
