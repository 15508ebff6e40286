package runner

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Overlay is a set of environment changes applied to child processes.
//
// It is the scoped replacement for shell activation: the parent process
// environment is never modified, each child gets base + overlay.
type Overlay struct {
	set   map[string]string
	unset map[string]bool
}

// NewOverlay returns an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{set: map[string]string{}, unset: map[string]bool{}}
}

// Set assigns key=value in children. It cancels a previous Unset of key.
func (o *Overlay) Set(key, value string) *Overlay {
	delete(o.unset, key)
	o.set[key] = value
	return o
}

// Unset removes key from children. It cancels a previous Set of key.
func (o *Overlay) Unset(key string) *Overlay {
	delete(o.set, key)
	o.unset[key] = true
	return o
}

// Lookup reports the value the overlay assigns to key, if any.
func (o *Overlay) Lookup(key string) (string, bool) {
	if o == nil {
		return "", false
	}
	v, ok := o.set[key]
	return v, ok
}

// Unsets reports whether the overlay removes key.
func (o *Overlay) Unsets(key string) bool {
	return o != nil && o.unset[key]
}

// Apply returns base with the overlay applied. base is "KEY=VALUE"
// entries as returned by os.Environ. The result is deterministic: base order
// is kept for untouched keys and overlay keys are appended sorted.
func (o *Overlay) Apply(base []string) []string {
	if o == nil {
		return base
	}

	out := make([]string, 0, len(base)+len(o.set))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := o.set[key]; overridden || o.unset[key] {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(o.set))
	for k := range o.set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+o.set[k])
	}
	return out
}

// Keys returns the overlay's assigned keys in sorted order.
func (o *Overlay) Keys() []string {
	if o == nil {
		return nil
	}
	keys := make([]string, 0, len(o.set))
	for k := range o.set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LookPath resolves name to an executable path.
//
// Names containing a path separator are checked as given. Bare names are
// searched in the overlay's PATH when it sets one, which is what makes an
// activated environment's tools win over the system ones. Otherwise the
// process PATH is used.
func LookPath(name string, env *Overlay) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		return exec.LookPath(name)
	}

	if path, ok := env.Lookup("PATH"); ok {
		for _, dir := range filepath.SplitList(path) {
			if dir == "" {
				continue
			}
			candidate := filepath.Join(dir, name)
			if isExecutable(candidate) {
				return candidate, nil
			}
		}
	}

	return exec.LookPath(name)
}

// isExecutable reports whether path is a regular file with an execute bit.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
