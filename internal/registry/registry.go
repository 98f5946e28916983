// Package registry resolves and validates script identities under a root
// directory: the only gate between a user-supplied string and exec.
package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ignoredSegments = map[string]struct{}{
	"__pycache__":  {},
	".git":         {},
	".venv":        {},
	"venv":         {},
	"env":          {},
	"node_modules": {},
}

const scriptExt = ".py"

// ScriptInfo describes one discovered script. Identity is Path.
type ScriptInfo struct {
	Path         string  `json:"path"` // POSIX-style, relative to the scripts root
	AbsolutePath string  `json:"absolute_path"`
	SizeBytes    int64   `json:"size_bytes"`
	Mtime        float64 `json:"mtime"` // unix seconds, fractional
}

// ErrKind distinguishes the validation failures resolve can produce, so
// callers can map them to the right HTTP status.
type ErrKind int

const (
	ErrNotUnderRoot ErrKind = iota
	ErrWrongExtension
	ErrNotFound
)

// ResolveError is returned by Resolve; Kind selects the HTTP status.
type ResolveError struct {
	Kind ErrKind
	Msg  string
}

func (e *ResolveError) Error() string { return e.Msg }

// Registry scans and resolves scripts under a fixed root directory.
type Registry struct {
	root string
}

// New returns a Registry rooted at root. root is resolved (symlinks,
// home expansion) once at construction.
func New(root string) (*Registry, error) {
	resolved, err := canonicalize(root)
	if err != nil {
		return nil, fmt.Errorf("resolve scripts root: %w", err)
	}
	return &Registry{root: resolved}, nil
}

// Root returns the canonicalized scripts root.
func (r *Registry) Root() string { return r.root }

// Scan walks the root recursively, yielding files ending in .py, excluding
// ignored directory segments, dot-prefixed segments, and underscore-prefixed
// basenames. Output is sorted by relative path.
func (r *Registry) Scan() ([]ScriptInfo, error) {
	info, err := os.Stat(r.root)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var out []ScriptInfo
	err = filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) != scriptExt {
			return nil
		}
		rel, err := filepath.Rel(r.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if shouldIgnore(rel) {
			return nil
		}
		if strings.HasPrefix(d.Name(), "_") {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, ScriptInfo{
			Path:         rel,
			AbsolutePath: path,
			SizeBytes:    fi.Size(),
			Mtime:        float64(fi.ModTime().UnixNano()) / 1e9,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func shouldIgnore(relPath string) bool {
	for _, part := range strings.Split(relPath, "/") {
		if part == "" {
			continue
		}
		if _, ok := ignoredSegments[part]; ok {
			return true
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// Resolve produces the absolute path for a requested script, rejecting any
// attempt to escape the root via "..", absolute paths, or symlinks.
func (r *Registry) Resolve(requested string) (string, error) {
	candidate := filepath.Join(r.root, requested)
	resolvedCandidate, err := canonicalize(candidate)
	if err != nil {
		return "", &ResolveError{Kind: ErrNotFound, Msg: "script not found"}
	}

	if !underRoot(resolvedCandidate, r.root) {
		return "", &ResolveError{Kind: ErrNotUnderRoot, Msg: "script_path must be under scripts_root"}
	}
	if strings.ToLower(filepath.Ext(resolvedCandidate)) != scriptExt {
		return "", &ResolveError{Kind: ErrWrongExtension, Msg: "script_path must point to a .py file"}
	}

	fi, err := os.Stat(resolvedCandidate)
	if err != nil {
		return "", &ResolveError{Kind: ErrNotFound, Msg: "script not found"}
	}
	if !fi.Mode().IsRegular() {
		return "", &ResolveError{Kind: ErrNotFound, Msg: "not a file"}
	}

	return resolvedCandidate, nil
}

// UnderRoot reports whether a caller-supplied path (e.g. an optional cwd
// override), once canonicalized, lies under the registry root.
func (r *Registry) UnderRoot(path string) bool {
	resolved, err := canonicalize(path)
	if err != nil {
		return false
	}
	return underRoot(resolved, r.root)
}

func underRoot(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

// canonicalize expands "~" and resolves symlinks; if the path does not
// exist, it returns the absolute path with no symlinks resolved.
func canonicalize(path string) (string, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return abs, nil
		}
		return "", err
	}
	return resolved, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
