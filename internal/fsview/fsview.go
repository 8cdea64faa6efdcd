// Package fsview lists and reads files under one root directory for room
// participants. Paths are handed out relative to the root ("/src/app.ts")
// so they can be checked against a room's visibility rules unchanged.
package fsview

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"saturuang/internal/collab/model"
	"saturuang/internal/collab/policy"
)

// MaxReadBytes is the largest file Read returns.
const MaxReadBytes = 2_000_000

var (
	ErrMissingPath = errors.New("missing path")
	ErrOutsideRoot = errors.New("path outside allowed root")
	ErrNotExist    = errors.New("path does not exist")
	ErrNotDir      = errors.New("path is not a directory")
	ErrNotFile     = errors.New("not a file")
	ErrTooLarge    = errors.New("file too large")
)

// DeniedError is returned when the room's visibility rules refuse a path.
type DeniedError struct {
	Path   string
	Reason model.AccessReason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Gate decides whether the caller may see a root-relative path.
type Gate func(path string) model.PathAccess

// Open lets everything through. It is what the host gets.
func Open(string) model.PathAccess { return model.PathAccess{OK: true} }

type EntryType string

const (
	TypeDir  EntryType = "dir"
	TypeFile EntryType = "file"
)

type Entry struct {
	Name string    `json:"name"`
	Path string    `json:"path"`
	Type EntryType `json:"type"`
}

type Listing struct {
	Path    string  `json:"path"`
	Entries []Entry `json:"entries"`
}

type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type Browser struct {
	root string
}

// New serves the directory root. Symlinks in root itself are resolved
// once; links below it are followed only while they stay inside.
func New(root string) (*Browser, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, ErrNotDir)
	}
	return &Browser{root: abs}, nil
}

func (b *Browser) Root() string { return b.root }

// resolve maps a request path onto the disk. Relative paths and paths
// with a leading slash are both taken from the root; absolute host paths
// are accepted when they point inside it. The second result is the
// root-relative form the gate sees.
func (b *Browser) resolve(p string) (string, string, error) {
	p = policy.NormalizePath(p)

	var target string
	switch {
	case p == "" || p == "/":
		target = b.root
	case filepath.IsAbs(filepath.FromSlash(p)) && within(b.root, filepath.Clean(filepath.FromSlash(p))):
		target = filepath.Clean(filepath.FromSlash(p))
	default:
		target = filepath.Join(b.root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
	}
	if !within(b.root, target) {
		return "", "", ErrOutsideRoot
	}

	resolved, err := filepath.EvalSymlinks(target)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", "", ErrNotExist
	case err != nil:
		return "", "", err
	case !within(b.root, resolved):
		return "", "", ErrOutsideRoot
	}
	return resolved, b.relative(target), nil
}

func (b *Browser) relative(abs string) string {
	rel, err := filepath.Rel(b.root, abs)
	if err != nil || rel == "." {
		return "/"
	}
	return "/" + filepath.ToSlash(rel)
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func check(gate Gate, path string) error {
	if gate == nil {
		gate = Open
	}
	if access := gate(path); !access.OK {
		return &DeniedError{Path: path, Reason: access.Reason}
	}
	return nil
}

// List returns the directory at p. Entries the gate refuses are left out
// of the listing.
func (b *Browser) List(p string, gate Gate) (Listing, error) {
	dir, rel, err := b.resolve(p)
	if err != nil {
		return Listing{}, err
	}
	if err := check(gate, rel); err != nil {
		return Listing{}, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return Listing{}, err
	}
	if !info.IsDir() {
		return Listing{}, ErrNotDir
	}

	children, err := os.ReadDir(dir)
	if err != nil {
		return Listing{}, err
	}
	out := Listing{Path: rel, Entries: make([]Entry, 0, len(children))}
	for _, child := range children {
		childPath := strings.TrimSuffix(rel, "/") + "/" + child.Name()
		if check(gate, childPath) != nil {
			continue
		}
		typ := TypeFile
		if child.IsDir() {
			typ = TypeDir
		} else if child.Type()&os.ModeSymlink != 0 {
			if st, err := os.Stat(filepath.Join(dir, child.Name())); err == nil && st.IsDir() {
				typ = TypeDir
			}
		}
		out.Entries = append(out.Entries, Entry{Name: child.Name(), Path: childPath, Type: typ})
	}
	return out, nil
}

// Read returns the text of the file at p. Invalid UTF-8 is replaced.
func (b *Browser) Read(p string, gate Gate) (File, error) {
	if strings.TrimSpace(p) == "" {
		return File{}, ErrMissingPath
	}
	name, rel, err := b.resolve(p)
	if err != nil {
		return File{}, err
	}
	if err := check(gate, rel); err != nil {
		return File{}, err
	}
	info, err := os.Stat(name)
	if err != nil {
		return File{}, err
	}
	if !info.Mode().IsRegular() {
		return File{}, ErrNotFile
	}
	if info.Size() > MaxReadBytes {
		return File{}, ErrTooLarge
	}

	f, err := os.Open(name)
	if err != nil {
		return File{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxReadBytes+1))
	if err != nil {
		return File{}, err
	}
	if len(data) > MaxReadBytes {
		return File{}, ErrTooLarge
	}
	return File{Path: rel, Content: strings.ToValidUTF8(string(data), "\uFFFD")}, nil
}
