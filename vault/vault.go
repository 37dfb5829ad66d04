// Package vault abstracts the host note store: reading note text, writing
// binary attachments, and resolving files. The orchestrator only sees the
// Vault interface; FSVault is the filesystem-backed implementation used by
// the CLI and by tests.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Vault is the capability interface the generation pipeline needs from
// the host note store.
type Vault interface {
	// ReadNote returns the full text of a note.
	ReadNote(path string) (string, error)

	// WriteNote replaces the full text of a note.
	WriteNote(path string, content string) error

	// WriteBinary writes an attachment, failing if the file already
	// exists. Returns the path actually written.
	WriteBinary(path string, data []byte) (string, error)

	// Exists reports whether a file resolves inside the vault.
	Exists(path string) bool

	// EnsureFolder creates a folder (and parents) if missing.
	EnsureFolder(path string) error
}

// FSVault implements Vault on the local filesystem, with all paths
// interpreted relative to a root directory. Paths escaping the root are
// rejected.
type FSVault struct {
	root string
}

// NewFSVault creates a vault rooted at dir.
func NewFSVault(dir string) (*FSVault, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("vault: cannot resolve root %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault: root %s is not a directory", abs)
	}
	return &FSVault{root: abs}, nil
}

// Root returns the vault's absolute root directory.
func (v *FSVault) Root() string {
	return v.root
}

// resolve joins a vault-relative path onto the root and rejects escapes.
func (v *FSVault) resolve(path string) (string, error) {
	full := filepath.Join(v.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(v.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("vault: path %s escapes the vault root", path)
	}
	return full, nil
}

func (v *FSVault) ReadNote(path string) (string, error) {
	full, err := v.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("vault: cannot read note %s: %w", path, err)
	}
	return string(data), nil
}

func (v *FSVault) WriteNote(path string, content string) error {
	full, err := v.resolve(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("vault: cannot write note %s: %w", path, err)
	}
	return nil
}

func (v *FSVault) WriteBinary(path string, data []byte) (string, error) {
	full, err := v.resolve(path)
	if err != nil {
		return "", err
	}
	// O_EXCL guarantees we never clobber an existing unrelated file.
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("vault: cannot create attachment %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("vault: cannot write attachment %s: %w", path, err)
	}
	return path, nil
}

func (v *FSVault) Exists(path string) bool {
	full, err := v.resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}

func (v *FSVault) EnsureFolder(path string) error {
	full, err := v.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return fmt.Errorf("vault: cannot create folder %s: %w", path, err)
	}
	return nil
}

var _ Vault = (*FSVault)(nil)
