package solver

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Workspace is the private directory where one simulation exchanges files
// with the solver. Concurrent simulations must use distinct workspaces.
type Workspace struct {
	dir  string
	keep bool
}

// NewWorkspace creates a fresh directory under base (the system temporary
// directory when empty) and copies the regular files of modelDir into it.
func NewWorkspace(base, modelDir string) (*Workspace, error) {
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return nil, fmt.Errorf("workspace base: %w", err)
		}
	}
	dir, err := os.MkdirTemp(base, "flexmarket-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	ws := &Workspace{dir: dir}
	if modelDir != "" {
		if err := ws.CopyDir(modelDir); err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
	}
	return ws, nil
}

// OpenWorkspace uses an existing directory. The directory is never removed.
func OpenWorkspace(dir string) (*Workspace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	return &Workspace{dir: dir, keep: true}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// Path joins name to the workspace directory.
func (w *Workspace) Path(name string) string { return filepath.Join(w.dir, name) }

// Keep prevents Close from removing the directory.
func (w *Workspace) Keep() { w.keep = true }

// Write stores inputs in the workspace, replacing existing files.
func (w *Workspace) Write(inputs ...Input) error {
	for _, in := range inputs {
		if err := os.WriteFile(w.Path(in.Name), in.Content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", in.Name, err)
		}
	}
	return nil
}

// ReadFile reads a file of the workspace.
func (w *Workspace) ReadFile(name string) ([]byte, error) { return os.ReadFile(w.Path(name)) }

// Exists reports whether name exists in the workspace.
func (w *Workspace) Exists(name string) bool {
	_, err := os.Stat(w.Path(name))
	return err == nil
}

// Remove deletes name from the workspace if present.
func (w *Workspace) Remove(name string) error {
	err := os.Remove(w.Path(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CopyFile copies src into the workspace under name.
func (w *Workspace) CopyFile(src, name string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(w.Path(name))
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// CopyDir copies the regular files found directly in dir.
func (w *Workspace) CopyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read model dir: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() && e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		if err := w.CopyFile(filepath.Join(dir, e.Name()), e.Name()); err != nil {
			return err
		}
	}
	return nil
}

// Close removes the workspace unless it was kept.
func (w *Workspace) Close() error {
	if w.keep {
		return nil
	}
	return os.RemoveAll(w.dir)
}
