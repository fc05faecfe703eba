// Package sandbox confines what analysis tooling may touch while a deep
// query runs: reads are allowed only under an explicit directory
// allow-list, writes are denied everywhere, and a module denylist blocks
// tooling that would open shell, network, or process capabilities.
//
// The policy is a plain capability object handed to the agent runtime.
// The primary threat is prompt injection inside transcript content
// steering generated analysis code at sensitive files (SSH keys, env
// files), so paths are fully resolved before any allow-list check.
package sandbox

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrWriteDenied is returned for every write, regardless of path.
	ErrWriteDenied = errors.New("write access is not allowed")
	// ErrOutsideAllowlist is returned for reads outside the allowed dirs.
	ErrOutsideAllowlist = errors.New("path is outside allowed directories")
	// ErrModuleBlocked is returned when analysis code asks for a
	// denylisted module.
	ErrModuleBlocked = errors.New("module is blocked")
)

// blockedModules are capabilities analysis code must never import:
// shell execution, raw networking, HTTP clients, process spawning, and
// the low-level escape hatches around a restricted file API.
var blockedModules = map[string]struct{}{
	"subprocess":       {},
	"socket":           {},
	"http":             {},
	"urllib":           {},
	"requests":         {},
	"ftplib":           {},
	"smtplib":          {},
	"xmlrpc":           {},
	"ctypes":           {},
	"multiprocessing":  {},
	"signal":           {},
	"webbrowser":       {},
	"importlib":        {},
	"posix":            {},
	"nt":               {},
	"posixpath":        {},
	"ntpath":           {},
	"_io":              {},
	"_posixsubprocess": {},
}

// Policy is the read-only filesystem capability for one deep query.
type Policy struct {
	allowedDirs []string
}

// NewPolicy resolves each allow-listed directory (symlinks and ".."
// normalized) up front. Directories that do not resolve are rejected so
// a policy never silently allows nothing.
func NewPolicy(allowedDirs ...string) (*Policy, error) {
	if len(allowedDirs) == 0 {
		return nil, errors.New("sandbox: at least one allowed directory required")
	}
	resolved := make([]string, 0, len(allowedDirs))
	for _, dir := range allowedDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve allowed dir %q: %w", dir, err)
		}
		real, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("resolve allowed dir %q: %w", dir, err)
		}
		resolved = append(resolved, real)
	}
	return &Policy{allowedDirs: resolved}, nil
}

// AllowedDirs returns the resolved allow-list.
func (p *Policy) AllowedDirs() []string {
	out := make([]string, len(p.allowedDirs))
	copy(out, p.allowedDirs)
	return out
}

// CheckRead resolves path and reports whether it falls under an allowed
// directory. Resolution happens before the prefix check so symlinks and
// ".." segments cannot escape the allow-list.
func (p *Policy) CheckRead(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", path, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// A nonexistent path cannot leak anything, but resolve as much
		// of it as exists so a symlinked parent is still caught.
		if errors.Is(err, fs.ErrNotExist) {
			real = resolveExistingPrefix(abs)
		} else {
			return fmt.Errorf("resolve %q: %w", path, err)
		}
	}
	for _, dir := range p.allowedDirs {
		if real == dir || strings.HasPrefix(real, dir+string(os.PathSeparator)) {
			return nil
		}
	}
	return fmt.Errorf("%q: %w", path, ErrOutsideAllowlist)
}

// resolveExistingPrefix resolves the longest existing ancestor of abs and
// re-joins the missing tail onto it.
func resolveExistingPrefix(abs string) string {
	dir := abs
	var tail []string
	for {
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				real = filepath.Join(real, tail[i])
			}
			return real
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs
		}
		tail = append(tail, filepath.Base(dir))
		dir = parent
	}
}

// Open opens a file for reading if it passes the allow-list check.
func (p *Policy) Open(path string) (io.ReadCloser, error) {
	if err := p.CheckRead(path); err != nil {
		return nil, err
	}
	return os.Open(path)
}

// ReadFile reads a whole file if it passes the allow-list check.
func (p *Policy) ReadFile(path string) ([]byte, error) {
	if err := p.CheckRead(path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// WriteFile always refuses. The signature exists so the policy can be
// handed out as a complete filesystem surface.
func (p *Policy) WriteFile(path string, _ []byte, _ os.FileMode) error {
	return fmt.Errorf("%q: %w", path, ErrWriteDenied)
}

// OpenWrite always refuses, including append and create modes.
func (p *Policy) OpenWrite(path string) (io.WriteCloser, error) {
	return nil, fmt.Errorf("%q: %w", path, ErrWriteDenied)
}

// CheckImport reports whether analysis code may import the named module.
// Only the top-level segment is consulted, so "http.client" is blocked
// along with "http".
func (p *Policy) CheckImport(module string) error {
	top := module
	if i := strings.IndexByte(module, '.'); i >= 0 {
		top = module[:i]
	}
	if _, blocked := blockedModules[top]; blocked {
		return fmt.Errorf("import of %q: %w", module, ErrModuleBlocked)
	}
	return nil
}

// Provisioner installs a policy into an agent runtime exactly once per
// process. Repeat calls with the same runtime are no-ops; this keeps
// engine construction idempotent.
type Provisioner struct {
	once    sync.Once
	applied bool
}

// Apply runs install under the once guard. The install callback receives
// the policy and wires it into whatever runtime hosts analysis code.
func (pr *Provisioner) Apply(policy *Policy, install func(*Policy)) {
	pr.once.Do(func() {
		install(policy)
		pr.applied = true
	})
}

// Applied reports whether the policy has been installed.
func (pr *Provisioner) Applied() bool {
	return pr.applied
}
