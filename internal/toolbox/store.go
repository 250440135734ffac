// Package toolbox persists, loads and hot-registers dynamic tool modules.
package toolbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

const (
	manifestFile  = "tool.yaml"
	dataDirName   = "data"
	stagingPrefix = ".staging-"
)

var (
	// ErrModuleExists is returned by Save when the module directory is taken.
	ErrModuleExists = errors.New("tool module already exists")
	// ErrInvalidModule marks a module directory that cannot be loaded.
	ErrInvalidModule = errors.New("invalid tool module")
)

var moduleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

// Runtime is the interpreter family of a dynamic tool.
type Runtime string

const (
	RuntimePython     Runtime = "python"
	RuntimeJavaScript Runtime = "javascript"
)

// Entrypoint is the source file name used for the runtime.
func (r Runtime) Entrypoint() string {
	switch r {
	case RuntimePython:
		return "main.py"
	case RuntimeJavaScript:
		return "main.js"
	}
	return ""
}

// Manifest is the on-disk description of a module (tool.yaml).
type Manifest struct {
	Name           string         `yaml:"name"`
	Description    string         `yaml:"description"`
	Runtime        Runtime        `yaml:"runtime"`
	Entrypoint     string         `yaml:"entrypoint"`
	TimeoutSeconds int            `yaml:"timeout_seconds,omitempty"`
	CreatedAt      time.Time      `yaml:"created_at"`
	Parameters     []schema.Param `yaml:"parameters"`
}

// Module is a manifest plus its source code.
type Module struct {
	Manifest Manifest
	Source   string
}

// ValidModuleName reports whether name can be used as a module directory.
func ValidModuleName(name string) bool {
	return moduleNamePattern.MatchString(name)
}

// Store lays modules out as <dir>/<name>/{tool.yaml,main.*,data/}.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("dynamic tool dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure dynamic tool dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// ModuleDir is the directory a tool named name lives in.
func (s *Store) ModuleDir(name string) string {
	return filepath.Join(s.dir, strings.ToLower(strings.TrimSpace(name)))
}

// Save writes m into a staging directory and renames it into place.
// A module that already exists is never overwritten.
func (s *Store) Save(m Module) (string, error) {
	name := m.Manifest.Name
	if !ValidModuleName(name) {
		return "", fmt.Errorf("%w: bad name %q", ErrInvalidModule, name)
	}
	entry := m.Manifest.Runtime.Entrypoint()
	if entry == "" {
		return "", fmt.Errorf("%w: unsupported runtime %q", ErrInvalidModule, m.Manifest.Runtime)
	}
	m.Manifest.Entrypoint = entry

	target := s.ModuleDir(name)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("%w: %s", ErrModuleExists, name)
	}

	staging, err := os.MkdirTemp(s.dir, stagingPrefix+name+"-")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	data, err := yaml.Marshal(m.Manifest)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staging, manifestFile), data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staging, entry), []byte(m.Source), 0o644); err != nil {
		return "", fmt.Errorf("write source: %w", err)
	}
	if err := os.Mkdir(filepath.Join(staging, dataDirName), 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := os.Chmod(staging, 0o755); err != nil {
		return "", fmt.Errorf("chmod staging dir: %w", err)
	}

	if err := os.Rename(staging, target); err != nil {
		if _, statErr := os.Stat(target); statErr == nil {
			return "", fmt.Errorf("%w: %s", ErrModuleExists, name)
		}
		return "", fmt.Errorf("commit module %s: %w", name, err)
	}
	committed = true
	return target, nil
}

// Load reads and checks the module stored under name.
func (s *Store) Load(name string) (Module, error) {
	dir := s.ModuleDir(name)
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return Module{}, fmt.Errorf("%w: %s: %v", ErrInvalidModule, name, err)
	}

	var mf Manifest
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return Module{}, fmt.Errorf("%w: %s: parse manifest: %v", ErrInvalidModule, name, err)
	}
	if err := checkManifest(mf, filepath.Base(dir)); err != nil {
		return Module{}, fmt.Errorf("%w: %s: %v", ErrInvalidModule, name, err)
	}

	for i, p := range mf.Parameters {
		mf.Parameters[i].Default = normalizeDefault(p.Default)
	}

	src, err := os.ReadFile(filepath.Join(dir, mf.Entrypoint))
	if err != nil {
		return Module{}, fmt.Errorf("%w: %s: %v", ErrInvalidModule, name, err)
	}
	return Module{Manifest: mf, Source: string(src)}, nil
}

func checkManifest(mf Manifest, dirName string) error {
	if mf.Name != dirName {
		return fmt.Errorf("manifest name %q does not match directory %q", mf.Name, dirName)
	}
	if !ValidModuleName(mf.Name) {
		return fmt.Errorf("bad name %q", mf.Name)
	}
	if mf.Runtime.Entrypoint() == "" {
		return fmt.Errorf("unsupported runtime %q", mf.Runtime)
	}
	if mf.Entrypoint != mf.Runtime.Entrypoint() {
		return fmt.Errorf("entrypoint %q does not match runtime %q", mf.Entrypoint, mf.Runtime)
	}
	seen := make(map[string]bool, len(mf.Parameters))
	for _, p := range mf.Parameters {
		key := strings.ToLower(p.Name)
		if p.Name == "" || seen[key] {
			return fmt.Errorf("duplicate or empty parameter %q", p.Name)
		}
		seen[key] = true
		if !p.Type.Valid() {
			return fmt.Errorf("parameter %q has unsupported type %q", p.Name, p.Type)
		}
	}
	return nil
}

// normalizeDefault maps YAML integers onto the float64 that JSON decoding
// produces, so a reloaded descriptor equals the one that was saved.
func normalizeDefault(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	}
	return v
}

// Names lists the committed module directories, sorted.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read dynamic tool dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

// Exists reports whether a committed module directory exists for name.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.ModuleDir(name))
	return err == nil && info.IsDir()
}

// Remove deletes a module directory. Removing a missing module is not an error.
func (s *Store) Remove(name string) error {
	if err := os.RemoveAll(s.ModuleDir(name)); err != nil {
		return fmt.Errorf("remove module %s: %w", name, err)
	}
	return nil
}

// StagingDirs returns leftover staging directories with their modification time.
func (s *Store) StagingDirs() (map[string]time.Time, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time)
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), stagingPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out[filepath.Join(s.dir, e.Name())] = info.ModTime()
	}
	return out, nil
}
