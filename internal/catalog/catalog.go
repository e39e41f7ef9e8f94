// Package catalog holds the in-memory snapshot of program definitions
// and global settings parsed from the catalog file. Lookups are
// served from an immutable snapshot; Reload swaps the snapshot
// atomically so in-flight executions keep the snapshot they resolved
// against.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Kind tags a program as informational only; it never changes how a
// program is resolved or run.
type Kind string

const (
	KindScript Kind = "script"
	KindBot    Kind = "bot"
)

const (
	defaultTimeoutSeconds = 300
	defaultMaxConcurrency = 5
	defaultMainFile       = "main.py"
)

// FallbackMainFiles is the search order applied when a program's
// declared main_file is absent from its directory, per P4.
var FallbackMainFiles = []string{"main.py", "run.py", "app.py", "index.py"}

// ErrNotFound is returned by Lookup when no program with the given id
// exists in the current snapshot.
var ErrNotFound = errors.New("catalog: program not found")

// Program is one catalog entry. Values are immutable for the lifetime
// of the snapshot that produced them.
type Program struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Path        string `yaml:"path"`
	MainFile    string `yaml:"main_file"`
	Enabled     bool   `yaml:"enabled"`
	Image       string `yaml:"image"`
	Parameters  string `yaml:"parameters"`
	ComposePath string `yaml:"compose_path"`
	Kind        Kind   `yaml:"-"`
}

// IsCompose reports whether this program runs in compose mode, in
// which case Image and MainFile are ignored.
func (p Program) IsCompose() bool {
	return p.ComposePath != ""
}

// Settings are the catalog-wide defaults and policy knobs.
type Settings struct {
	DefaultImage            string `yaml:"docker_image"`
	TimeoutSeconds          int    `yaml:"timeout_seconds"`
	MaxConcurrentExecutions int    `yaml:"max_concurrent_executions"`
	MemoryLimit             string `yaml:"memory_limit"`
	CPULimit                string `yaml:"cpu_limit"`
}

// fileSchema mirrors the on-disk catalog file: two program
// collections and a shared settings block.
type fileSchema struct {
	Scripts  []Program `yaml:"scripts"`
	Bots     []Program `yaml:"bots"`
	Settings Settings  `yaml:"settings"`
}

// snapshot is one immutable view of the catalog. A Catalog always
// points at exactly one snapshot at a time; Reload swaps the pointer.
type snapshot struct {
	programs map[string]Program
	ordered  []Program
	settings Settings
}

// Catalog is the process-wide, reloadable view of the program catalog.
type Catalog struct {
	mu   sync.RWMutex
	snap *snapshot
	path string
}

// Load reads and parses the catalog file at path, returning a ready
// Catalog positioned at the first snapshot.
func Load(path string) (*Catalog, error) {
	snap, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	return &Catalog{snap: snap, path: path}, nil
}

// Reload re-reads the catalog file and atomically replaces the
// current snapshot. In-flight executions that already resolved a
// program against the prior snapshot are unaffected (P7) because they
// hold a copy of the Program value, not a pointer into the snapshot.
func (c *Catalog) Reload() error {
	snap, err := parseFile(c.path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	return nil
}

// Lookup resolves a program by id against the current snapshot.
func (c *Catalog) Lookup(id string) (Program, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.snap.programs[id]
	if !ok {
		return Program{}, ErrNotFound
	}
	return p, nil
}

// Settings returns the settings block of the current snapshot.
func (c *Catalog) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.settings
}

// AllPrograms returns every program in the current snapshot, in
// declaration order (scripts, then bots).
func (c *Catalog) AllPrograms() []Program {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Program, len(c.snap.ordered))
	copy(out, c.snap.ordered)
	return out
}

// Path returns the catalog file path this Catalog was loaded from,
// for the fsnotify watcher to observe.
func (c *Catalog) Path() string {
	return c.path
}

func parseFile(path string) (*snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}

	var file fileSchema
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}

	settings := file.Settings
	if settings.TimeoutSeconds == 0 {
		settings.TimeoutSeconds = defaultTimeoutSeconds
	}
	if settings.MaxConcurrentExecutions == 0 {
		settings.MaxConcurrentExecutions = defaultMaxConcurrency
	}

	programs := make(map[string]Program, len(file.Scripts)+len(file.Bots))
	ordered := make([]Program, 0, len(file.Scripts)+len(file.Bots))

	add := func(p Program, kind Kind) error {
		if p.ID == "" {
			return fmt.Errorf("catalog: %s entry missing id", kind)
		}
		if _, exists := programs[p.ID]; exists {
			return fmt.Errorf("catalog: duplicate program id %q", p.ID)
		}
		if p.MainFile == "" {
			p.MainFile = defaultMainFile
		}
		p.Kind = kind
		programs[p.ID] = p
		ordered = append(ordered, p)
		return nil
	}

	for _, p := range file.Scripts {
		if err := add(p, KindScript); err != nil {
			return nil, err
		}
	}
	for _, p := range file.Bots {
		if err := add(p, KindBot); err != nil {
			return nil, err
		}
	}

	return &snapshot{programs: programs, ordered: ordered, settings: settings}, nil
}
