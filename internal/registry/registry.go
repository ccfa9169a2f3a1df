// Package registry stores automation configs as markdown files with YAML
// frontmatter, one file per automation. The frontmatter carries identity,
// schedule and policy; the markdown body is the prompt. Files are the source
// of truth and may be edited out from under us.
package registry

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentdeck/autopilot/internal/domain"
)

// frontmatter is the on-disk YAML header of an automation file
type frontmatter struct {
	Name       string                 `yaml:"name"`
	Status     string                 `yaml:"status,omitempty"`
	Schedule   domain.Schedule        `yaml:"schedule"`
	Workspaces []string               `yaml:"workspaces,omitempty"`
	Policy     domain.ExecutionPolicy `yaml:"policy,omitempty"`
	CreatedAt  time.Time              `yaml:"created_at,omitempty"`
	UpdatedAt  time.Time              `yaml:"updated_at,omitempty"`
}

// Registry reads and writes automation files under a single directory
type Registry struct {
	dir string
	now func() time.Time
}

// New creates a registry rooted at dir, creating it if needed
func New(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating registry dir: %w", err)
	}
	return &Registry{dir: dir, now: time.Now}, nil
}

// Dir returns the registry's root directory
func (r *Registry) Dir() string { return r.dir }

// Path returns the file path for an automation id
func (r *Registry) Path(id string) string {
	return filepath.Join(r.dir, id+".md")
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a filesystem-safe automation id from a display name
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugStrip.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "automation"
	}
	return s
}

// Create writes a new automation file. The id is derived from the name; a
// numeric suffix resolves collisions with existing files.
func (r *Registry) Create(auto *domain.Automation) error {
	if auto.Name == "" {
		return fmt.Errorf("automation needs a name")
	}
	if auto.ID == "" {
		auto.ID = r.uniqueID(Slug(auto.Name))
	}
	if auto.Status == "" {
		auto.Status = domain.AutomationActive
	}
	now := r.now()
	auto.CreatedAt = now
	auto.UpdatedAt = now

	if _, err := os.Stat(r.Path(auto.ID)); err == nil {
		return fmt.Errorf("automation %s already exists", auto.ID)
	}
	return r.write(auto)
}

func (r *Registry) uniqueID(base string) string {
	id := base
	for n := 2; ; n++ {
		if _, err := os.Stat(r.Path(id)); os.IsNotExist(err) {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// Update rewrites an existing automation file
func (r *Registry) Update(auto *domain.Automation) error {
	if _, err := os.Stat(r.Path(auto.ID)); err != nil {
		return fmt.Errorf("automation %s: %w", auto.ID, err)
	}
	auto.UpdatedAt = r.now()
	return r.write(auto)
}

// write renders and atomically replaces the automation file. Writers go
// through a temp file plus rename so the watcher and concurrent readers
// never observe a half-written config.
func (r *Registry) write(auto *domain.Automation) error {
	fm := frontmatter{
		Name:       auto.Name,
		Status:     string(auto.Status),
		Schedule:   auto.Schedule,
		Workspaces: auto.Workspaces,
		Policy:     auto.Policy,
		CreatedAt:  auto.CreatedAt,
		UpdatedAt:  auto.UpdatedAt,
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&fm); err != nil {
		return fmt.Errorf("encoding frontmatter: %w", err)
	}
	enc.Close()
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimRight(auto.Prompt, "\n"))
	buf.WriteString("\n")

	tmp, err := os.CreateTemp(r.dir, "."+auto.ID+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), r.Path(auto.ID))
}

// Get loads one automation by id
func (r *Registry) Get(id string) (*domain.Automation, error) {
	return r.load(r.Path(id))
}

func (r *Registry) load(path string) (*domain.Automation, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fm, body, err := parseFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	id := strings.TrimSuffix(filepath.Base(path), ".md")
	auto := &domain.Automation{
		ID:         id,
		Name:       fm.Name,
		Prompt:     strings.TrimSpace(string(body)),
		Status:     domain.AutomationStatus(fm.Status),
		Schedule:   fm.Schedule,
		Workspaces: fm.Workspaces,
		Policy:     fm.Policy,
		CreatedAt:  fm.CreatedAt,
		UpdatedAt:  fm.UpdatedAt,
	}
	if auto.Name == "" {
		auto.Name = id
	}
	if auto.Status == "" {
		auto.Status = domain.AutomationActive
	}
	return auto, nil
}

// parseFrontmatter splits a "---" delimited YAML header from the body
func parseFrontmatter(content []byte) (*frontmatter, []byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return nil, nil, fmt.Errorf("missing frontmatter")
	}

	rest := content[4:]
	endIdx := bytes.Index(rest, []byte("\n---"))
	if endIdx == -1 {
		return nil, nil, fmt.Errorf("unterminated frontmatter")
	}

	fmData := rest[:endIdx]
	remaining := rest[endIdx+4:]

	var fm frontmatter
	if err := yaml.Unmarshal(fmData, &fm); err != nil {
		return nil, nil, err
	}
	return &fm, bytes.TrimLeft(remaining, "\n"), nil
}

// List returns all non-archived automations sorted by id. Files that fail to
// parse are skipped, not fatal: one corrupt file must not hide the rest.
func (r *Registry) List() ([]*domain.Automation, error) {
	return r.list(false)
}

// ListAll returns every automation including archived ones
func (r *Registry) ListAll() ([]*domain.Automation, error) {
	return r.list(true)
}

func (r *Registry) list(includeArchived bool) ([]*domain.Automation, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}

	var autos []*domain.Automation
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		auto, err := r.load(filepath.Join(r.dir, e.Name()))
		if err != nil {
			continue
		}
		if !includeArchived && auto.Status == domain.AutomationArchived {
			continue
		}
		autos = append(autos, auto)
	}

	sort.Slice(autos, func(i, j int) bool { return autos[i].ID < autos[j].ID })
	return autos, nil
}

// SetStatus flips an automation's lifecycle status in place
func (r *Registry) SetStatus(id string, status domain.AutomationStatus) error {
	auto, err := r.Get(id)
	if err != nil {
		return err
	}
	auto.Status = status
	return r.Update(auto)
}

// Delete removes an automation file
func (r *Registry) Delete(id string) error {
	return os.Remove(r.Path(id))
}
