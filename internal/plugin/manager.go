package plugin

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Options configure a plugin built through a Manager.
type Options struct {
	// Template is the main input template. Plugins without templates ignore it.
	Template string
	// ExtraTemplates are additional templates, keyed by their target name.
	ExtraTemplates map[string]string
	// ExtraInputs are copied into the workspace unchanged.
	ExtraInputs []string

	ShowStdout bool
	ShowStderr bool
}

// Factory builds a plugin from options.
type Factory func(opts Options) (Plugin, error)

// Manager maps plugin names to factories.
type Manager struct {
	mu        sync.RWMutex
	factories map[string]registration
}

type registration struct {
	name        string
	description string
	factory     Factory
}

// NewManager creates an empty plugin manager
func NewManager() *Manager {
	return &Manager{factories: make(map[string]registration)}
}

// Register adds a factory under name. Names are case-insensitive.
func (m *Manager) Register(name, description string, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[strings.ToLower(name)] = registration{name: name, description: description, factory: f}
}

// New builds the plugin registered under name.
func (m *Manager) New(name string, opts Options) (Plugin, error) {
	m.mu.RLock()
	reg, ok := m.factories[strings.ToLower(name)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown plugin %q (available: %s)", name, strings.Join(m.Names(), ", "))
	}
	return reg.factory(opts)
}

// Names returns the registered plugin names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.factories))
	for _, r := range m.factories {
		names = append(names, r.name)
	}
	sort.Strings(names)
	return names
}

// Description returns the description registered for name.
func (m *Manager) Description(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.factories[strings.ToLower(name)].description
}
