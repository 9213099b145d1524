package phpengine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ExtensionConfig lists the extensions to load.
type ExtensionConfig struct {
	Required []string `yaml:"required" toml:"required"`
	Optional []string `yaml:"optional" toml:"optional"`
}

// Extension is a named bundle of native functions.
type Extension struct {
	Name      string
	Functions []Function
}

// ExtensionManager handles PHP extension loading.
type ExtensionManager struct {
	phpVersion string
	config     *ExtensionConfig
	logger     *slog.Logger
	available  map[string]Extension
	loaded     map[string]bool
	mu         sync.RWMutex
}

// NewExtensionManager creates an extension manager that knows the
// built-in standard, json and callbacks extensions.
func NewExtensionManager(phpVersion string, cfg *ExtensionConfig, logger *slog.Logger) *ExtensionManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	em := &ExtensionManager{
		phpVersion: phpVersion,
		config:     cfg,
		logger:     logger,
		available:  make(map[string]Extension),
		loaded:     make(map[string]bool),
	}
	em.Register(StandardExtension())
	em.Register(JSONExtension())
	em.Register(CallbacksExtension())
	return em
}

// Register makes ext available for loading under its name.
func (em *ExtensionManager) Register(ext Extension) {
	em.mu.Lock()
	em.available[ext.Name] = ext
	em.mu.Unlock()
}

// LoadExtensions defines the functions of every configured extension on e.
// A missing required extension fails; a missing optional one is skipped.
func (em *ExtensionManager) LoadExtensions(e *Engine) error {
	if em.config == nil {
		return nil
	}

	// Load required extensions (fail if missing)
	for _, ext := range em.config.Required {
		if err := em.loadExtension(e, ext); err != nil {
			return fmt.Errorf("required extension %s: %w", ext, err)
		}
	}

	// Load optional extensions (skip if missing)
	for _, ext := range em.config.Optional {
		if err := em.loadExtension(e, ext); err != nil {
			em.logger.Warn("optional extension not available", "extension", ext, "error", err)
		}
	}

	return nil
}

func (em *ExtensionManager) loadExtension(e *Engine, name string) error {
	em.mu.RLock()
	if em.loaded[name] {
		em.mu.RUnlock()
		return nil
	}
	ext, ok := em.available[name]
	em.mu.RUnlock()

	if !ok {
		return fmt.Errorf("extension not found: %s", name)
	}

	for _, fn := range ext.Functions {
		if err := e.Define(fn); err != nil {
			return err
		}
	}

	em.mu.Lock()
	em.loaded[name] = true
	em.mu.Unlock()

	em.logger.Debug("extension loaded", "extension", name, "functions", len(ext.Functions), "php_version", em.phpVersion)
	return nil
}

// IsLoaded checks if an extension is loaded.
func (em *ExtensionManager) IsLoaded(name string) bool {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.loaded[name]
}

// LoadedExtensions returns the loaded extension names, sorted.
func (em *ExtensionManager) LoadedExtensions() []string {
	em.mu.RLock()
	defer em.mu.RUnlock()

	names := make([]string, 0, len(em.loaded))
	for name := range em.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnloadAll forgets every loaded extension so a restarted engine loads
// them again.
func (em *ExtensionManager) UnloadAll() {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.loaded = make(map[string]bool)
}
