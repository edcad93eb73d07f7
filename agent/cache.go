package agent

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/captaincrouton89/klaude-wrapper/log"
)

// Cache memoizes LoadDefinition/ListTypes results per (projectRoot,
// homeDir) pair and invalidates them via an fsnotify watcher when the
// underlying agents directories change.
type Cache struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
	types       []string
	typesValid  bool

	projectRoot string
	homeDir     string

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
}

// NewCache constructs a Cache and starts watching both agent-definition
// directories for projectRoot/homeDir. Watch failures are logged and
// non-fatal: the cache degrades to re-reading the filesystem on every
// lookup miss.
func NewCache(projectRoot, homeDir string) *Cache {
	c := &Cache{
		definitions: map[string]*Definition{},
		projectRoot: projectRoot,
		homeDir:     homeDir,
		stopChan:    make(chan struct{}),
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("failed to create agent-definition watcher")
		return c
	}
	c.watcher = w

	for _, dir := range []string{
		filepath.Join(projectRoot, ".claude", "agents"),
		filepath.Join(homeDir, ".claude", "agents"),
	} {
		if err := w.Add(dir); err != nil {
			log.Debug().Err(err).Str("dir", dir).Msg("agent-definition directory not watchable")
		}
	}

	go c.eventLoop()
	return c
}

func (c *Cache) eventLoop() {
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".md" {
				continue
			}
			c.invalidate(agentTypeFromPath(ev.Name))

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("agent-definition watcher error")

		case <-c.stopChan:
			return
		}
	}
}

func agentTypeFromPath(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func (c *Cache) invalidate(agentType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.definitions, agentType)
	c.typesValid = false
}

// Load returns the cached Definition for agentType, populating the cache
// on a miss.
func (c *Cache) Load(agentType string) (*Definition, bool, error) {
	c.mu.RLock()
	if def, ok := c.definitions[agentType]; ok {
		c.mu.RUnlock()
		return def, true, nil
	}
	c.mu.RUnlock()

	def, found, err := LoadDefinition(c.projectRoot, c.homeDir, agentType)
	if err != nil || !found {
		return def, found, err
	}

	c.mu.Lock()
	c.definitions[agentType] = def
	c.mu.Unlock()
	return def, true, nil
}

// Types returns the cached list of available agent types.
func (c *Cache) Types() []string {
	c.mu.RLock()
	if c.typesValid {
		defer c.mu.RUnlock()
		return c.types
	}
	c.mu.RUnlock()

	types := ListTypes(c.projectRoot, c.homeDir)

	c.mu.Lock()
	c.types = types
	c.typesValid = true
	c.mu.Unlock()
	return types
}

// Close stops the underlying watcher.
func (c *Cache) Close() {
	close(c.stopChan)
	if c.watcher != nil {
		c.watcher.Close()
	}
}
