// Package session implements the Orchestrator: the single
// facade, GameSession, that wires together the plugin header reader,
// load order state, metadata store, condition evaluator, validity
// checker, and sorting engine into one load_data/messages_for/sort/
// apply_sort/clear_caches lifecycle.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/loot-core/loot/internal/condition"
	"github.com/loot-core/loot/internal/gamefs"
	"github.com/loot-core/loot/internal/gameid"
	"github.com/loot-core/loot/internal/loadorderfs"
	"github.com/loot-core/loot/internal/metadata"
	"github.com/loot-core/loot/internal/plugin"
	"github.com/loot-core/loot/internal/pluginref"
	"github.com/loot-core/loot/internal/sortengine"
	"github.com/loot-core/loot/internal/validity"
)

// Config bundles the paths and game identity needed to open a session.
type Config struct {
	Game gameid.Table

	// DataDir is the game's Data folder, holding plugin files.
	DataDir string
	// LocalDataDir holds plugins.txt/loadorder.txt.
	LocalDataDir string

	MasterlistPath string
	PreludePath    string
	UserlistPath   string

	// Workers bounds header-parsing concurrency; 0 picks runtime.NumCPU().
	Workers int
}

// GameSession is the stateful, single-game session the rest of the
// application drives.
type GameSession struct {
	ID uuid.UUID

	cfg    Config
	reader *plugin.Reader

	mu        sync.RWMutex
	installed map[string]*plugin.Facts // keyed by pluginref.Ref.Key()

	order     *loadorderfs.State
	metaStore *metadata.Store
	evaluator *condition.Evaluator
	checker   *validity.Checker

	// metaWarnings holds recoverable per-entry masterlist/userlist parse
	// failures collected while loading the metadata store.
	metaWarnings *multierror.Error
}

// New creates a session for cfg without loading any plugin data yet;
// call LoadData before Sort or MessagesFor.
func New(cfg Config) (*GameSession, error) {
	store, warnings, err := metadata.NewStore(cfg.MasterlistPath, cfg.PreludePath, cfg.UserlistPath)
	if err != nil {
		return nil, fmt.Errorf("load metadata store: %w", err)
	}
	sess := &GameSession{
		ID:           uuid.New(),
		cfg:          cfg,
		reader:       plugin.NewReader(cfg.Game),
		installed:    make(map[string]*plugin.Facts),
		metaStore:    store,
		metaWarnings: warnings,
	}
	sess.checker = validity.NewChecker(cfg.Game, store, sess)
	return sess, nil
}

// IsActive implements validity.OrderView, deferring to the load order
// state once LoadData has populated it.
func (s *GameSession) IsActive(name pluginref.Ref) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.order == nil {
		return false
	}
	return s.order.IsActive(name)
}

// VersionString implements condition.PluginSource by reading the
// cached header facts, satisfying version() without a second file
// read.
func (s *GameSession) VersionString(name pluginref.Ref) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	facts, ok := s.installed[name.Key()]
	if !ok || facts.VersionString == "" {
		return "", false
	}
	return facts.VersionString, true
}

// LoadData discovers every plugin in the game's Data folder, parses
// their headers with a bounded worker pool, and refreshes the load
// order state. It is safe to call again to pick up newly installed or
// removed plugins.
func (s *GameSession) LoadData(ctx context.Context) error {
	names, err := discoverPlugins(s.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("discover plugins: %w", err)
	}

	facts, err := s.readHeaders(ctx, names)
	if err != nil {
		return err
	}

	fs := gamefs.New(s.cfg.DataDir, s.cfg.Game)
	installed := make(map[string]*plugin.Facts, len(facts))
	for _, f := range facts {
		f.LoadsArchive = fs.LoadsArchive(f.Name)
		installed[f.Name.Key()] = f
	}

	orderState, err := loadorderfs.NewState(
		loadorderfs.NewFileFs(s.cfg.LocalDataDir),
		s.cfg.Game,
		s.cfg.DataDir,
		names,
	)
	if err != nil {
		return fmt.Errorf("load order state: %w", err)
	}

	s.mu.Lock()
	s.installed = installed
	s.order = orderState
	s.mu.Unlock()

	evaluator, err := condition.NewEvaluator(s.cfg.DataDir, s, 4096)
	if err != nil {
		return fmt.Errorf("create condition evaluator: %w", err)
	}
	s.mu.Lock()
	s.evaluator = evaluator
	s.mu.Unlock()

	return nil
}

// discoverPlugins lists every installed plugin in dataDir, stripping
// ".ghost" suffixes so a ghosted plugin is still addressed by its
// in-game filename.
func discoverPlugins(dataDir string) ([]pluginref.Ref, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, err
	}
	var out []pluginref.Ref
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := pluginref.TrimGhost(e.Name())
		if !pluginref.IsPluginExt(filepath.Ext(name)) {
			continue
		}
		out = append(out, pluginref.Ref(name))
	}
	return out, nil
}

// headerResult pairs a parsed Facts with the error encountered reading
// it, so readHeaders can report which plugin failed.
type headerResult struct {
	name  pluginref.Ref
	facts *plugin.Facts
	err   error
}

// readHeaders parses every named plugin's header concurrently, capped
// at s.cfg.Workers goroutines (or runtime.NumCPU() if unset), and
// aggregates results back on the calling goroutine.
func (s *GameSession) readHeaders(ctx context.Context, names []pluginref.Ref) ([]*plugin.Facts, error) {
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan pluginref.Ref)
	results := make(chan headerResult, len(names))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				select {
				case <-ctx.Done():
					results <- headerResult{name: name, err: ctx.Err()}
					continue
				default:
				}
				path := filepath.Join(s.cfg.DataDir, name.String())
				if _, err := os.Stat(path); os.IsNotExist(err) {
					path += ".ghost"
				}
				facts, err := s.reader.ReadFile(ctx, path)
				results <- headerResult{name: name, facts: facts, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, name := range names {
			select {
			case jobs <- name:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	facts := make([]*plugin.Facts, 0, len(names))
	var errs []string
	for res := range results {
		if res.err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", res.name, res.err))
			continue
		}
		facts = append(facts, res.facts)
	}
	if len(errs) > 0 {
		return facts, fmt.Errorf("reading %d plugin header(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return facts, nil
}

// MessagesFor runs the Validity Checker for a single installed plugin,
// returning every applicable diagnostic message.
func (s *GameSession) MessagesFor(name pluginref.Ref) ([]validity.Message, error) {
	s.mu.RLock()
	facts, ok := s.installed[name.Key()]
	installedSnapshot := s.installed
	evaluator := s.evaluator
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("plugin %q is not installed", name)
	}

	eval := func(cond string) (bool, error) {
		if evaluator == nil {
			return true, nil
		}
		expr, err := condition.Parse(cond)
		if err != nil {
			return false, err
		}
		return evaluator.Eval(expr)
	}

	return s.checker.CheckPlugin(facts, installedSnapshot, eval), nil
}

// AllMessages runs MessagesFor over every installed plugin, then
// appends the global active-plugin-count messages. Plugins are visited
// in map iteration order, so the order of per-plugin messages is not
// defined.
func (s *GameSession) AllMessages() ([]validity.Message, error) {
	s.mu.RLock()
	installed := make([]*plugin.Facts, 0, len(s.installed))
	for _, f := range s.installed {
		installed = append(installed, f)
	}
	order := s.order
	s.mu.RUnlock()

	var all []validity.Message
	activeFull, activeLight := 0, 0
	for _, f := range installed {
		msgs, err := s.MessagesFor(f.Name)
		if err != nil {
			return nil, err
		}
		all = append(all, msgs...)
		if order != nil && order.IsActive(f.Name) {
			if f.IsLight {
				activeLight++
			} else {
				activeFull++
			}
		}
	}
	all = append(all, validity.CheckActivePluginLimits(s.cfg.Game, activeFull, activeLight)...)
	return all, nil
}

// Sort computes a new load order via the Sorting Engine, without
// writing it anywhere.
func (s *GameSession) Sort() (*sortengine.Result, error) {
	s.mu.RLock()
	installed := make(map[string]*plugin.Facts, len(s.installed))
	for k, v := range s.installed {
		installed[k] = v
	}
	var current []pluginref.Ref
	if s.order != nil {
		current = s.order.CurrentLoadOrder()
	}
	s.mu.RUnlock()

	return sortengine.Sort(sortengine.Input{
		Game:         s.cfg.Game,
		Installed:    installed,
		Metadata:     s.metaStore,
		CurrentOrder: current,
	})
}

// ApplySort writes result's order through every load-order source.
func (s *GameSession) ApplySort(result *sortengine.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil {
		return fmt.Errorf("session has no load order state loaded")
	}
	return s.order.SetLoadOrder(result.Order)
}

// ClearCaches purges the ConditionCache and CrcCache, forcing the next evaluation to recompute.
func (s *GameSession) ClearCaches() {
	s.mu.RLock()
	evaluator := s.evaluator
	s.mu.RUnlock()
	if evaluator != nil {
		evaluator.ClearCaches()
	}
}

// Warnings returns the recoverable masterlist/userlist parse failures
// collected when the session's metadata store was loaded, if any.
func (s *GameSession) Warnings() error {
	return s.metaWarnings.ErrorOrNil()
}

// Installed returns the currently loaded plugin facts, keyed by
// lowercase name.
func (s *GameSession) Installed() map[string]*plugin.Facts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*plugin.Facts, len(s.installed))
	for k, v := range s.installed {
		out[k] = v
	}
	return out
}

// GameID returns the session's game identifier.
func (s *GameSession) GameID() gameid.ID {
	return s.cfg.Game.ID
}

// DataDir returns the session's Data folder path.
func (s *GameSession) DataDir() string {
	return s.cfg.DataDir
}

// CurrentLoadOrder returns the session's current load order, empty if
// LoadData has not yet run.
func (s *GameSession) CurrentLoadOrder() []pluginref.Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.order == nil {
		return nil
	}
	return s.order.CurrentLoadOrder()
}
