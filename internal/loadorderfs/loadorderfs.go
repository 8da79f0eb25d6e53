// Package loadorderfs implements the Load Order State component
//: a per-game abstraction over however that game persists
// plugin activation and ordering, exposing one view regardless of
// whether the underlying mechanism is a plugins list, a loadorder.txt,
// or file modification timestamps.
package loadorderfs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loot-core/loot/internal/gameid"
	"github.com/loot-core/loot/internal/pluginref"
)

// Ref is the plugin filename type used throughout this package.
type Ref = pluginref.Ref

// ErrLoadOrder wraps any failure reading or writing load-order files.
var ErrLoadOrder = errors.New("load order error")

// Fs is the filesystem capability the load order state delegates to.
// Paths are resolved relative to the local app-data directory that
// holds plugins.txt/loadorder.txt, distinct from the game's Data
// folder that holds the plugins themselves and whose file timestamps
// back the timestamp-ordered games.
type Fs interface {
	ReadPluginsList() ([]Ref, error)
	WritePluginsList(active []Ref) error

	ReadTimestamps(dataDir string, installed []Ref) ([]Ref, error)
	WriteTimestamps(dataDir string, order []Ref) error

	ReadLoadOrderTxt() ([]Ref, error)
	WriteLoadOrderTxt(order []Ref) error
}

// FileFs is the on-disk Fs implementation: plugins.txt and
// loadorder.txt are newline-delimited, UTF-8, one plugin name per
// line; timestamps are read/written via the filesystem's own mtime.
type FileFs struct {
	LocalDataDir string
}

// NewFileFs creates a FileFs rooted at localDataDir, the directory
// holding plugins.txt and loadorder.txt for the current game profile.
func NewFileFs(localDataDir string) *FileFs {
	return &FileFs{LocalDataDir: localDataDir}
}

func (f *FileFs) pluginsListPath() string {
	return filepath.Join(f.LocalDataDir, "plugins.txt")
}

func (f *FileFs) loadOrderTxtPath() string {
	return filepath.Join(f.LocalDataDir, "loadorder.txt")
}

// ReadPluginsList reads plugins.txt. A leading "*" activation marker
// (the newer plugins.txt convention, shared with loadorder.txt-based
// games) is stripped where present. Every listed plugin is treated as
// active, whether or not its line carries the marker, for every game.
func (f *FileFs) ReadPluginsList() ([]Ref, error) {
	lines, err := readLines(f.pluginsListPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read plugins.txt: %v", ErrLoadOrder, err)
	}

	var active []Ref
	for _, line := range lines {
		name := strings.TrimPrefix(line, "*")
		active = append(active, Ref(pluginref.TrimGhost(name)))
	}
	return active, nil
}

// WritePluginsList writes active, one per line, each prefixed with
// "*" so the file is self-describing for implementations that derive
// both activation and (partial) order from it.
func (f *FileFs) WritePluginsList(active []Ref) error {
	var sb strings.Builder
	for _, r := range active {
		sb.WriteString("*")
		sb.WriteString(r.String())
		sb.WriteString("\n")
	}
	if err := os.MkdirAll(f.LocalDataDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrLoadOrder, err)
	}
	if err := os.WriteFile(f.pluginsListPath(), []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("%w: write plugins.txt: %v", ErrLoadOrder, err)
	}
	return nil
}

// ReadLoadOrderTxt reads loadorder.txt, one plugin name per line, in
// order.
func (f *FileFs) ReadLoadOrderTxt() ([]Ref, error) {
	lines, err := readLines(f.loadOrderTxtPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read loadorder.txt: %v", ErrLoadOrder, err)
	}
	order := make([]Ref, 0, len(lines))
	for _, line := range lines {
		order = append(order, Ref(pluginref.TrimGhost(line)))
	}
	return order, nil
}

// WriteLoadOrderTxt writes order, one plugin name per line.
func (f *FileFs) WriteLoadOrderTxt(order []Ref) error {
	var sb strings.Builder
	for _, r := range order {
		sb.WriteString(r.String())
		sb.WriteString("\n")
	}
	if err := os.MkdirAll(f.LocalDataDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrLoadOrder, err)
	}
	if err := os.WriteFile(f.loadOrderTxtPath(), []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("%w: write loadorder.txt: %v", ErrLoadOrder, err)
	}
	return nil
}

// ReadTimestamps derives an order for installed by sorting them by
// file modification time (oldest first), the mechanism games without
// a loadorder.txt rely on.
func (f *FileFs) ReadTimestamps(dataDir string, installed []Ref) ([]Ref, error) {
	type stamped struct {
		ref Ref
		t   time.Time
	}
	stampedList := make([]stamped, 0, len(installed))
	for _, r := range installed {
		info, err := os.Stat(filepath.Join(dataDir, r.String()))
		if err != nil {
			if os.IsNotExist(err) {
				info, err = os.Stat(filepath.Join(dataDir, r.String()+".ghost"))
			}
			if err != nil {
				return nil, fmt.Errorf("%w: stat %s: %v", ErrLoadOrder, r, err)
			}
		}
		stampedList = append(stampedList, stamped{ref: r, t: info.ModTime()})
	}
	sort.SliceStable(stampedList, func(i, j int) bool {
		return stampedList[i].t.Before(stampedList[j].t)
	})
	order := make([]Ref, len(stampedList))
	for i, s := range stampedList {
		order[i] = s.ref
	}
	return order, nil
}

// WriteTimestamps re-stamps each plugin in order with strictly
// increasing modification times one second apart, starting at the
// current time minus len(order) seconds, so that re-reading
// timestamps reproduces order exactly.
func (f *FileFs) WriteTimestamps(dataDir string, order []Ref) error {
	base := time.Now().Add(-time.Duration(len(order)) * time.Second)
	for i, r := range order {
		path := filepath.Join(dataDir, r.String())
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = filepath.Join(dataDir, r.String()+".ghost")
		}
		t := base.Add(time.Duration(i) * time.Second)
		if err := os.Chtimes(path, t, t); err != nil {
			return fmt.Errorf("%w: chtimes %s: %v", ErrLoadOrder, r, err)
		}
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// State implements the component's abstract contract
// (current_load_order, is_active, set_load_order, is_ambiguous) over
// an Fs and a game's capability table.
type State struct {
	fs      Fs
	game    gameid.Table
	dataDir string

	order      []Ref
	active     pluginref.Set
	isAmbiguous bool
}

// NewState loads the current load order and active set from fs for
// game, whose plugins live under dataDir.
func NewState(fs Fs, game gameid.Table, dataDir string, installed []Ref) (*State, error) {
	s := &State{fs: fs, game: game, dataDir: dataDir}
	if err := s.refresh(installed); err != nil {
		return nil, err
	}
	return s, nil
}

// refresh re-derives order, active, and isAmbiguous from the
// underlying sources, detecting disagreement between them.
func (s *State) refresh(installed []Ref) error {
	active, err := s.fs.ReadPluginsList()
	if err != nil {
		return err
	}
	activeSet := pluginref.NewSet()
	for _, r := range active {
		activeSet.Add(r)
	}
	s.active = *activeSet

	var order []Ref
	var fromTimestamps []Ref
	if s.game.UsesLoadOrderTxt {
		order, err = s.fs.ReadLoadOrderTxt()
		if err != nil {
			return err
		}
	}
	fromTimestamps, err = s.fs.ReadTimestamps(s.dataDir, installed)
	if err != nil {
		return err
	}

	if len(order) == 0 {
		order = fromTimestamps
	} else if s.game.UsesLoadOrderTxt {
		s.isAmbiguous = !sameOrderForCommon(order, fromTimestamps)
	}

	s.order = reconcileWithInstalled(order, installed, s.game)
	return nil
}

// sameOrderForCommon reports whether a and b agree on the relative
// order of every plugin present in both.
func sameOrderForCommon(a, b []Ref) bool {
	pos := make(map[string]int, len(b))
	for i, r := range b {
		pos[r.Key()] = i
	}
	lastSeen := -1
	for _, r := range a {
		if p, ok := pos[r.Key()]; ok {
			if p < lastSeen {
				return false
			}
			lastSeen = p
		}
	}
	return true
}

// reconcileWithInstalled appends any installed plugin missing from
// order (newly added since the file was last written) and drops
// entries for plugins no longer installed, keeping the game's
// hard-coded prefix first.
func reconcileWithInstalled(order []Ref, installed []Ref, game gameid.Table) []Ref {
	installedSet := pluginref.NewSet()
	for _, r := range installed {
		installedSet.Add(r)
	}

	seen := pluginref.NewSet()
	out := make([]Ref, 0, len(installed))
	for _, r := range order {
		if installedSet.Has(r) && !seen.Has(r) {
			out = append(out, r)
			seen.Add(r)
		}
	}
	for _, r := range installed {
		if !seen.Has(r) {
			out = append(out, r)
			seen.Add(r)
		}
	}
	return withHardcodedPrefixFirst(out, game)
}

func withHardcodedPrefixFirst(order []Ref, game gameid.Table) []Ref {
	if len(game.HardcodedPrefix) == 0 {
		return order
	}
	prefixSet := pluginref.NewSet()
	for _, name := range game.HardcodedPrefix {
		prefixSet.Add(Ref(name))
	}
	var prefix, rest []Ref
	for _, r := range order {
		if prefixSet.Has(r) {
			continue
		}
		rest = append(rest, r)
	}
	for _, name := range game.HardcodedPrefix {
		ref := Ref(name)
		for _, r := range order {
			if r.Equal(ref) {
				prefix = append(prefix, r)
				break
			}
		}
	}
	return append(prefix, rest...)
}

// CurrentLoadOrder returns the full installed order, hard-coded prefix first.
func (s *State) CurrentLoadOrder() []Ref {
	out := make([]Ref, len(s.order))
	copy(out, s.order)
	return out
}

// IsActive reports whether r is in the active set.
func (s *State) IsActive(r Ref) bool {
	return s.active.Has(r)
}

// IsAmbiguous reports whether the load-order sources disagreed the
// last time state was loaded.
func (s *State) IsAmbiguous() bool {
	return s.isAmbiguous
}

// SetLoadOrder writes order through to every source the game uses,
// so a subsequent refresh is never ambiguous.
func (s *State) SetLoadOrder(order []Ref) error {
	var active []Ref
	for _, r := range order {
		if s.active.Has(r) {
			active = append(active, r)
		}
	}
	if err := s.fs.WritePluginsList(active); err != nil {
		return err
	}
	if s.game.UsesLoadOrderTxt {
		if err := s.fs.WriteLoadOrderTxt(order); err != nil {
			return err
		}
	}
	if err := s.fs.WriteTimestamps(s.dataDir, order); err != nil {
		return err
	}

	s.order = order
	s.isAmbiguous = false
	return nil
}

// SetActive replaces the active set without changing order.
func (s *State) SetActive(active []Ref) error {
	newActive := pluginref.NewSet()
	for _, r := range active {
		newActive.Add(r)
	}
	if err := s.fs.WritePluginsList(active); err != nil {
		return err
	}
	s.active = *newActive
	return nil
}
