package condition

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/loot-core/loot/internal/pluginref"
	"github.com/loot-core/loot/internal/version"
)

// PluginSource answers the evaluator's questions about installed
// plugins that require parsed header facts rather than a bare
// filesystem stat: whether a plugin is active, and its extracted
// version string. The session wires its plugin cache in here.
type PluginSource interface {
	IsActive(name pluginref.Ref) bool
	VersionString(name pluginref.Ref) (string, bool)
}

// Evaluator evaluates parsed condition expressions against a game's
// data root, short-circuiting "and"/"or" and enforcing the
// path-containment safety invariant.
type Evaluator struct {
	DataRoot string
	Plugins  PluginSource

	resultCache *lru.Cache[string, bool]
	crcCache    *lru.Cache[string, uint32]
}

// NewEvaluator creates an Evaluator rooted at dataRoot. cacheSize
// bounds the condition-result and CRC caches.
func NewEvaluator(dataRoot string, plugins PluginSource, cacheSize int) (*Evaluator, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	resultCache, err := lru.New[string, bool](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create condition cache: %w", err)
	}
	crcCache, err := lru.New[string, uint32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create crc cache: %w", err)
	}
	return &Evaluator{
		DataRoot:    dataRoot,
		Plugins:     plugins,
		resultCache: resultCache,
		crcCache:    crcCache,
	}, nil
}

// ClearCaches invalidates both caches.
func (ev *Evaluator) ClearCaches() {
	ev.resultCache.Purge()
	ev.crcCache.Purge()
}

// Eval evaluates e, consulting and populating the result cache keyed
// by e's canonical literal form.
func (ev *Evaluator) Eval(e Expr) (bool, error) {
	key := e.String()
	if v, ok := ev.resultCache.Get(key); ok {
		return v, nil
	}
	v, err := ev.eval(e)
	if err != nil {
		return false, err
	}
	ev.resultCache.Add(key, v)
	return v, nil
}

func (ev *Evaluator) eval(e Expr) (bool, error) {
	switch n := e.(type) {
	case *notExpr:
		v, err := ev.eval(n.inner)
		if err != nil {
			return false, err
		}
		return !v, nil
	case *andExpr:
		v, err := ev.eval(n.left)
		if err != nil {
			return false, err
		}
		if !v {
			return false, nil
		}
		return ev.eval(n.right)
	case *orExpr:
		v, err := ev.eval(n.left)
		if err != nil {
			return false, err
		}
		if v {
			return true, nil
		}
		return ev.eval(n.right)
	case *fileExpr:
		return ev.evalFile(n.path)
	case *readableExpr:
		return ev.evalReadable(n.path)
	case *activeExpr:
		return ev.evalActive(n.path)
	case *isMasterExpr:
		return ev.evalIsMaster(n.path)
	case *regexExpr:
		count, err := ev.countMatches(n.pattern)
		if err != nil {
			return false, err
		}
		return count > 0, nil
	case *manyExpr:
		count, err := ev.countMatches(n.pattern)
		if err != nil {
			return false, err
		}
		return count > 1, nil
	case *manyActiveExpr:
		count, err := ev.countActiveMatches(n.pattern)
		if err != nil {
			return false, err
		}
		return count > 1, nil
	case *checksumExpr:
		return ev.evalChecksum(n.path, n.hex)
	case *versionExpr:
		return ev.evalVersion(n)
	default:
		return false, fmt.Errorf("condition: unhandled expression type %T", e)
	}
}

// resolvePath enforces C1: path, after lexical normalization, must
// resolve inside DataRoot.
func (ev *Evaluator) resolvePath(path string) (string, error) {
	cleaned := filepath.Clean(strings.ReplaceAll(path, "\\", "/"))
	joined := filepath.Join(ev.DataRoot, cleaned)
	root, err := filepath.Abs(ev.DataRoot)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIo, err)
	}
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIo, err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes data root", ErrInvalidPath, path)
	}
	return abs, nil
}

func (ev *Evaluator) evalFile(path string) (bool, error) {
	abs, err := ev.resolvePath(path)
	if err != nil {
		return false, err
	}
	if pathExists(abs) {
		return true, nil
	}
	if pluginref.IsPluginExt(filepath.Ext(path)) && pathExists(abs+".ghost") {
		return true, nil
	}
	return false, nil
}

func (ev *Evaluator) evalReadable(path string) (bool, error) {
	abs, err := ev.resolvePath(path)
	if err != nil {
		return false, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return false, nil
	}
	f.Close()
	return true, nil
}

func (ev *Evaluator) evalActive(path string) (bool, error) {
	if ev.Plugins == nil {
		return false, nil
	}
	return ev.Plugins.IsActive(pluginref.Ref(filepath.Base(path))), nil
}

func (ev *Evaluator) evalIsMaster(path string) (bool, error) {
	abs, err := ev.resolvePath(path)
	if err != nil {
		return false, err
	}
	ext := strings.ToLower(filepath.Ext(abs))
	return ext == ".esm", nil
}

// countMatches counts files under the pattern's literal parent
// directory whose basename matches the regex component.
func (ev *Evaluator) countMatches(pattern string) (int, error) {
	dir, nameRe, err := ev.splitRegexPath(pattern)
	if err != nil {
		return 0, err
	}
	count := 0
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrIo, err)
	}
	for _, entry := range entries {
		if nameRe.MatchString(entry.Name()) {
			count++
		}
	}
	return count, nil
}

func (ev *Evaluator) countActiveMatches(pattern string) (int, error) {
	dir, nameRe, err := ev.splitRegexPath(pattern)
	if err != nil {
		return 0, err
	}
	if ev.Plugins == nil {
		return 0, nil
	}
	count := 0
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrIo, err)
	}
	for _, entry := range entries {
		if nameRe.MatchString(entry.Name()) && ev.Plugins.IsActive(pluginref.Ref(entry.Name())) {
			count++
		}
	}
	return count, nil
}

func (ev *Evaluator) splitRegexPath(pattern string) (string, *regexp.Regexp, error) {
	dirPart := filepath.ToSlash(filepath.Dir(pattern))
	namePart := filepath.Base(pattern)

	abs, err := ev.resolvePath(dirPart)
	if err != nil {
		return "", nil, err
	}
	nameRe, err := regexp.Compile(namePart)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
	}
	return abs, nameRe, nil
}

func (ev *Evaluator) evalChecksum(path, hex string) (bool, error) {
	abs, err := ev.resolvePath(path)
	if err != nil {
		return false, err
	}
	actual, ok, err := ev.crc32Of(abs)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	var want uint32
	if _, err := fmt.Sscanf(hex, "%x", &want); err != nil {
		return false, fmt.Errorf("%w: %q is not a hex32 checksum", ErrInvalidPath, hex)
	}
	return actual == want, nil
}

func (ev *Evaluator) crc32Of(abs string) (uint32, bool, error) {
	if v, ok := ev.crcCache.Get(abs); ok {
		return v, true, nil
	}
	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %v", ErrIo, err)
	}
	defer f.Close()

	h := crc32.NewIEEE()
	buf := make([]byte, 64*1024)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if readErr != nil {
			break
		}
	}
	v := h.Sum32()
	ev.crcCache.Add(abs, v)
	return v, true, nil
}

func (ev *Evaluator) evalVersion(n *versionExpr) (bool, error) {
	var actual string

	switch {
	case n.byName:
		actual = version.Extract(filepath.Base(n.path))
	case n.product:
		// Executable VERSIONINFO/ELF-note metadata has no
		// cross-platform stdlib accessor; fall back to the filename
		// extractor, same as filename_version.
		actual = version.Extract(filepath.Base(n.path))
	default:
		if ev.Plugins != nil {
			if v, ok := ev.Plugins.VersionString(pluginref.Ref(filepath.Base(n.path))); ok {
				actual = v
			}
		}
	}

	return version.Satisfies(actual, n.cmp, n.target), nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
