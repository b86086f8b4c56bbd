package vm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"marl/internal/ast"
	"marl/internal/log"
)

type importCacheKey struct {
	dir  string
	path string
}

type importCacheValue struct {
	foundHere string
	content   string
}

// ImportCache maps (importing directory, literal path) pairs to loaded
// sources. It belongs to the VM, not to a single evaluation: imports are
// cached for the VM's whole lifetime.
type ImportCache struct {
	cache map[importCacheKey]*importCacheValue
}

func NewImportCache() *ImportCache {
	return &ImportCache{cache: make(map[importCacheKey]*importCacheValue)}
}

// dirName turns a path like a/b/c into a/b/; a bare filename yields "".
func dirName(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[:idx+1]
	}
	return ""
}

// importString loads the contents of an import target through the cache. The
// cache key pairs the importing file's directory with the literal path, so
// the same program text always resolves the same way regardless of when the
// import is forced.
func (i *interpreter) importString(loc ast.LocationRange, path string) (*importCacheValue, error) {
	dir := dirName(loc.File)

	key := importCacheKey{dir: dir, path: path}
	if cached, ok := i.cachedImports.cache[key]; ok {
		log.Trace("import cache hit: %q from %q", path, dir)
		return cached, nil
	}

	foundHere, content, err := i.importCallback(dir, path)
	if err != nil {
		return nil, i.stack.makeError(loc, "Couldn't open import %q: %s", path, err.Error())
	}
	log.Debug("imported %q as %q", path, foundHere)

	cached := &importCacheValue{foundHere: foundHere, content: content}
	i.cachedImports.cache[key] = cached
	return cached, nil
}

// importCode loads and compiles an imported file.
func (i *interpreter) importCode(loc ast.LocationRange, path string) (ast.Node, error) {
	cached, err := i.importString(loc, path)
	if err != nil {
		return nil, err
	}
	expr, err := i.processSnippet(cached.foundHere, cached.content)
	if err != nil {
		return nil, err
	}
	return expr, nil
}

// MakeFileImporter builds the default loader: the importing file's directory
// is tried first, then every search path in order.
func MakeFileImporter(searchPaths []string) ImportCallback {
	return func(base, rel string) (string, string, error) {
		if filepath.IsAbs(rel) {
			content, err := os.ReadFile(rel)
			if err != nil {
				return "", "", err
			}
			return rel, string(content), nil
		}
		candidates := make([]string, 0, len(searchPaths)+1)
		candidates = append(candidates, base+rel)
		for _, dir := range searchPaths {
			if dir != "" && !strings.HasSuffix(dir, "/") {
				dir += "/"
			}
			candidates = append(candidates, dir+rel)
		}
		var firstErr error
		for _, candidate := range candidates {
			content, err := os.ReadFile(candidate)
			if err == nil {
				return candidate, string(content), nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("no match locally or in the search paths")
		}
		return "", "", firstErr
	}
}
