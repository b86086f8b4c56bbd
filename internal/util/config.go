package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Configuration carries everything the CLI resolves before handing off to
// the evaluator. Values come from an optional TOML file and from flags, the
// flags taking precedence. The import search path lists the file's jpath
// entries, then the -J flags, then the MARL_PATH entries.
type Configuration struct {
	Version   string
	BuildDate string
	Commit    string

	JPath    []string
	MaxStack int
	MaxTrace int

	ExtVars  map[string]string
	ExtCodes map[string]string
}

// fileConfig is the TOML shape of a marl.toml file.
type fileConfig struct {
	JPath    []string          `toml:"jpath"`
	MaxStack int               `toml:"max_stack"`
	MaxTrace int               `toml:"max_trace"`
	Ext      map[string]string `toml:"ext"`
	ExtCode  map[string]string `toml:"ext_code"`
}

// LoadConfigFile merges the given TOML file into the configuration. Missing
// file is an error; callers decide whether the path was optional.
func (c *Configuration) LoadConfigFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("could not load config %s: %w", path, err)
	}
	base := filepath.Dir(path)
	for _, dir := range fc.JPath {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(base, dir)
		}
		c.JPath = append(c.JPath, dir)
	}
	if fc.MaxStack > 0 {
		c.MaxStack = fc.MaxStack
	}
	if fc.MaxTrace > 0 {
		c.MaxTrace = fc.MaxTrace
	}
	for k, v := range fc.Ext {
		c.ExtVars[k] = v
	}
	for k, v := range fc.ExtCode {
		c.ExtCodes[k] = v
	}
	return nil
}

// LoadEnvPath appends the MARL_PATH entries to the import search list, the
// same way the loader falls back to the home library path.
func (c *Configuration) LoadEnvPath() {
	env := os.Getenv("MARL_PATH")
	if env == "" {
		return
	}
	for _, dir := range strings.Split(env, string(os.PathListSeparator)) {
		if dir != "" {
			c.JPath = append(c.JPath, dir)
		}
	}
}

func NewConfiguration() Configuration {
	return Configuration{
		ExtVars:  make(map[string]string),
		ExtCodes: make(map[string]string),
	}
}
