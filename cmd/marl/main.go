package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"marl"
	"marl/internal/log"
	"marl/internal/util"
)

var (
	// Version is stamped at build time.
	Version   = "dev"
	BuildDate = "unknown"
	Commit    = "unknown"
)

// multiFlag collects a repeatable string flag.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

var (
	help    bool
	version bool

	snippet      string
	multiDir     string
	yamlStream   bool
	stringOutput bool
	maxStack     int
	maxTrace     int
	configFile   string

	jpaths   multiFlag
	extVars  multiFlag
	extCodes multiFlag

	logLevel string
	logFile  string
)

func init() {
	flag.BoolVar(&help, "help", false, "Display help information and exit")
	flag.BoolVar(&help, "h", false, "Display help information and exit")
	flag.BoolVar(&version, "version", false, "Display version information and exit")
	flag.BoolVar(&version, "v", false, "Display version information and exit")
	// evaluator config
	flag.StringVar(&snippet, "e", "", "Evaluate the given snippet instead of a file")
	flag.StringVar(&multiDir, "m", "", "Multi mode: write one file per top-level key into this directory")
	flag.BoolVar(&yamlStream, "y", false, "Stream mode: top-level array rendered as a YAML document stream")
	flag.BoolVar(&stringOutput, "S", false, "Expect a string result and output it raw")
	flag.IntVar(&maxStack, "s", 0, "Maximum call stack depth (0 for the default)")
	flag.IntVar(&maxTrace, "t", 0, "Maximum stack trace lines in errors (0 for the default)")
	flag.StringVar(&configFile, "config", "", "Load jpath, limits, and external variables from a TOML file")
	flag.Var(&jpaths, "J", "Add a library search directory (repeatable)")
	flag.Var(&jpaths, "jpath", "Add a library search directory (repeatable)")
	flag.Var(&extVars, "V", "Bind an external variable: name=value (repeatable)")
	flag.Var(&extCodes, "ext-code", "Bind an external code variable: name=code (repeatable)")
	// log config
	flag.StringVar(&logLevel, "log-level", "NONE", "Log level: trace, debug, info, warn, error, none")
	flag.StringVar(&logFile, "log-file", "", "Log file path (if not set, logs to stderr)")
}

func main() {
	flag.Parse()

	log.InitLogger(logLevel, logFile, true)
	defer log.Close()

	if version {
		printVersion()
		return
	}
	if help {
		printHelp()
		return
	}

	config := util.NewConfiguration()
	config.Version = Version
	config.BuildDate = BuildDate
	config.Commit = Commit
	if configFile != "" {
		if err := config.LoadConfigFile(configFile); err != nil {
			fail(err)
		}
	}
	config.JPath = append(config.JPath, jpaths...)
	config.LoadEnvPath()
	if maxStack > 0 {
		config.MaxStack = maxStack
	}
	if maxTrace > 0 {
		config.MaxTrace = maxTrace
	}
	for _, kv := range extVars {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			fail(fmt.Errorf("-V expects name=value, got %q", kv))
		}
		config.ExtVars[name] = value
	}
	for _, kv := range extCodes {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			fail(fmt.Errorf("-ext-code expects name=code, got %q", kv))
		}
		config.ExtCodes[name] = value
	}

	vm := marl.MakeVM()
	if config.MaxStack > 0 {
		vm.MaxStack(config.MaxStack)
	}
	if config.MaxTrace > 0 {
		vm.MaxTrace(config.MaxTrace)
	}
	vm.StringOutput(stringOutput)
	for _, dir := range config.JPath {
		vm.JPathAdd(dir)
	}
	for name, value := range config.ExtVars {
		vm.ExtVar(name, value)
	}
	for name, code := range config.ExtCodes {
		vm.ExtCode(name, code)
	}

	filename := "<cmdline>"
	source := snippet
	if snippet == "" {
		if flag.NArg() != 1 {
			printHelp()
			os.Exit(2)
		}
		filename = flag.Arg(0)
		content, err := os.ReadFile(filename)
		if err != nil {
			fail(err)
		}
		source = string(content)
	}

	switch {
	case multiDir != "":
		docs, err := vm.EvaluateSnippetMulti(filename, source)
		if err != nil {
			fail(err)
		}
		writeMulti(multiDir, docs)

	case yamlStream:
		docs, err := vm.EvaluateSnippetStream(filename, source)
		if err != nil {
			fail(err)
		}
		writeYAMLStream(docs)

	default:
		out, err := vm.EvaluateSnippet(filename, source)
		if err != nil {
			fail(err)
		}
		fmt.Println(out)
	}
}

// writeMulti writes one output file per top-level key, like the multi-file
// configuration generators this mode exists for.
func writeMulti(dir string, docs map[string]string) {
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := filepath.Join(dir, k)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			fail(err)
		}
		if err := os.WriteFile(path, []byte(docs[k]+"\n"), 0644); err != nil {
			fail(err)
		}
		fmt.Println(path)
	}
}

// writeYAMLStream re-renders each JSON document as YAML, separated the way
// multi-document YAML streams are.
func writeYAMLStream(docs []string) {
	for idx, doc := range docs {
		var v interface{}
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			fail(fmt.Errorf("internal: stream document is not JSON: %w", err))
		}
		out, err := yaml.Marshal(v)
		if err != nil {
			fail(err)
		}
		if idx > 0 {
			fmt.Println("---")
		}
		fmt.Print(string(out))
	}
}

func fail(err error) {
	msg := err.Error()
	if isatty.IsTerminal(os.Stderr.Fd()) {
		msg = "\033[31m" + msg + "\033[0m"
	}
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func printVersion() {
	fmt.Printf("marl %s (built %s, commit %s)\n", Version, BuildDate, Commit)
}

func printHelp() {
	fmt.Println("Usage: marl [options] <file.marl>")
	fmt.Println("       marl [options] -e <snippet>")
	fmt.Println()
	flag.PrintDefaults()
}
