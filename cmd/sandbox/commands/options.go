package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/livetemplate/sandbox/internal/config"
)

// options are the flags shared by all commands
type options struct {
	dir        string
	configPath string
	port       string
	host       string
	format     string
	watch      *bool
	debug      bool
	positional []string
}

// parseOptions reads flags in "--flag value" or "--flag=value" form.
// Non-flag arguments are collected in order.
func parseOptions(args []string) (*options, error) {
	opts := &options{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")

		takeValue := func() (string, error) {
			if hasValue {
				return value, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("flag %s needs a value", name)
			}
			i++
			return args[i], nil
		}

		var err error
		switch name {
		case "--watch", "-w":
			watch := true
			opts.watch = &watch
		case "--debug":
			opts.debug = true
		case "--port", "-p":
			opts.port, err = takeValue()
		case "--host":
			opts.host, err = takeValue()
		case "--config", "-c":
			opts.configPath, err = takeValue()
		case "--format", "-f":
			opts.format, err = takeValue()
		default:
			if strings.HasPrefix(arg, "-") {
				return nil, fmt.Errorf("unknown flag: %s", arg)
			}
			opts.positional = append(opts.positional, arg)
		}
		if err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// loadConfig resolves the project directory and loads its configuration
func loadConfig(dir, configPath string) (string, *config.Config, error) {
	if dir == "" {
		dir = "."
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", nil, fmt.Errorf("directory does not exist: %s", dir)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromDir(absDir)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	return absDir, cfg, nil
}
