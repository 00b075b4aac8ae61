package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livetemplate/sandbox/internal/demo"
	"github.com/livetemplate/sandbox/internal/registry"
)

// defaultTimeout bounds demo resolution for CLI commands
const defaultTimeout = 30 * time.Second

// ShowCommand prints one demo definition.
// Usage: sandbox show <demo> [directory] [--format json|yaml]
func ShowCommand(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	if len(opts.positional) == 0 {
		return errors.New("usage: sandbox show <demo> [directory] [--format json|yaml]")
	}
	name := opts.positional[0]
	var dir string
	if len(opts.positional) > 1 {
		dir = opts.positional[1]
	}

	absDir, cfg, err := loadConfig(dir, opts.configPath)
	if err != nil {
		return err
	}
	reg, err := registry.FromConfig(cfg, absDir)
	if err != nil {
		return fmt.Errorf("failed to load demos: %w", err)
	}
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	def, err := reg.Resolve(ctx, demo.Named(name))
	if err != nil {
		if errors.Is(err, registry.ErrDemoNotFound) {
			return fmt.Errorf("demo %q not found", name)
		}
		return fmt.Errorf("%s: %w", registry.UserFriendlyMessage(err), err)
	}

	switch opts.format {
	case "", "yaml":
		return writeYAML(def)
	case "json":
		return writeJSON(def)
	default:
		return fmt.Errorf("unsupported format: %s", opts.format)
	}
}
