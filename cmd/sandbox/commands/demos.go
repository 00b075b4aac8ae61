package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/livetemplate/sandbox/internal/registry"
)

// DemosCommand lists the demos a project provides.
// Usage: sandbox demos [directory] [--format text|json|yaml]
func DemosCommand(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	var dir string
	if len(opts.positional) > 0 {
		dir = opts.positional[0]
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

	links := reg.Links()
	switch opts.format {
	case "", "text":
		if len(links) == 0 {
			fmt.Println("No demos found.")
			return nil
		}
		for _, l := range links {
			fmt.Printf("%-20s %s\n", l.Name, l.Title)
		}
		return nil
	case "json":
		return writeJSON(links)
	case "yaml":
		return writeYAML(links)
	default:
		return fmt.Errorf("unsupported format: %s", opts.format)
	}
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

