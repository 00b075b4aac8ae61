package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/livetemplate/sandbox/internal/bus"
	"github.com/livetemplate/sandbox/internal/preview"
	"github.com/livetemplate/sandbox/internal/registry"
	"github.com/livetemplate/sandbox/internal/server"
	"github.com/livetemplate/sandbox/internal/store"
)

// ServeCommand implements the serve command.
func ServeCommand(args []string) error {
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
	if opts.configPath != "" {
		fmt.Printf("Using config: %s\n", opts.configPath)
	}

	// CLI flags override config
	if opts.port != "" {
		port, err := strconv.Atoi(opts.port)
		if err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("invalid port: %s", opts.port)
		}
		cfg.Server.Port = port
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.watch != nil {
		cfg.Watch = *opts.watch
	}
	if opts.debug {
		cfg.Debug = true
	}

	reg, err := registry.FromConfig(cfg, absDir)
	if err != nil {
		return fmt.Errorf("failed to load demos: %w", err)
	}
	defer reg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.New()
	hub := server.NewHub(cfg.Debug)
	st := store.New(cfg, reg, b,
		store.WithProgress(hub),
		store.WithRouter(hub),
		store.WithDebug(cfg.Debug),
	)
	detach := st.Attach(ctx)
	defer func() {
		detach()
		st.Wait()
	}()

	relay := preview.NewRelay(st, b, cfg.Render.GetDebounce(), cfg.Debug)
	defer relay.Close()

	srv := server.New(cfg, st, reg, b, relay, server.WithHub(hub))
	defer srv.Close()

	fmt.Printf("%s\n\n", cfg.Title)
	fmt.Printf("Serving: %s\n", absDir)
	fmt.Printf("\nDemos:\n")
	names := reg.Names()
	if len(names) == 0 {
		fmt.Printf("  (none found in %s)\n", cfg.GetDemosDir(absDir))
	}
	for _, name := range names {
		fmt.Printf("  /%s\n", name)
	}

	if cfg.Watch {
		demosDir := cfg.GetDemosDir(absDir)
		if err := srv.StartWatcher(demosDir); err != nil {
			return fmt.Errorf("failed to enable watch mode: %w", err)
		}
		fmt.Printf("\nWatch mode enabled - edit files in %s and the open demo reloads\n", demosDir)
	}

	fmt.Printf("\nServer running at http://%s\n", cfg.Server.Addr())
	fmt.Printf("Press Ctrl+C to stop\n\n")

	return srv.ListenAndServe(ctx)
}

func init() {
	log.SetFlags(0) // Remove timestamp from logs
}
