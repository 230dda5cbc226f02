package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openbmp/mrt2bmp/internal/config"
	"github.com/openbmp/mrt2bmp/internal/logging"
	"github.com/openbmp/mrt2bmp/internal/metrics"
	"github.com/openbmp/mrt2bmp/internal/mirror"
	"github.com/openbmp/mrt2bmp/internal/supervisor"
	"go.uber.org/zap"
)

const (
	exitOK     = 0
	exitUsage  = 1
	exitConfig = 2
)

type options struct {
	configPath string
	local      string // -r: replay already-staged files
	routeviews string // --rv: sync from RouteViews
	ripe       string // --rp: sync from RIPE RIS
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func printUsage() {
	fmt.Println("Usage: mrt2bmp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -c, --config FILE       Path to configuration YAML file")
	fmt.Println("  -r, --router NAME       Replay locally staged MRT files for NAME")
	fmt.Println("  --rv, --routeviews NAME Sync NAME from the RouteViews mirror")
	fmt.Println("  --rp, --ripe NAME       Sync NAME from the RIPE RIS mirror")
	fmt.Println("  -h, --help              Show this help")
	fmt.Println()
	fmt.Println("Pass NAME = list with --rv or --rp to print available routers.")
}

func parseArgs(args []string, opts *options) (helpRequested bool, err error) {
	for i := 0; i < len(args); i++ {
		takeValue := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("option %s requires a value", args[i])
			}
			i++
			return args[i], nil
		}

		switch args[i] {
		case "-c", "--config":
			if opts.configPath, err = takeValue(); err != nil {
				return false, err
			}
		case "-r", "--router":
			if opts.local, err = takeValue(); err != nil {
				return false, err
			}
		case "--rv", "--routeviews":
			if opts.routeviews, err = takeValue(); err != nil {
				return false, err
			}
		case "--rp", "--ripe":
			if opts.ripe, err = takeValue(); err != nil {
				return false, err
			}
		case "-h", "--help":
			return true, nil
		default:
			return false, fmt.Errorf("unknown option: %s", args[i])
		}
	}
	return false, nil
}

func run(args []string) int {
	var opts options
	help, err := parseArgs(args, &opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		printUsage()
		return exitUsage
	}
	if help {
		printUsage()
		return exitOK
	}

	modes := 0
	for _, v := range []string{opts.local, opts.routeviews, opts.ripe} {
		if v != "" {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "exactly one of -r, --rv, --rp is required")
		return exitConfig
	}

	// "list" prints the mirror's routers and exits; no config needed.
	if opts.routeviews == "list" {
		return listRouters(mirror.NewRouteViews())
	}
	if opts.ripe == "list" {
		return listRouters(mirror.NewRIPE())
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return exitConfig
	}

	var m mirror.Mirror
	var routerName string
	switch {
	case opts.local != "":
		routerName = opts.local
	case opts.routeviews != "":
		routerName = opts.routeviews
		m = mirror.NewRouteViews()
	case opts.ripe != "":
		routerName = opts.ripe
		m = mirror.NewRIPE()
	}

	logs, err := logging.New(cfg.Logging, routerName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		return exitConfig
	}
	defer logs.Sync()

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var router mirror.Router
	if m != nil {
		router, err = resolveRouter(ctx, m, routerName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitConfig
		}
	}

	logger := logs.Root()
	logger.Info("starting mrt2bmp",
		zap.String("router", routerName),
		zap.String("collector", cfg.Collector.Host),
		zap.Int("port", cfg.Collector.Port),
	)

	sup := supervisor.New(cfg, routerName, m, router, logs)
	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("pipeline failed", zap.Error(err))
		return exitUsage
	}

	logger.Info("mrt2bmp stopped")
	return exitOK
}

func listRouters(m mirror.Mirror) int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	routers, err := m.ListRouters(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing %s routers: %v\n", m.Name(), err)
		return exitUsage
	}
	for _, r := range routers {
		fmt.Println(r.Name)
	}
	return exitOK
}

func resolveRouter(ctx context.Context, m mirror.Mirror, name string) (mirror.Router, error) {
	routers, err := m.ListRouters(ctx)
	if err != nil {
		return mirror.Router{}, fmt.Errorf("listing %s routers: %w", m.Name(), err)
	}
	for _, r := range routers {
		if r.Name == name {
			return r, nil
		}
	}
	return mirror.Router{}, fmt.Errorf("router %q not found on %s (use NAME = list to enumerate)", name, m.Name())
}
