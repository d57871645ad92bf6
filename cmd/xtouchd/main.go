// xtouchd - exclusive touch panel input for two-player touch cabinets
//
//	xtouchd run          Read the panels and serve touch masks
//	xtouchd devices      List connected panels and which player takes each
//	xtouchd map <x> <y>  Show the zones a raw panel coordinate presses
//	xtouchd zones        List the sensor zones
//	xtouchd replay       Replay a journaled session through the mapper
//	xtouchd check        Validate a configuration file
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"xtouchd/internal/bridge"
	"xtouchd/internal/config"
	"xtouchd/internal/device"
	"xtouchd/internal/health"
	"xtouchd/internal/journal"
	"xtouchd/internal/logging"
	"xtouchd/internal/metrics"
	"xtouchd/internal/monitor"
	"xtouchd/internal/sensor"
	"xtouchd/internal/touch"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "run":
		cmdRun()
	case "devices":
		cmdDevices()
	case "map":
		cmdMap()
	case "zones":
		cmdZones()
	case "replay":
		cmdReplay()
	case "check":
		cmdCheck()
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`xtouchd - Exclusive touch panel input

USAGE:
    xtouchd <command> [options]

COMMANDS:
    run                 Read the panels and serve touch masks
    devices             List connected panels and which player takes each
    map <x> <y>         Show the zones a raw panel coordinate presses
    zones               List the sensor zones
    replay              Replay a journaled session through the mapper
    check               Validate a configuration file
    help                Show this help message

CONFIGURATION:
    The config file is searched for as xtouchd.toml, xtouchd.json or
    xtouchd.yaml in the config directory (override with XTOUCHD_CONFIG_DIR).
    Without one, 1P reads the first panel found and 2P has no input.

    Radius and contact timeout changes are applied without a restart.`)
}

func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return config.FindConfigFile()
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(cfg *config.Config) *logging.Logger {
	lc, err := cfg.Logging.LoggerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in logging config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(lc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgFlag := fs.String("config", "", "Config file (default: search the config directory)")
	listen := fs.String("listen", "", "Serve the monitor on this address")
	watch := fs.Bool("watch", true, "Apply config file changes while running")
	fs.Parse(os.Args[2:])

	path := configPath(*cfgFlag)
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.Enabled = true
		cfg.Server.Listen = *listen
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	defer logger.Close()
	logging.SetDefault(logger)

	if err := run(cfg, loader, path != "" && *watch, logger); err != nil {
		logger.Error("xtouchd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, loader *config.Loader, watch bool, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opener, closeOpener, err := openBackend(cfg.Touch.Backend)
	if err != nil {
		return err
	}
	defer closeOpener()

	registry := metrics.Default()
	checker := health.NewChecker()

	var recorder device.Recorder
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()

		sessionID, err := j.StartSession(cfg.Touch.Protocol, "")
		if err != nil {
			return err
		}
		defer j.EndSession(sessionID)

		w := journal.NewWriter(j, sessionID, cfg.Journal.BatchSize, cfg.Journal.FlushInterval(), logger)
		defer func() {
			w.Close()
			if n := w.Dropped(); n > 0 {
				logger.Warn("journal dropped events", "count", n)
			}
		}()
		recorder = w
		checker.RegisterFunc("journal", false, health.DatabaseCheck(j.Ping))
		logger.Info("journaling finger events", "path", cfg.Journal.Path, "session", sessionID)
	}

	b := bridge.New()
	system, err := touch.NewSystem(touch.Options{
		Config:   cfg,
		Opener:   opener,
		Bridge:   b,
		Registry: registry,
		Health:   checker,
		Recorder: recorder,
		Logger:   logger,
		Crash:    logging.NewCrashHandler(logging.DefaultCrashDir(), logger),
	})
	if err != nil {
		return err
	}
	if err := system.Start(ctx); err != nil {
		system.Close()
		return err
	}
	defer system.Close()

	loader.OnChange(func(old, new *config.Config) {
		system.Apply(new)
	})
	if watch {
		if err := loader.Watch(); err != nil {
			logger.Warn("config watch disabled", "error", err)
		} else {
			defer loader.Close()
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case err := <-loader.Errors():
						logger.Warn("config reload rejected", "error", err)
					}
				}
			}()
		}
	}

	hub := monitor.NewHub(logger)
	poller := monitor.NewPoller(b, system.Mapper().Table(), hub, cfg.Server.PollInterval())
	go poller.Run(ctx)

	if cfg.Server.Enabled {
		srv := monitor.NewServer(monitor.ServerConfig{
			Listen:   cfg.Server.Listen,
			Hub:      hub,
			Table:    system.Mapper().Table(),
			Registry: registry,
			Health:   checker,
			Logger:   logger,
		})
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	checker.SetReady(true)
	logger.Info("xtouchd running", "protocol", cfg.Touch.Protocol, "backend", cfg.Touch.Backend,
		"players", len(system.Players()), "hot_plug", cfg.Touch.HotPlug)

	<-ctx.Done()
	logger.Info("shutting down")
	checker.SetReady(false)
	return nil
}

func cmdDevices() {
	fs := flag.NewFlagSet("devices", flag.ExitOnError)
	cfgFlag := fs.String("config", "", "Config file")
	backend := fs.String("backend", "", "Device backend: usb or hid (default: from config)")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(configPath(*cfgFlag))
	if *backend != "" {
		cfg.Touch.Backend = *backend
	}

	protocol, err := device.ProtocolByName(cfg.Touch.Protocol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	opener, closeOpener, err := openBackend(cfg.Touch.Backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeOpener()

	d := protocol.Descriptor()
	infos, err := opener.List(d.VendorID, d.ProductID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing devices: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== %s panels (%04x:%04x, %s backend) ===\n", protocol.Name(), d.VendorID, d.ProductID, cfg.Touch.Backend)
	if len(infos) == 0 {
		fmt.Println("No panels found.")
	}
	for i, info := range infos {
		fmt.Printf("[%d] %s\n", i, info.Product)
		fmt.Printf("    Location: %s\n", info.Location)
		fmt.Printf("    Path:     %s\n", info.Path)
		if info.Serial != "" {
			fmt.Printf("    Serial:   %s\n", info.Serial)
		}
	}
	fmt.Println()

	players := cfg.Players
	if len(players) == 0 {
		players = []config.PlayerConfig{{Player: 1}}
	}
	for _, pc := range players {
		m := device.MatchFor(protocol, pc.Serial, pc.LocationPath)
		label := logging.PlayerLabel(pc.Player - 1)
		if i, ok := device.Select(infos, m); ok {
			fmt.Printf("%s: [%d] by %s\n", label, i, m.Strategy())
		} else {
			fmt.Printf("%s: no panel (%s)\n", label, m)
		}
	}
}

func cmdMap() {
	fs := flag.NewFlagSet("map", flag.ExitOnError)
	cfgFlag := fs.String("config", "", "Config file")
	radius := fs.Float64("radius", -1, "Contact radius in canvas units (default: from config)")
	fs.Parse(os.Args[2:])

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: xtouchd map [-radius r] <x> <y>")
		os.Exit(1)
	}
	x, errX := strconv.ParseFloat(fs.Arg(0), 64)
	y, errY := strconv.ParseFloat(fs.Arg(1), 64)
	if errX != nil || errY != nil {
		fmt.Fprintln(os.Stderr, "Coordinates must be numbers")
		os.Exit(1)
	}

	cfg := loadConfig(configPath(*cfgFlag))
	r := cfg.Touch.Radius
	if *radius >= 0 {
		r = *radius
	}
	mapper := mustMapper(cfg)

	p, ok := mapper.Canvas(x, y)
	if !ok {
		fmt.Printf("(%g, %g) is outside the panel range\n", x, y)
		return
	}
	mask := mapper.Map(x, y, r)
	fmt.Printf("Raw:    (%g, %g)\n", x, y)
	fmt.Printf("Canvas: (%.1f, %.1f)\n", p.X, p.Y)
	fmt.Printf("Radius: %g\n", r)
	fmt.Printf("Mask:   %#016x\n", mask)
	fmt.Printf("Zones:  %v\n", mapper.Table().Names(mask))
}

func mustMapper(cfg *config.Config) *sensor.Mapper {
	protocol, err := device.ProtocolByName(cfg.Touch.Protocol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	mapper, err := touch.NewMapper(protocol, cfg.Touch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return mapper
}

func cmdZones() {
	fs := flag.NewFlagSet("zones", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print zone polygons as JSON")
	fs.Parse(os.Args[2:])

	zones := sensor.DefaultTable().Zones()
	if *asJSON {
		out := make([]monitor.ZoneInfo, 0, len(zones))
		for _, z := range zones {
			info := monitor.ZoneInfo{Index: z.Index, Name: z.Name}
			for _, p := range z.Polygon {
				info.Polygon = append(info.Polygon, [2]float64{p.X, p.Y})
			}
			out = append(out, info)
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("=== Sensor zones (%dx%d canvas) ===\n", sensor.CanvasSize, sensor.CanvasSize)
	for _, z := range zones {
		fmt.Printf("[%2d] %-3s %d vertices, bit %#x\n", z.Index, z.Name, len(z.Polygon), uint64(1)<<uint(z.Index))
	}
}

func cmdReplay() {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	cfgFlag := fs.String("config", "", "Config file")
	session := fs.Int64("session", 0, "Session id (default: latest)")
	player := fs.Int("player", 0, "Player number, 0 for all")
	speed := fs.Float64("speed", 0, "Playback speed, 0 for no delay")
	radius := fs.Float64("radius", -1, "Re-map with this radius (default: from config)")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(configPath(*cfgFlag))
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening journal: %v\n", err)
		os.Exit(1)
	}
	defer j.Close()

	sid := *session
	if sid == 0 {
		sessions, err := j.Sessions()
		if err != nil || len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "No journaled sessions found")
			os.Exit(1)
		}
		sid = sessions[0].ID
	}

	events, err := j.Events(sid, *player-1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading events: %v\n", err)
		os.Exit(1)
	}

	r := cfg.Touch.Radius
	if *radius >= 0 {
		r = *radius
	}
	mapper := mustMapper(cfg)
	table := mapper.Table()

	rep := newReplayer(mapper, r, cfg.Touch.Timeout())

	fmt.Printf("=== Session %d: %d events ===\n", sid, len(events))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	changed := 0
	err = journal.Replay(ctx, events, *speed, func(e journal.Event) {
		mask, held, ok := rep.feed(e)
		if !ok {
			return
		}
		if e.Finger.Pressed && mask != e.Mask {
			changed++
		}

		state := "up  "
		if e.Finger.Pressed {
			state = "down"
		}
		fmt.Printf("%s %s finger %3d %s (%5d,%5d) -> %v\n",
			e.Time.Format("15:04:05.000"), logging.PlayerLabel(e.Player), e.Finger.ID, state,
			e.Finger.X, e.Finger.Y, table.Names(held))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Replay failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("%d presses map differently at radius %g than when recorded\n", changed, r)
}

func cmdCheck() {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	schema := fs.Bool("schema", false, "Print the JSON schema for config files")
	fs.Parse(os.Args[2:])

	if *schema {
		fmt.Println(config.Schema())
		return
	}

	path := fs.Arg(0)
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		fmt.Println("No config file found; defaults are in use.")
		return
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		os.Exit(1)
	}

	problems := config.Lint(cfg)
	for _, p := range problems.Warnings() {
		fmt.Printf("warning: %v\n", p)
	}
	for _, p := range problems.Errors() {
		fmt.Printf("error:   %v\n", p)
	}
	if problems.HasErrors() {
		os.Exit(1)
	}
	fmt.Printf("%s: ok\n", path)
}
