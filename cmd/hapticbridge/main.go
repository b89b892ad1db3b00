package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/guidoenr/hapticbridge/internal/app"
	"github.com/guidoenr/hapticbridge/internal/audio"
	"github.com/guidoenr/hapticbridge/internal/params"
	"github.com/guidoenr/hapticbridge/internal/web"
)

func main() {
	var (
		deviceName = flag.String("audio-device", "", "Optional PortAudio device name (substring match)")
		bufferSize = flag.Int("buffer-size", 4096, "Capture window in samples")
		tickHz     = flag.Float64("tick-hz", 120, "Control tick rate")
		analysisHz = flag.Float64("analysis-hz", 200, "Audio analysis rate")
		tickSource = flag.String("tick-source", "timer", "What drives the control tick (timer|telemetry)")
		listenAddr = flag.String("listen", ":8080", "Control surface address (empty to disable)")
		configPath = flag.String("config", params.DefaultPath(), "Tunables JSON file")
		noAudio    = flag.Bool("no-audio", false, "Run with synthetic features (for testing)")
		debug      = flag.Bool("debug", false, "Enable verbose logging")
		showStatus = flag.Bool("status", true, "Display status bar")
		profile    = flag.String("profile", "", "Append per-tick timings as CSV to this file")
		listDevs   = flag.Bool("list-audio-devices", false, "List available audio input devices and exit")
	)

	flag.Parse()

	if *tickHz <= 0 || *tickHz > 1000 {
		log.Fatalf("tick-hz must be in (0, 1000] (got %.2f)", *tickHz)
	}
	if *analysisHz <= 0 || *analysisHz > 1000 {
		log.Fatalf("analysis-hz must be in (0, 1000] (got %.2f)", *analysisHz)
	}
	if *bufferSize <= 0 {
		log.Fatalf("buffer-size must be positive (got %d)", *bufferSize)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stdout, "[hapticbridge] ", log.LstdFlags)
	if !*debug {
		logger.SetOutput(os.Stderr)
		logger.SetFlags(0)
	}

	needAudio := !*noAudio || *listDevs
	if needAudio {
		if err := audio.Initialize(); err != nil {
			logger.Fatalf("failed to initialize PortAudio: %v", err)
		}
		defer func() {
			if err := audio.Terminate(); err != nil {
				logger.Printf("%v", err)
			}
		}()
	}

	if *listDevs {
		devices, err := audio.ListDevices()
		if err != nil {
			logger.Fatalf("list devices: %v", err)
		}
		fmt.Printf("\n=== Audio Input Devices ===\n\n")
		for _, dev := range devices {
			markers := ""
			if dev.Preferred {
				markers += " (auto)"
			}
			if dev.IsDefaultInput {
				markers += " (default)"
			}
			if dev.Loopback {
				markers += " (loopback)"
			}
			fmt.Printf("- %s [%s]%s\n    inputs:%d outputs:%d sample:%.0f Hz score:%d\n",
				dev.Name, dev.HostAPI, markers, dev.MaxInput, dev.MaxOutput, dev.DefaultSampleHz, dev.Score)
		}
		if len(devices) == 0 {
			fmt.Println("no input devices found")
		}
		return
	}

	initial := params.Defaults()
	if loaded, err := params.Load(*configPath); err == nil {
		initial = loaded
		logger.Printf("loaded tunables from %s", *configPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		logger.Printf("ignoring %s: %v", *configPath, err)
	}
	store := params.NewStore(initial)

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	a, err := app.New(app.Config{
		DeviceName:    *deviceName,
		BufferSize:    *bufferSize,
		TickHz:        *tickHz,
		AnalysisHz:    *analysisHz,
		TickSource:    app.TickSource(*tickSource),
		DisableAudio:  *noAudio,
		ShowStatusBar: *showStatus && term.IsTerminal(int(os.Stdout.Fd())),
		Interactive:   interactive,
		ProfilePath:   *profile,
		Store:         store,
		Log:           logger,
	})
	if err != nil {
		logger.Fatalf("failed to create app: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup error: %v\n", err)
		}
	}()

	if *listenAddr != "" {
		srv := web.NewServer(a, *configPath, logger)
		a.AddSink(srv)
		go func() {
			if err := srv.Start(ctx, *listenAddr); err != nil {
				logger.Printf("%v", err)
				cancel()
			}
		}()
	}

	if interactive {
		logger.Printf("keys: q quit, f ffb test, a toggle audio fallback")
	}

	if err := a.Run(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nExiting...")
			return
		}
		logger.Fatalf("runtime error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
}
