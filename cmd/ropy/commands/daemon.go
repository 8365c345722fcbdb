package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Atharva-Kanherkar/ropy/internal/clipboard"
	"github.com/Atharva-Kanherkar/ropy/internal/config"
	"github.com/Atharva-Kanherkar/ropy/internal/daemon"
	"github.com/Atharva-Kanherkar/ropy/internal/notify"
	"github.com/Atharva-Kanherkar/ropy/internal/platform"
	"github.com/Atharva-Kanherkar/ropy/internal/printer"
	"github.com/Atharva-Kanherkar/ropy/internal/storage"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	Aliases: []string{"d"},
	Short:   "Start the clipboard daemon",
	Long: `Watch the clipboard, record every new copy, and serve history to the
other ropy commands over a Unix socket. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runDaemon(cfg)
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cfg *config.Config) error {
	if notify.Running(cfg.SocketPath) {
		return printer.Error(
			"ropy daemon is already running",
			fmt.Sprintf("Another daemon is listening on %s.", cfg.SocketPath),
			[]string{"Stop it first, or pass --socket and a different storage_path to run a second one."},
		)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("ropy starting...")

	plat, err := platform.Detect()
	if err != nil {
		return fmt.Errorf("failed to detect platform: %w", err)
	}
	log.Printf("Platform detected: %s", plat)
	for _, warning := range plat.CheckRequirements() {
		log.Printf("[ropy] %s", warning)
	}

	cb, watcher, err := openClipboard(cfg, plat)
	if err != nil {
		return err
	}

	// A store that can't be opened is not fatal: history is kept in
	// memory for this session instead.
	var store *storage.Store
	if err := cfg.EnsureStorageDir(); err != nil {
		log.Printf("[ropy] Failed to create storage directory: %v", err)
	} else if store, err = storage.New(cfg.StoragePath); err != nil {
		log.Printf("[ropy] Failed to initialize storage: %v", err)
		store = nil
	}
	if store != nil {
		defer store.Close()
		log.Printf("Storage initialized at: %s", cfg.StoragePath)
	} else if cfg.DesktopNotifications {
		notify.NewDesktopNotifier().Send(context.Background(),
			"Clipboard history is not being saved",
			"ropy could not open its database; history will be lost when it exits.",
			notify.UrgencyCritical)
	}

	manager, err := daemon.NewManager(cfg, cb, watcher, store)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}

	server := notify.NewSocketServer(cfg.SocketPath, manager)
	if err := server.Start(); errors.Is(err, notify.ErrAlreadyRunning) {
		manager.Stop()
		return err
	} else if err != nil {
		log.Printf("[socket] %v (CLI commands will not reach this daemon)", err)
	} else {
		defer server.Stop()
		manager.OnRecordAdded(server.RecordAdded)
		manager.OnRecordDeleted(server.RecordDeleted)
		manager.OnCleared(server.HistoryCleared)
		log.Printf("[socket] Listening on %s", cfg.SocketPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	manager.Start(ctx)

	log.Println("ropy running. Press Ctrl+C to stop.")

	sig := <-sigChan
	log.Printf("Received signal %v, shutting down...", sig)

	cancel()
	if err := manager.Stop(); err != nil {
		log.Printf("[ropy] %v", err)
	}

	if store != nil {
		if stats, err := store.Stats(); err == nil {
			log.Printf("Session stats: %d records stored", stats.TotalRecords)
		}
	}

	log.Println("ropy stopped.")
	return nil
}

// openClipboard picks the clipboard backend named in cfg. "auto" prefers
// the native backend and falls back to the command-line tools.
func openClipboard(cfg *config.Config, plat *platform.Platform) (clipboard.Clipboard, clipboard.Watcher, error) {
	switch cfg.ClipboardBackend {
	case config.BackendMemory:
		log.Println("[clipboard] Using in-memory clipboard")
		m := clipboard.NewMemory()
		return m, m, nil

	case config.BackendNative:
		n, err := clipboard.NewNative()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize native clipboard: %w", err)
		}
		log.Println("[clipboard] Using native clipboard")
		return n, n, nil

	case config.BackendExec:
		if !plat.CanExecClipboard() {
			return nil, nil, fmt.Errorf("no clipboard tools found for %s", plat.DisplayServer)
		}
		e := clipboard.NewExec(plat, cfg.PollInterval())
		log.Printf("[clipboard] Using clipboard tools (polling every %s)", cfg.PollInterval())
		return e, e, nil
	}

	n, err := clipboard.NewNative()
	if err == nil {
		log.Println("[clipboard] Using native clipboard")
		return n, n, nil
	}
	log.Printf("[clipboard] Native clipboard unavailable: %v", err)

	if plat.CanExecClipboard() {
		e := clipboard.NewExec(plat, cfg.PollInterval())
		log.Printf("[clipboard] Using clipboard tools (polling every %s)", cfg.PollInterval())
		return e, e, nil
	}

	log.Println("[clipboard] No system clipboard available, using in-memory clipboard")
	m := clipboard.NewMemory()
	return m, m, nil
}
