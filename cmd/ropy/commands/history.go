package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Atharva-Kanherkar/ropy/internal/config"
	"github.com/Atharva-Kanherkar/ropy/internal/notify"
	"github.com/Atharva-Kanherkar/ropy/internal/printer"
	"github.com/Atharva-Kanherkar/ropy/internal/storage"
)

const requestTimeout = 5 * time.Second

var listLimit int

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show recent clipboard history",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(h historyAccess) error {
			records, err := h.list(listLimit)
			if err != nil {
				return err
			}
			printer.Records(records)
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Search text history (case-insensitive)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(h historyAccess) error {
			records, err := h.search(args[0])
			if err != nil {
				return err
			}
			printer.Records(records)
			return nil
		})
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy <id>",
	Short: "Put a history entry back on the clipboard",
	Long: `Put a history entry back on the clipboard. This needs a running daemon,
since it owns the clipboard.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := request(cfg, notify.Message{Type: notify.TypeCopy, ID: id}); err != nil {
			if errors.Is(err, errNoDaemon) {
				return daemonRequired(cfg)
			}
			return printer.Error("Copy failed", err.Error(), nil)
		}
		printer.Success("Copied %d to the clipboard\n", id)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a history entry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withHistory(func(h historyAccess) error {
			deleted, err := h.delete(id)
			if err != nil {
				return err
			}
			if !deleted {
				printer.Warning("No entry with id %d\n", id)
				return nil
			}
			printer.Success("Deleted %d\n", id)
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all clipboard history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(h historyAccess) error {
			if err := h.clear(); err != nil {
				return err
			}
			printer.Success("History cleared\n")
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show history statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(h historyAccess) error {
			stats, err := h.stats()
			if err != nil {
				return err
			}
			printer.Stats(stats)
			return nil
		})
	},
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "number of entries to show (0 = all)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(statsCmd)
}

func parseID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, printer.Error(
			"Invalid id",
			fmt.Sprintf("%q is not a history id.", arg),
			[]string{"Run 'ropy list' to see ids."},
		)
	}
	return id, nil
}

var errNoDaemon = errors.New("daemon not running")

// request sends one message to the daemon and returns its result.
func request(cfg *config.Config, msg notify.Message) (notify.Message, error) {
	client := notify.NewSocketClient()
	if err := client.Connect(cfg.SocketPath); err != nil {
		return notify.Message{}, fmt.Errorf("%w: %v", errNoDaemon, err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return client.Request(ctx, msg)
}

func daemonRequired(cfg *config.Config) error {
	return printer.Error(
		"ropy daemon is not running",
		fmt.Sprintf("Nothing is listening on %s.", cfg.SocketPath),
		[]string{"Start it with 'ropy daemon'."},
	)
}

// historyAccess is what the read/maintenance commands need. It is served
// by the daemon when one is running, and by the store file otherwise.
type historyAccess interface {
	list(limit int) ([]storage.Record, error)
	search(keyword string) ([]storage.Record, error)
	delete(id uint64) (bool, error)
	clear() error
	stats() (storage.Stats, error)
}

func withHistory(fn func(historyAccess) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := notify.NewSocketClient()
	if err := client.Connect(cfg.SocketPath); err == nil {
		defer client.Close()
		if err := fn(&daemonHistory{client: client}); err != nil {
			return printer.Error("Request failed", err.Error(), nil)
		}
		return nil
	}

	// No daemon: work on the database directly.
	if _, err := os.Stat(filepath.Join(cfg.StoragePath, "ropy.db")); err != nil {
		return printer.Error(
			"No clipboard history found",
			fmt.Sprintf("There is no daemon on %s and no database in %s.", cfg.SocketPath, cfg.StoragePath),
			[]string{"Start the daemon with 'ropy daemon'."},
		)
	}
	store, err := storage.New(cfg.StoragePath)
	if err != nil {
		return printer.Error("Failed to open history", err.Error(), nil)
	}
	defer store.Close()

	if err := fn(&storeHistory{store: store}); err != nil {
		return printer.Error("Request failed", err.Error(), nil)
	}
	return nil
}

type daemonHistory struct {
	client *notify.SocketClient
}

func (d *daemonHistory) do(msg notify.Message) (notify.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return d.client.Request(ctx, msg)
}

func (d *daemonHistory) list(limit int) ([]storage.Record, error) {
	res, err := d.do(notify.Message{Type: notify.TypeList, Limit: limit})
	return res.Records, err
}

func (d *daemonHistory) search(keyword string) ([]storage.Record, error) {
	res, err := d.do(notify.Message{Type: notify.TypeSearch, Keyword: keyword})
	return res.Records, err
}

func (d *daemonHistory) delete(id uint64) (bool, error) {
	res, err := d.do(notify.Message{Type: notify.TypeDelete, ID: id})
	return res.Deleted, err
}

func (d *daemonHistory) clear() error {
	_, err := d.do(notify.Message{Type: notify.TypeClear})
	return err
}

func (d *daemonHistory) stats() (storage.Stats, error) {
	res, err := d.do(notify.Message{Type: notify.TypeStats})
	if err != nil || res.Stats == nil {
		return storage.Stats{}, err
	}
	return *res.Stats, nil
}

type storeHistory struct {
	store *storage.Store
}

func (s *storeHistory) list(limit int) ([]storage.Record, error) {
	if limit <= 0 {
		return s.store.All()
	}
	return s.store.Recent(limit)
}

func (s *storeHistory) search(keyword string) ([]storage.Record, error) {
	return s.store.Search(keyword)
}

func (s *storeHistory) delete(id uint64) (bool, error) {
	return s.store.Delete(id)
}

func (s *storeHistory) clear() error {
	return s.store.Clear()
}

func (s *storeHistory) stats() (storage.Stats, error) {
	return s.store.Stats()
}
