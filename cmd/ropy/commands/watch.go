package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Atharva-Kanherkar/ropy/internal/notify"
	"github.com/Atharva-Kanherkar/ropy/internal/printer"
	"github.com/Atharva-Kanherkar/ropy/internal/storage"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print history changes as they happen",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := notify.NewSocketClient()
		client.OnMessage(printEvent)
		if err := client.Connect(cfg.SocketPath); err != nil {
			return daemonRequired(cfg)
		}
		defer client.Close()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		printer.Step("Watching %s (Ctrl+C to stop)\n", cfg.SocketPath)
		select {
		case <-sigChan:
			return nil
		case <-client.Done():
			return printer.Error("Daemon went away", fmt.Sprintf("Lost connection to %s.", cfg.SocketPath), nil)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func printEvent(msg notify.Message) {
	switch msg.Type {
	case notify.TypeRecordAdded:
		if msg.Record != nil {
			printer.Records([]storage.Record{*msg.Record})
		}
	case notify.TypeRecordDeleted:
		printer.Info("deleted %d\n", msg.ID)
	case notify.TypeHistoryCleared:
		printer.Info("history cleared\n")
	}
}
