package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanutb/AnanBot/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP chat server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitErr("failed to load config", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		addr, _, err := server.Start(ctx, cfg)
		if err != nil {
			exitErr("failed to start server", err)
		}
		log.Printf("AnanBot listening at http://%s", addr)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down gracefully...")
		cancel()
		time.Sleep(1 * time.Second)
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}
