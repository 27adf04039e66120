package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jgoulah/tempirobridge/internal/elpris"
	"github.com/jgoulah/tempirobridge/internal/server"
	"github.com/jgoulah/tempirobridge/internal/syncer"
	"github.com/jgoulah/tempirobridge/internal/tempiro"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard server with hourly background sync",
	Long: `Starts the HTTP server and a background loop that syncs recent energy
readings and spot prices every hour. This is the mode the Home Assistant
add-on runs in.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	vendor := tempiro.New(cfg.Tempiro.BaseURL, cfg.Tempiro.Username, cfg.Tempiro.Password)
	prices := elpris.New("")
	sy := syncer.New(db, vendor, prices, cfg.GetPriceArea())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sy.Run(ctx, cfg.GetSyncInterval())
	}()

	handlers := server.NewHandlers(db, sy, vendor, prices, cfg.GetPriceArea())
	srv := server.NewServer(cfg.ListenAddr(), handlers.Router())
	err = srv.Run(ctx)

	stop()
	wg.Wait()
	logrus.Info("shut down")
	return err
}
