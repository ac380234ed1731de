package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/ledgate/internal/common"
	"example.com/ledgate/internal/config"
	"example.com/ledgate/internal/server"
	"example.com/ledgate/internal/store"
)

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func setupLogging(cfg config.Config) (io.Closer, error) {
	rotator, err := common.RotatingFile(common.RotateOptions{
		Directory:  cfg.Logs.Directory,
		Name:       "ledd.log",
		MaxSizeMB:  cfg.Logs.MaxSizeMB,
		MaxAgeDays: cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	common.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return rotator, nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file (.yaml or .toml)")
	addr := flag.String("addr", "", "listen address (overrides config port)")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 10*time.Minute, "HTTP write timeout")
	noStore := flag.Bool("no-store", false, "do not persist decode runs")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		common.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		common.Fatalf("storage dir: %v", err)
	}
	logs, err := setupLogging(cfg)
	if err != nil {
		common.Fatalf("setup logging: %v", err)
	}
	defer logs.Close()
	st, err := cfg.Settings()
	if err != nil {
		common.Fatalf("settings: %v", err)
	}

	var db *store.Store
	if !*noStore {
		db, err = store.Open(cfg.Database)
		if err != nil {
			common.Fatalf("open store: %v", err)
		}
		defer db.Close()
	}
	srv, err := server.NewServer(server.Options{
		StorageDir:     cfg.StorageDir,
		Store:          db,
		EventLog:       common.NewEventLog(cfg.EventLog),
		MaxUploadBytes: cfg.MaxUploadMB << 20,
		Controller:     st.Controller,
		SampleRateHz:   cfg.SampleRateHz,
		AllowHighSpeed: cfg.HighSpeedAllowed(),
	})
	if err != nil {
		common.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if *addr != "" {
		listenAddr = *addr
	}
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	common.Logf("ledd listening on %s (default controller %s, settings %q)", listenAddr, st.Controller, st.Save())
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		common.Warnf("shutdown: %v", err)
	}
	common.Logf("ledd stopped")
}
