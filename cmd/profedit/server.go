package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/profedit/internal/account"
	"github.com/kalambet/profedit/internal/api"
	"github.com/kalambet/profedit/internal/config"
	"github.com/kalambet/profedit/internal/editor"
	"github.com/kalambet/profedit/internal/logger"
	"github.com/kalambet/profedit/internal/remote"
	"github.com/kalambet/profedit/internal/session"
	"github.com/kalambet/profedit/internal/source"
	"github.com/kalambet/profedit/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local profile editing server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running profedit server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, store and session status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "profedit.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "profedit version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer log.Sync()

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	if serverRunning(cfg.Server.Port) {
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("profedit is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("profedit is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess := session.New(config.NewKeychain())
	if cfg.Session.Token != "" {
		if err := sess.Restore(cfg.Session.Token); err != nil {
			log.Warn("stored session is not usable", "error", err)
		}
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	client := remote.New(cfg.Store.BaseURL, sess, cfg.StoreTimeout())
	src := source.NewFallback(client, store, cfg.CacheMaxAge(), log)
	maxUpload := int64(cfg.Upload.MaxBytes)
	ctrl := editor.New(src, sess,
		editor.WithAssetBase(cfg.AssetBase()),
		editor.WithMaxUploadBytes(maxUpload),
		editor.WithLogger(log),
	)
	defer ctrl.Close()
	if err := ctrl.Activate(ctx); err != nil {
		return fmt.Errorf("starting editor: %w", err)
	}

	handler := api.NewAppHandler(api.AppDeps{
		Editor:         ctrl,
		Session:        sess,
		Accounts:       account.New(client, sess, ctrl, log),
		Log:            log,
		AllowedOrigins: cfg.Origins(),
		MaxUploadBytes: maxUpload,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr, "store", cfg.Store.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func serverRunning(port int) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("profedit is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop profedit (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to profedit (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	if serverRunning(cfg.Server.Port) {
		printStatus("Server", "running on port %d", cfg.Server.Port)
	} else {
		printStatus("Server", "stopped")
	}

	client := remote.New(cfg.Store.BaseURL, nil, cfg.StoreTimeout())
	if err := client.Ping(ctx); err != nil {
		printStatus("Store", "unreachable at %s", cfg.Store.BaseURL)
	} else {
		printStatus("Store", "reachable at %s", cfg.Store.BaseURL)
	}

	printStatus("Session", "%s", sessionLabel(cfg.Session.Token, time.Now))

	if store, err := storage.Open(cfg.Storage.DataDir); err == nil {
		snap, err := store.LoadSnapshot(ctx)
		switch {
		case err == nil:
			printStatus("Snapshot", "%s, saved %s", snap.Origin, snap.SavedAt.Local().Format(time.RFC1123))
		case errors.Is(err, storage.ErrNotFound):
			printStatus("Snapshot", "none")
		default:
			printStatus("Snapshot", "error: %v", err)
		}
		store.Close()
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// sessionLabel describes a stored credential without revealing it.
func sessionLabel(token string, now func() time.Time) string {
	sess := session.New(nil, session.WithClock(now))
	switch err := sess.Restore(token); {
	case errors.Is(err, session.ErrNoCredential):
		return "signed out"
	case errors.Is(err, session.ErrExpired):
		return "expired, run `profedit login`"
	case err != nil:
		return fmt.Sprintf("error: %v", err)
	}
	if exp := sess.ExpiresAt(); !exp.IsZero() {
		return fmt.Sprintf("signed in, expires %s", exp.Local().Format(time.RFC1123))
	}
	return "signed in"
}
