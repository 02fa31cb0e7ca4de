package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/pbrgen/internal/pipeline"
	"github.com/MeKo-Tech/pbrgen/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the PBR generation API for a materials directory",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().String("root", "./materials", "Materials root directory")
	serveCmd.Flags().StringSlice("uploads", nil, "Directories searched for new material uploads (default: the root)")
	serveCmd.Flags().IntP("workers", "w", 1, "Parallel workers per generation request")
	serveCmd.Flags().Int("max-concurrent-generations", 1, "Max concurrent generation requests")
	serveCmd.Flags().Duration("generation-timeout", 10*time.Minute, "Timeout per generation request")
	serveCmd.Flags().String("color-mode", "move", "How plain albedos get their _Color name (move, copy)")
	addChannelFlags(serveCmd)

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("serve.addr", "addr")
	mustBind("serve.root", "root")
	mustBind("serve.uploads", "uploads")
	mustBind("serve.workers", "workers")
	mustBind("serve.max_concurrent_generations", "max-concurrent-generations")
	mustBind("serve.generation_timeout", "generation-timeout")
	mustBind("serve.color_mode", "color-mode")
	bindChannelFlags(serveCmd, "serve")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	root := viper.GetString("serve.root")
	workers := viper.GetInt("serve.workers")
	maxConc := viper.GetInt("serve.max_concurrent_generations")
	genTimeout := viper.GetDuration("serve.generation_timeout")

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat materials root %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("materials root %s is not a directory", root)
	}

	opts, err := channelOptions("serve")
	if err != nil {
		return err
	}
	opts.ColorMode, err = pipeline.ParseColorMode(viper.GetString("serve.color_mode"))
	if err != nil {
		return err
	}

	cat, err := openCatalog()
	if err != nil {
		return err
	}
	var apiCatalog server.Catalog
	if cat != nil {
		defer cat.Close()
		apiCatalog = cat
	}

	api, err := server.NewMaterials(server.MaterialsConfig{
		Root:                     root,
		UploadDirs:               viper.GetStringSlice("serve.uploads"),
		Options:                  opts,
		Workers:                  workers,
		MaxConcurrentGenerations: maxConc,
		GenerationTimeout:        genTimeout,
	}, apiCatalog, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	api.Register(mux)

	// Generated files are served read-only below /materials/.
	mux.Handle("/materials/", http.StripPrefix("/materials/", http.FileServer(http.Dir(root))))

	logger.Info("pbr server listening",
		"addr", addr,
		"root", root,
		"catalog", viper.GetString("catalog"),
		"max_concurrent_generations", maxConc,
	)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
