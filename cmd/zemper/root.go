package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/config"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/logging"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/services"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "zemper",
	Short: "Cut videos into parts, subtitle them and publish them",
	Long: `zemper splits long videos into parts, transcribes and burns subtitles,
reframes them for vertical platforms, writes AI captions and uploads the
results to YouTube, Google Drive, TikTok, Instagram and WhatsApp.

Run "zemper serve" for the HTTP API or use the commands below directly.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at info level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(visualizeCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(captionCmd)
	rootCmd.AddCommand(subsCmd)
	rootCmd.AddCommand(uploadCmd)
}

// app is what a command needs from the configuration
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	svc    *services.Services
}

// newApp loads the configuration and wires the services. CLI commands pass
// quiet so zap only reports warnings over the progress bar.
func newApp(quiet bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Server.Production)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if quiet && !verbose {
		logger = logging.Quiet(logger)
	}

	store := storage.NewManager(cfg.Storage.BasePath, cfg.Storage.OutputDir, cfg.Storage.CredentialsDir, logger)
	if err := store.Initialize(); err != nil {
		return nil, err
	}

	svc, err := services.NewServices(store, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, svc: svc}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// interruptible runs fn holding the busy flag. Ctrl-C requests a stop,
// which cancels ctx and kills the external tools.
func (a *app) interruptible(fn func(ctx context.Context) error) error {
	if err := a.svc.Flags.TryAcquire(); err != nil {
		return err
	}
	defer a.svc.Flags.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.svc.Stopper.Bind(cancel)
	defer a.svc.Stopper.Unbind()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	go func() {
		select {
		case <-sig:
			fmt.Fprintln(os.Stderr, "\nStopping...")
			a.svc.Stopper.Stop()
		case <-ctx.Done():
		}
	}()

	return fn(ctx)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
