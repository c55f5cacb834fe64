// train_model downloads the cats and dogs corpus, fits a random forest on
// grayscale pixel features and saves the model artifact.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"petclassifier/config"
	"petclassifier/db"
	"petclassifier/logging"
	"petclassifier/storage"
	"petclassifier/training"
)

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "train_model",
		Short:         "Train the cat/dog classifier and save the model artifact",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "config file path")
	return cmd
}

func runTrain(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []training.Option{training.WithOutput(cmd.OutOrStdout())}
	if cfg.Storage.Enabled() {
		store, err := storage.Dial(cfg.Storage)
		if err != nil {
			logger.Warn("artifact publishing disabled", zap.Error(err))
		} else {
			opts = append(opts, training.WithPublisher(store))
		}
	}
	if cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			logger.Warn("training log disabled", zap.String("path", cfg.Database.Path), zap.Error(err))
		} else {
			defer store.Close()
			opts = append(opts, training.WithRecorder(store))
		}
	}

	if _, err := training.New(cfg, logger, opts...).Run(ctx); err != nil {
		logger.Error("training failed", zap.Error(err))
		return err
	}
	return nil
}

// run executes the command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
