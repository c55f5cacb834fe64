// predict labels one image with a trained model artifact.
//
// Usage:
//
//	predict [--model path] [--config path] <image_path>
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"petclassifier/classifier"
	"petclassifier/config"
)

var errUsage = errors.New("usage")

func newRootCmd() *cobra.Command {
	var modelPath, configPath string
	cmd := &cobra.Command{
		Use:           "predict <image_path>",
		Short:         "Classify an image as cat or dog",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString())
				return errUsage
			}
			path := modelPath
			if path == "" {
				// a missing config file falls back to defaults and PETCLF_* overrides
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				path = cfg.ML.ModelPath
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Loading model...")
			predictor, err := classifier.Load(path)
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "\nPrediction result:")
			fmt.Fprintln(cmd.OutOrStdout(), predictor.PredictImage(args[0], cmd.ErrOrStderr()))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&modelPath, "model", "m", "", "model artifact path, relative paths resolve next to the executable")
	f.StringVarP(&configPath, "config", "c", config.DefaultPath, "config file supplying ml.model_path when --model is unset")
	return cmd
}

// run executes the command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
