package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	trainCSV      string
	trainVariant  string
	trainModelDir string
	trainSamples  int
)

// trainCmd represents the train command
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the model and write the artifact pair",
	Long: `Train generates labelled claims (or maps an external CSV), standardizes and
one-hot encodes them, balances the classes with SMOTE, fits the boosted
trees and writes transformer.json and classifier.json to the model directory.

--variant overrides pipeline.variant; serve the result with the same
pipeline.variant (or KESTREL_PIPELINE_VARIANT).

Example:
  kestrel train
  kestrel train --variant coverage --csv insurance_claims.csv`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVar(&trainCSV, "csv", "", "train on an external claims CSV instead of synthetic data")
	trainCmd.Flags().StringVar(&trainVariant, "variant", "", "pipeline variant (kerala, regional, coverage)")
	trainCmd.Flags().StringVar(&trainModelDir, "model-dir", "", "artifact directory (default: model.dir)")
	trainCmd.Flags().IntVar(&trainSamples, "samples", 0, "synthetic sample count (default: pipeline.samples)")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile, trainVariant)
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging, os.Stderr)

	if trainSamples > 0 {
		cfg.Pipeline.Samples = trainSamples
	}
	dir := cfg.Model.Dir
	if trainModelDir != "" {
		dir = trainModelDir
	}

	model, err := trainAndSave(context.Background(), cfg.Pipeline, trainCSV, dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Trained %s model on %d %s claims (fraud rate %.3f)\n",
		model.Meta.Variant, model.Meta.Samples, model.Meta.Source, model.Meta.FraudRate)
	fmt.Fprintf(out, "  balance:  %s (+%d synthetic rows)\n", model.Meta.BalanceStrategy, model.Meta.SyntheticRows)
	fmt.Fprintf(out, "  features: %d\n", model.Preprocessor.Width())
	fmt.Fprintf(out, "  trees:    %d\n", len(model.Classifier.Trees))
	fmt.Fprintf(out, "  saved to: %s\n", dir)
	return nil
}
