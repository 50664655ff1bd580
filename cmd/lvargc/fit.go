// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"latentgc/internal/analysis"
)

var (
	fitData    string
	fitForward string
	fitOut     string
	fitName    string
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit the latent VAR and test every region link",
	Long: `Fit the full latent VAR to the observations, then refit it once per
candidate region link with that link removed. Writes the result file, a
per-link CSV and a YAML manifest to the output directory.

The data CSV holds one column per channel and one row per sample. The
forward CSV holds one row per channel and one column per source, with the
eigenmodes of a region in adjacent columns.

Examples:
  lvargc fit --data y.csv --forward f.csv
  lvargc fit --data y.csv --forward f.csv --config lvargc.yaml --out results/`,
	RunE: runFit,
}

func init() {
	fitCmd.Flags().StringVar(&fitData, "data", "", "Observation CSV (samples x channels)")
	fitCmd.Flags().StringVar(&fitForward, "forward", "", "Mixing matrix CSV (channels x sources)")
	fitCmd.Flags().StringVar(&fitOut, "out", ".", "Output directory")
	fitCmd.Flags().StringVar(&fitName, "name", "", "Run name; overrides the config")
	_ = fitCmd.MarkFlagRequired("data")
	_ = fitCmd.MarkFlagRequired("forward")
	rootCmd.AddCommand(fitCmd)
}

func runFit(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	// 1. Load inputs
	y, _, err := LoadCSVMatrix(fitData)
	if err != nil {
		return err
	}
	f, sources, err := LoadCSVMatrix(fitForward)
	if err != nil {
		return err
	}
	samples, ny := y.Dims()
	logger.Info("loaded observations", "samples", samples, "channels", ny, "path", fitData)

	// 2. Build the analysis input
	in, err := buildInput(y, f, sources)
	if err != nil {
		return err
	}
	if fitName != "" {
		cfg.Name = fitName
	}
	in.Name = cfg.Name

	// 3. Run
	res, err := analysis.Run(ctx, in, cfg.Analysis(), logger)
	if err != nil {
		return err
	}

	// 4. Outputs
	if err := os.MkdirAll(fitOut, 0755); err != nil {
		return err
	}
	resultPath := filepath.Join(fitOut, cfg.Name+".lvg")
	linksPath := filepath.Join(fitOut, cfg.Name+"_links.csv")
	if err := res.Save(resultPath); err != nil {
		return fmt.Errorf("saving result: %w", err)
	}
	if err := WriteLinksCSV(linksPath, res); err != nil {
		return fmt.Errorf("writing links: %w", err)
	}
	manifest := Manifest{
		RunID:      res.RunID,
		Name:       res.Name,
		CreatedAt:  res.CreatedAt,
		Data:       fitData,
		Forward:    fitForward,
		Result:     resultPath,
		Links:      linksPath,
		Regions:    res.Regions,
		Channels:   res.Channels,
		Samples:    res.Samples,
		Segments:   len(res.Segments),
		Unfinished: res.NotConverged(),
		Config:     cfg,
	}
	if err := WriteManifest(filepath.Join(fitOut, cfg.Name+".yaml"), manifest); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	logger.Info("results written", "result", resultPath, "links", linksPath)

	return PrintSummary(cmd.OutOrStdout(), res, inspectAlpha)
}

// buildInput checks the shapes and derives region labels from the forward
// column names (first eigenmode of each region).
func buildInput(y, f *mat.Dense, sources []string) (analysis.Input, error) {
	_, ny := y.Dims()
	fr, m := f.Dims()
	if fr != ny {
		return analysis.Input{}, fmt.Errorf("forward has %d rows, data has %d channels", fr, ny)
	}
	e := cfg.Model.Eigenmodes
	if m%e != 0 {
		return analysis.Input{}, fmt.Errorf("%w: %d columns, %d eigenmodes", analysis.ErrForwardShape, m, e)
	}
	nr := m / e

	labels := make([]string, nr)
	vertices := make([][]int, nr)
	for r := 0; r < nr; r++ {
		labels[r] = sources[r*e]
		for k := 0; k < e; k++ {
			vertices[r] = append(vertices[r], r*e+k)
		}
	}
	regions := cfg.Links.Regions
	if len(regions) == 0 {
		for r := 0; r < nr; r++ {
			regions = append(regions, r)
		}
	}
	return analysis.Input{
		Y:               mat.DenseCopyOf(y.T()),
		F:               f,
		NoiseMultiplier: cfg.Noise,
		Regions:         regions,
		Labels:          labels,
		Vertices:        vertices,
	}, nil
}
