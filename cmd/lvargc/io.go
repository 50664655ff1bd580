// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"latentgc/internal/config"
	"latentgc/internal/result"
)

// LoadCSVMatrix loads a CSV file with a header row of column names into a
// matrix (rows x columns).
func LoadCSVMatrix(path string) (*mat.Dense, []string, error) {
	// 1. Open file
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	// 2. Make CSV reader
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	// 3. Read header row
	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 {
		return nil, nil, fmt.Errorf("empty header in %s", path)
	}
	k := len(header)

	var (
		data []float64
		row  int
	)

	// 4. Read each data row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", row+2, err) // +2 for header + 1-based
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}
		if len(record) != k {
			return nil, nil, fmt.Errorf("row %d: expected %d columns, got %d", row+2, k, len(record))
		}
		for j, s := range record {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("parse float at row %d col %d (%q): %w", row+2, j+1, s, err)
			}
			data = append(data, v)
		}
		row++
	}
	if row == 0 {
		return nil, nil, fmt.Errorf("no data rows in %s", path)
	}

	// 5. Build mat.Dense
	return mat.NewDense(row, k, data), header, nil
}

// WriteCSVMatrix writes m with a header row. Missing names become Var1, Var2, ...
func WriteCSVMatrix(path string, m mat.Matrix, names []string) error {
	rows, cols := m.Dims()

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := make([]string, cols)
	for j := 0; j < cols; j++ {
		if len(names) == cols {
			header[j] = names[j]
		} else {
			header[j] = fmt.Sprintf("Var%d", j+1)
		}
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			record[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteLinksCSV writes one row per directed region pair in long format.
// Columns: Source, Target, RawDeviance, Debiased, PValue, Tested, Converged
func WriteLinksCSV(path string, res *result.Result) error {
	debiased, err := res.AverageDebiased(nil)
	if err != nil {
		return err
	}
	pvals, err := res.PValues(nil)
	if err != nil {
		return err
	}
	raw, err := res.AverageDebiased(func(dev *mat.Dense, _ float64, _ *mat.Dense) *mat.Dense { return dev })
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"Source", "Target", "RawDeviance", "Debiased", "PValue", "Tested", "Converged"}
	if err := writer.Write(header); err != nil {
		return err
	}

	// Tested in any segment; converged in every segment it was tested in
	type status struct{ tested, converged bool }
	n := res.Regions
	st := make(map[[2]int]status)
	for _, seg := range res.Segments {
		for _, l := range seg.Links {
			key := [2]int{l.Target, l.Source}
			s, seen := st[key]
			if !seen {
				s.converged = true
			}
			s.tested = true
			s.converged = s.converged && l.Converged
			st[key] = s
		}
	}

	for tgt := 0; tgt < n; tgt++ {
		for src := 0; src < n; src++ {
			if tgt == src {
				continue
			}
			s := st[[2]int{tgt, src}]
			rec := []string{
				regionName(res, src),
				regionName(res, tgt),
				fmt.Sprintf("%f", raw.At(tgt, src)),
				fmt.Sprintf("%f", debiased.At(tgt, src)),
				fmt.Sprintf("%g", pvals.At(tgt, src)),
				fmt.Sprintf("%t", s.tested),
				fmt.Sprintf("%t", s.converged),
			}
			if err := writer.Write(rec); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func regionName(res *result.Result, i int) string {
	if i < len(res.Labels) && res.Labels[i] != "" {
		return res.Labels[i]
	}
	return fmt.Sprintf("R%d", i)
}

// Manifest describes the files written by one fit.
type Manifest struct {
	RunID      string         `yaml:"run_id"`
	Name       string         `yaml:"name"`
	CreatedAt  time.Time      `yaml:"created_at"`
	Data       string         `yaml:"data"`
	Forward    string         `yaml:"forward"`
	Result     string         `yaml:"result"`
	Links      string         `yaml:"links"`
	Regions    int            `yaml:"regions"`
	Channels   int            `yaml:"channels"`
	Samples    int            `yaml:"samples"`
	Segments   int            `yaml:"segments"`
	Unfinished int            `yaml:"unfinished_reduced_fits"`
	Config     *config.Config `yaml:"config"`
}

// WriteManifest writes m as YAML.
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
