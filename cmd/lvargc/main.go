// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

// lvargc estimates directed connectivity between latent sources from noisy
// multichannel recordings.
//
// Usage:
//
//	lvargc simulate --out data/
//	lvargc fit --data data/y.csv --forward data/f.csv --out results/
//	lvargc inspect results/lvargc.lvg
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
