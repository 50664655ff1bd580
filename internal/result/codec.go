// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package result

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Encode writes r to w as a zstd-compressed gob stream.
func (r *Result) Encode(w io.Writer) (err error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("result: zstd writer: %w", err)
	}
	defer func() {
		err = errors.Join(err, enc.Close())
	}()
	if err := gob.NewEncoder(enc).Encode(r); err != nil {
		return fmt.Errorf("result: encode: %w", err)
	}
	return nil
}

// Decode reads a result written by Encode.
func Decode(rd io.Reader) (*Result, error) {
	dec, err := zstd.NewReader(rd)
	if err != nil {
		return nil, fmt.Errorf("result: zstd reader: %w", err)
	}
	defer dec.Close()

	var r Result
	if err := gob.NewDecoder(dec).Decode(&r); err != nil {
		return nil, fmt.Errorf("result: decode: %w", err)
	}
	return &r, nil
}

// Save writes r to the named file.
func (r *Result) Save(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return r.Encode(f)
}

// Load reads a result from the named file.
func Load(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
