// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package lvar

import (
	"fmt"
	"strconv"
	"strings"
)

// Restriction forbids every coefficient from the Sources regions into the
// Targets regions, at all lags.
type Restriction struct {
	Sources []int
	Targets []int
}

// NewLink returns the restriction removing the single link source -> target.
func NewLink(source, target int) *Restriction {
	return &Restriction{Sources: []int{source}, Targets: []int{target}}
}

// ParseRestriction parses the form "i1,i2->j1,j2" where the i are source
// regions and the j are target regions.
func ParseRestriction(s string) (*Restriction, error) {
	parts := strings.Split(s, "->")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: %q should look like i->j", ErrRestriction, s)
	}
	src, err := parseIndexList(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrRestriction, s, err)
	}
	dst, err := parseIndexList(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrRestriction, s, err)
	}
	return &Restriction{Sources: src, Targets: dst}, nil
}

func parseIndexList(s string) ([]int, error) {
	fields := strings.Split(s, ",")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			return nil, fmt.Errorf("empty index")
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, fmt.Errorf("negative index %d", v)
		}
		out = append(out, v)
	}
	return out, nil
}

// Validate checks every index against the number of regions.
func (r *Restriction) Validate(regions int) error {
	if r == nil {
		return nil
	}
	if len(r.Sources) == 0 || len(r.Targets) == 0 {
		return fmt.Errorf("%w: restriction needs at least one source and one target", ErrRestriction)
	}
	for _, i := range append(append([]int(nil), r.Sources...), r.Targets...) {
		if i < 0 || i >= regions {
			return fmt.Errorf("%w: %d not in [0, %d)", ErrRegionOutOfRange, i, regions)
		}
	}
	return nil
}

// String formats the restriction in the "i->j" form accepted by ParseRestriction.
func (r *Restriction) String() string {
	if r == nil {
		return ""
	}
	join := func(xs []int) string {
		s := make([]string, len(xs))
		for i, x := range xs {
			s[i] = strconv.Itoa(x)
		}
		return strings.Join(s, ",")
	}
	return join(r.Sources) + "->" + join(r.Targets)
}
