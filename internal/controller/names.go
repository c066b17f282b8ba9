package controller

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
)

// baseStems feel pleasant in-game and are shared by every runner so minted
// names stay recognizably "one of ours" in server logs.
var baseStems = []string{
	"AliceBot",
	"BobBot",
	"CharlieBot",
	"DaisyBot",
	"EveBot",
	"FrankBot",
	"GraceBot",
	"NovaBot",
	"PixelBot",
	"MinerBot",
}

// NamePool mints never-reused usernames. In generator mode it draws
// stem_suffix candidates; in literal mode it hands out curated names from a
// file until they run out.
type NamePool struct {
	names   []string
	literal bool
	rng     *rand.Rand
	used    map[string]bool
}

// NewNamePool builds a generator pool over the given stems, or the built-in
// stems when none are given.
func NewNamePool(stems []string, rng *rand.Rand) *NamePool {
	if len(stems) == 0 {
		stems = baseStems
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &NamePool{
		names: append([]string(nil), stems...),
		rng:   rng,
		used:  make(map[string]bool),
	}
}

// NewLiteralPool builds a pool that hands out the given names verbatim.
func NewLiteralPool(names []string, rng *rand.Rand) *NamePool {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &NamePool{
		names:   append([]string(nil), names...),
		literal: true,
		rng:     rng,
		used:    make(map[string]bool),
	}
}

// MarkUsed reserves names picked outside the pool (explicit config names),
// so a later draw cannot collide with them.
func (p *NamePool) MarkUsed(names ...string) {
	for _, n := range names {
		if n != "" {
			p.used[n] = true
		}
	}
}

func (p *NamePool) Next() (string, error) {
	if p.literal {
		return p.nextLiteral()
	}
	for i := 0; i < 100_000; i++ {
		stem := p.names[p.rng.Intn(len(p.names))]
		candidate := fmt.Sprintf("%s_%d", stem, p.rng.Intn(100_000))
		if !p.used[candidate] {
			p.used[candidate] = true
			return candidate, nil
		}
	}
	return "", fmt.Errorf("name pool exhausted")
}

func (p *NamePool) nextLiteral() (string, error) {
	available := make([]string, 0, len(p.names))
	for _, n := range p.names {
		if !p.used[n] {
			available = append(available, n)
		}
	}
	if len(available) == 0 {
		return "", fmt.Errorf("name pool exhausted; expand the name file or reduce agent count")
	}
	name := available[p.rng.Intn(len(available))]
	p.used[name] = true
	return name, nil
}

// LoadNameFile reads a JSON array of usernames, the format shared with the
// other runners: ["kimblue373", "pumpkin_s0up", ...].
func LoadNameFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := names[:0]
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no usable names", path)
	}
	return out, nil
}
