package chat

import (
	"regexp"
	"sort"
)

type cheerPrefix struct {
	prefix string
	re     *regexp.Regexp
	tiers  []CheerTier // ascending MinBits
}

// CheerTable resolves a cheer in a message to its tier. It is immutable.
type CheerTable struct {
	prefixes []cheerPrefix
}

// NewCheerTable groups tiers by prefix. Prefixes are matched in lexical
// order so resolution does not depend on the order tiers were fetched in.
func NewCheerTable(tiers []CheerTier) *CheerTable {
	byPrefix := make(map[string][]CheerTier)
	for _, t := range tiers {
		if t.Prefix == "" {
			continue
		}
		byPrefix[t.Prefix] = append(byPrefix[t.Prefix], t)
	}
	names := make([]string, 0, len(byPrefix))
	for p := range byPrefix {
		names = append(names, p)
	}
	sort.Strings(names)

	ct := &CheerTable{}
	for _, p := range names {
		ts := byPrefix[p]
		sort.SliceStable(ts, func(i, j int) bool { return ts[i].MinBits < ts[j].MinBits })
		ct.prefixes = append(ct.prefixes, cheerPrefix{
			prefix: p,
			re:     regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(p) + `\d+\b`),
			tiers:  ts,
		})
	}
	return ct
}

// Resolve returns the tier of the first prefix whose cheer appears in text
// as a whole word: the prefix followed by digits, case-insensitive. The tier
// is the one with the greatest MinBits not above bits, or the lowest tier
// when none qualifies.
func (ct *CheerTable) Resolve(text string, bits int) *CheerTier {
	if ct == nil || bits <= 0 {
		return nil
	}
	for _, p := range ct.prefixes {
		if !p.re.MatchString(text) {
			continue
		}
		best := p.tiers[0]
		for _, t := range p.tiers {
			if t.MinBits > bits {
				break
			}
			best = t
		}
		return &best
	}
	return nil
}

// Len returns the number of prefixes.
func (ct *CheerTable) Len() int {
	if ct == nil {
		return 0
	}
	return len(ct.prefixes)
}
