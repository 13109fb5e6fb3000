package pooling

import (
	"strings"

	"github.com/periop-health/risk-engine/internal/domain"
	"github.com/periop-health/risk-engine/internal/ontology"
)

// wildcard is the context_label placeholder for an unspecified dimension.
const wildcard = "*"

// caseTypeByProcedureCategory resolves the ontology PROCEDURE category to
// the case_type dimension of a context_label, grounding it in the
// ontology's own Category field so a new procedure only needs a category,
// not a second lookup table.
var caseTypeByProcedureCategory = map[string]string{
	"ent":     "ENT",
	"cardiac": "CARDIAC",
	"general": "GENERAL",
}

// ContextLabel builds the canonical population×case_type×urgency tuple for
// a request.
func ContextLabel(d domain.Demographics, store *ontology.Store) string {
	population := wildcard
	switch d.AgeBand {
	case domain.AgeLT1, domain.Age1to5, domain.Age6to12, domain.Age13to17:
		population = string(domain.PopulationPediatric)
	case domain.Age18to64, domain.AgeGE65:
		population = string(domain.PopulationAdult)
	}

	caseType := wildcard
	if d.Procedure != "" {
		if term, ok := store.Term(d.Procedure); ok {
			if ct, known := caseTypeByProcedureCategory[term.Category]; known {
				caseType = ct
			}
		}
	}

	return strings.Join([]string{population, caseType, string(d.Urgency)}, "×")
}

// FallbackChain returns label, then progressively wildcarded parents, most
// specific first: falling back up the wildcard tree so the most specific
// match wins. A label with all three dimensions already wildcarded is the
// chain's terminal element.
func FallbackChain(label string) []string {
	parts := strings.Split(label, "×")
	if len(parts) != 3 {
		return []string{label}
	}

	var chain []string
	seen := map[string]bool{}
	add := func(p [3]string) {
		l := strings.Join(p[:], "×")
		if !seen[l] {
			seen[l] = true
			chain = append(chain, l)
		}
	}

	cur := [3]string{parts[0], parts[1], parts[2]}
	add(cur)

	// Every one of the 8 wildcard/concrete combinations for 3 dimensions,
	// visited in order of increasing wildcard count so more specific labels
	// are always tried before more general ones.
	type combo struct {
		mask  [3]bool // true = wildcard this dimension
		count int
	}
	var combos []combo
	for m := 0; m < 8; m++ {
		c := combo{mask: [3]bool{m&1 != 0, m&2 != 0, m&4 != 0}}
		for _, w := range c.mask {
			if w {
				c.count++
			}
		}
		combos = append(combos, c)
	}
	for count := 1; count <= 3; count++ {
		for _, c := range combos {
			if c.count != count {
				continue
			}
			next := cur
			for i, w := range c.mask {
				if w {
					next[i] = wildcard
				}
			}
			add(next)
		}
	}
	return chain
}
