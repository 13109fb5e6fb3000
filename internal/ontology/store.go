// Package ontology holds the immutable clinical vocabulary and
// the O(1) synonym index the HPI extractor scans against.
//
// A Store is built once per process (or per evidence-version bump) and
// handed around as a read-only reference: no process-wide singleton, an
// explicit immutable value passed through the engine instead.
package ontology

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/periop-health/risk-engine/internal/domain"
)

// synonymMatch is a compiled pattern bound back to its owning term and the
// synonym tier it represents.
type synonymMatch struct {
	token      string
	termType   domain.TermType
	confidence domain.SynonymConfidence
	pattern    *regexp.Regexp
}

// Store is the immutable ontology: terms keyed by token, a synonym index
// for O(1)-amortized extractor lookup, and an LRU cache of compiled-pattern
// scan results keyed by normalized input, since the same HPI text is often
// re-analyzed (determinism tests, retries within the request budget).
type Store struct {
	terms     map[string]*domain.OntologyTerm
	synonyms  map[string]string // exact synonym text -> token, O(1) lookup
	matches   []synonymMatch    // ordered longest-synonym-first for tie-breaking
	scanCache *lru.Cache[string, []MatchResult]
}

// MatchResult is one synonym hit against a normalized text, with the byte
// offsets needed to compute negation/temporal windows and evidence spans.
type MatchResult struct {
	Token      string
	TermType   domain.TermType
	Confidence domain.SynonymConfidence
	Start, End int
	Text       string
}

// NewStore builds an immutable Store from a term list. Returns an error if
// any §3 invariant (unique token, lowercase synonyms, single type) is
// violated.
func NewStore(terms []*domain.OntologyTerm, scanCacheSize int) (*Store, error) {
	s := &Store{
		terms:    make(map[string]*domain.OntologyTerm, len(terms)),
		synonyms: make(map[string]string),
	}

	for _, t := range terms {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.terms[t.Token]; dup {
			return nil, fmt.Errorf("ontology: duplicate token %q", t.Token)
		}
		s.terms[t.Token] = t
	}

	// Wire parent/child links now that every term is loaded.
	for _, t := range terms {
		if t.ParentToken == "" {
			continue
		}
		parent, ok := s.terms[t.ParentToken]
		if !ok {
			return nil, fmt.Errorf("ontology: %q references unknown parent %q", t.Token, t.ParentToken)
		}
		parent.ChildTokens = append(parent.ChildTokens, t.Token)
	}

	for _, t := range terms {
		for _, syn := range t.Synonyms {
			if existing, dup := s.synonyms[syn.Text]; dup && existing != t.Token {
				return nil, fmt.Errorf("ontology: synonym %q claimed by both %q and %q", syn.Text, existing, t.Token)
			}
			s.synonyms[syn.Text] = t.Token
			pat, err := wordBoundaryPattern(syn.Text)
			if err != nil {
				return nil, fmt.Errorf("ontology: compiling pattern for %q: %w", syn.Text, err)
			}
			s.matches = append(s.matches, synonymMatch{
				token:      t.Token,
				termType:   t.Type,
				confidence: syn.Confidence,
				pattern:    pat,
			})
		}
	}

	// Longest literal text first so overlapping synonyms (e.g. "ckd" inside
	// "ckd stage 4") are reported longest first.
	sortMatchesByLength(s.matches)

	if scanCacheSize <= 0 {
		scanCacheSize = 256
	}
	cache, err := lru.New[string, []MatchResult](scanCacheSize)
	if err != nil {
		return nil, fmt.Errorf("ontology: creating scan cache: %w", err)
	}
	s.scanCache = cache

	return s, nil
}

func wordBoundaryPattern(synonym string) (*regexp.Regexp, error) {
	return regexp.Compile(`\b` + regexp.QuoteMeta(synonym) + `\b`)
}

func sortMatchesByLength(m []synonymMatch) {
	for i := 1; i < len(m); i++ {
		for j := i; j > 0 && len(m[j].pattern.String()) > len(m[j-1].pattern.String()); j-- {
			m[j], m[j-1] = m[j-1], m[j]
		}
	}
}

// Term returns the term for a token, if present.
func (s *Store) Term(token string) (*domain.OntologyTerm, bool) {
	t, ok := s.terms[token]
	return t, ok
}

// TermsOfType returns every term of a given type, for iteration by the
// pooling engine and medication decider.
func (s *Store) TermsOfType(t domain.TermType) []*domain.OntologyTerm {
	var out []*domain.OntologyTerm
	for _, term := range s.terms {
		if term.Type == t {
			out = append(out, term)
		}
	}
	return out
}

// Lookup resolves a single surface-form synonym to its token in O(1).
func (s *Store) Lookup(synonym string) (string, bool) {
	tok, ok := s.synonyms[strings.ToLower(synonym)]
	return tok, ok
}

// Scan finds every synonym occurrence in normalized text, longest-match
// first. Results are cached per normalized input since the extractor scans
// the same text once per pass and requests may retry within budget.
func (s *Store) Scan(normalized string) []MatchResult {
	if cached, ok := s.scanCache.Get(normalized); ok {
		return cached
	}

	var results []MatchResult
	for _, m := range s.matches {
		for _, loc := range m.pattern.FindAllStringIndex(normalized, -1) {
			results = append(results, MatchResult{
				Token:      m.token,
				TermType:   m.termType,
				Confidence: m.confidence,
				Start:      loc[0],
				End:        loc[1],
				Text:       normalized[loc[0]:loc[1]],
			})
		}
	}

	s.scanCache.Add(normalized, results)
	return results
}
