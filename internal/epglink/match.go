// Package epglink links playlist channels to EPG identifiers by fuzzy name
// comparison against a reference table.
package epglink

import (
	"errors"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyTable is returned when matching against a nil or empty table.
var ErrEmptyTable = errors.New("epglink: empty reference table")

// Result is the best table entry for a channel name.
type Result struct {
	Name  string // table key that won
	ID    string
	Score int // 0..100
}

type tokenSet map[string]struct{}

// tokenize splits s on whitespace after NFC normalisation and case folding.
func tokenize(s string) tokenSet {
	s = cases.Fold().String(norm.NFC.String(s))
	fields := strings.Fields(s)
	set := make(tokenSet, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// overlap is the share of the smaller set found in the larger one, 0..100.
func overlap(a, b tokenSet) int {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	if len(small) == 0 {
		return 0
	}
	shared := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			shared++
		}
	}
	return int(math.Round(100 * float64(shared) / float64(len(small))))
}

// Similarity scores two names by order-independent token overlap.
func Similarity(a, b string) int {
	return overlap(tokenize(a), tokenize(b))
}

type indexEntry struct {
	name, id string
	tokens   tokenSet
}

// index pre-tokenizes table keys so repeated matches stay O(|table|).
type index []indexEntry

func newIndex(t *Table) index {
	idx := make(index, 0, t.Len())
	t.Each(func(name, id string) {
		idx = append(idx, indexEntry{name: name, id: id, tokens: tokenize(name)})
	})
	return idx
}

// best returns the highest-scoring entry. Among equal scores the entry that
// comes last in table order wins.
func (idx index) best(name string) Result {
	want := tokenize(name)
	var res Result
	for i, e := range idx {
		score := overlap(want, e.tokens)
		if i == 0 || score >= res.Score {
			res = Result{Name: e.name, ID: e.id, Score: score}
		}
	}
	return res
}

// Match returns the table entry whose name best matches name.
func Match(name string, table *Table) (Result, error) {
	if table.Len() == 0 {
		return Result{}, ErrEmptyTable
	}
	return newIndex(table).best(name), nil
}

// BestIdentifier returns the EPG identifier of the best-matching table entry.
func BestIdentifier(name string, table *Table) (string, error) {
	res, err := Match(name, table)
	if err != nil {
		return "", err
	}
	return res.ID, nil
}
