// Package dedup detects duplicate candidates by normalized-title
// fingerprint, both within a run and against recently admitted items.
package dedup

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"sync"
	"unicode"

	"ContentCurator/internal/domain"
)

// Fingerprint normalizes a title (lowercase, punctuation stripped,
// whitespace collapsed) and returns a hex digest of the result.
// Identical fingerprints mean duplicate items.
func Fingerprint(title string) string {
	normalized := Normalize(title)
	sum := sha1.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Normalize reduces a title to its comparable form.
func Normalize(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// Filter drops candidates whose fingerprint matches an earlier candidate
// in the same slice or an entry of existing. Order is preserved and the
// first occurrence wins. The input slice is not modified.
func Filter(candidates []domain.Candidate, existing map[string]struct{}) []domain.Candidate {
	kept := make([]domain.Candidate, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		fp := Fingerprint(c.Title)
		if _, ok := existing[fp]; ok {
			continue
		}
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		kept = append(kept, c)
	}

	return kept
}

// Index is the mutable fingerprint set shared between the admission
// writer and subsequent duplicate checks. Safe for concurrent use.
type Index struct {
	mu  sync.Mutex
	set map[string]struct{}
}

// NewIndex builds an index seeded with existing fingerprints.
func NewIndex(existing map[string]struct{}) *Index {
	set := make(map[string]struct{}, len(existing))
	for fp := range existing {
		set[fp] = struct{}{}
	}
	return &Index{set: set}
}

// Add registers a fingerprint, reporting whether it was new.
func (i *Index) Add(fp string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.set[fp]; ok {
		return false
	}
	i.set[fp] = struct{}{}
	return true
}

// Contains reports whether fp is registered.
func (i *Index) Contains(fp string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.set[fp]
	return ok
}

// Snapshot copies the current fingerprint set.
func (i *Index) Snapshot() map[string]struct{} {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make(map[string]struct{}, len(i.set))
	for fp := range i.set {
		out[fp] = struct{}{}
	}
	return out
}
