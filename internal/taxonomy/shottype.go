package taxonomy

import (
	"strings"
	"unicode"

	"github.com/idantify-ai/localsource-scraper/internal/specifier"
)

// ShotTypeMatch is the outcome of resolving a record's shot type.
type ShotTypeMatch struct {
	ID        string
	Key       string // directory name used for the shot type
	Defaulted bool
}

// CanonicalKey normalises a shot type label for matching.
func CanonicalKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type shotTypeIndex struct {
	byKey      map[string]specifier.ShotType
	byName     map[string]specifier.ShotType
	byID       map[string]specifier.ShotType
	fallbackID string
}

func newShotTypeIndex(shotTypes []specifier.ShotType, fallbackID string) *shotTypeIndex {
	idx := &shotTypeIndex{
		byKey:      make(map[string]specifier.ShotType, len(shotTypes)),
		byName:     make(map[string]specifier.ShotType, len(shotTypes)),
		byID:       make(map[string]specifier.ShotType, len(shotTypes)),
		fallbackID: fallbackID,
	}
	for _, st := range shotTypes {
		if k := CanonicalKey(st.SourceKey); k != "" {
			idx.byKey[k] = st
		}
		if n := CanonicalKey(st.Name); n != "" {
			idx.byName[n] = st
		}
		idx.byID[st.ID] = st
	}
	return idx
}

func (idx *shotTypeIndex) hasFallback() bool {
	_, ok := idx.byID[idx.fallbackID]
	return ok
}

// match resolves label by source key, then name, then id, and otherwise
// returns the fallback shot type. The directory key always comes from the
// shot type itself, so every spelling of one shot type shares a directory.
func (idx *shotTypeIndex) match(label string) ShotTypeMatch {
	if key := CanonicalKey(label); key != "" {
		if st, ok := idx.byKey[key]; ok {
			return ShotTypeMatch{ID: st.ID, Key: directoryKey(st)}
		}
		if st, ok := idx.byName[key]; ok {
			return ShotTypeMatch{ID: st.ID, Key: directoryKey(st)}
		}
		if st, ok := idx.byID[strings.TrimSpace(label)]; ok {
			return ShotTypeMatch{ID: st.ID, Key: directoryKey(st)}
		}
	}

	if st, ok := idx.byID[idx.fallbackID]; ok {
		return ShotTypeMatch{ID: st.ID, Key: directoryKey(st), Defaulted: true}
	}
	return ShotTypeMatch{ID: idx.fallbackID, Key: pathSegment(idx.fallbackID), Defaulted: true}
}

// directoryKey names a shot type by name, then source key, then id.
func directoryKey(st specifier.ShotType) string {
	if n := CanonicalKey(st.Name); n != "" {
		return pathSegment(n)
	}
	if k := CanonicalKey(st.SourceKey); k != "" {
		return pathSegment(k)
	}
	return pathSegment(st.ID)
}

// pathSegment keeps letters, digits, '-' and '_' so a label can never escape
// its directory.
func pathSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
