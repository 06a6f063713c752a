package atom

import (
	"sort"
	"sync"
	"unicode"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// OrderingKey is the precomputed semantic ordering tuple for a code point.
// Ranks derived from it drive the projector, so the field order here is the
// clustering order on the sphere: category first (letters cluster), then
// script (scripts sub-cluster), then collation weight (alphabetic order
// within a script), then CJK stroke bucket, then confusable group.
type OrderingKey struct {
	CodePoint  rune
	Category   uint8  // index into categoryOrder
	Script     uint8  // index into the sorted script table
	Collation  uint16 // leading bytes of the und-locale collation key
	CJKClass   uint8  // stroke bucket for unified ideographs, 0 elsewhere
	Confusable rune   // NFKD skeleton head, case-folded
}

// categoryOrder lists general categories in clustering order: letters first,
// then numbers, marks, punctuation, symbols, separators, and finally the
// control/unassigned tail.
var categoryOrder = []string{
	"Lu", "Ll", "Lt", "Lm", "Lo",
	"Nd", "Nl", "No",
	"Mn", "Mc", "Me",
	"Pc", "Pd", "Ps", "Pe", "Pi", "Pf", "Po",
	"Sm", "Sc", "Sk", "So",
	"Zs", "Zl", "Zp",
	"Cc", "Cf", "Co", "Cs",
}

// unassignedCategory is the category index for code points matching no
// general-category table.
var unassignedCategory = uint8(len(categoryOrder))

var (
	tablesOnce  sync.Once
	scriptNames []string
	collator    *collate.Collator
	collateMu   sync.Mutex
)

func initTables() {
	tablesOnce.Do(func() {
		scriptNames = make([]string, 0, len(unicode.Scripts))
		for name := range unicode.Scripts {
			scriptNames = append(scriptNames, name)
		}
		sort.Strings(scriptNames)
		collator = collate.New(language.Und)
	})
}

// categoryIndex returns the clustering index of r's general category.
func categoryIndex(r rune) uint8 {
	for i, name := range categoryOrder {
		if unicode.Is(unicode.Categories[name], r) {
			return uint8(i)
		}
	}
	return unassignedCategory
}

// scriptIndex returns the index of r's script in the sorted script table,
// or the table length for runes belonging to no script.
func scriptIndex(r rune) uint8 {
	initTables()
	for i, name := range scriptNames {
		if unicode.Is(unicode.Scripts[name], r) {
			return uint8(i)
		}
	}
	return uint8(len(scriptNames))
}

// collationWeight returns the leading two bytes of the root-locale collation
// sort key for r. Zero for runes the collator assigns no primary weight.
func collationWeight(r rune) uint16 {
	initTables()
	// collate.Buffer is not safe for concurrent use; the collator itself
	// keeps internal state, so serialize key extraction.
	collateMu.Lock()
	defer collateMu.Unlock()
	var buf collate.Buffer
	key := collator.KeyFromString(&buf, string(r))
	if len(key) == 0 {
		return 0
	}
	w := uint16(key[0]) << 8
	if len(key) > 1 {
		w |= uint16(key[1])
	}
	return w
}

// CJK unified ideograph blocks that receive stroke buckets.
var cjkBlocks = []struct{ lo, hi rune }{
	{0x4E00, 0x9FFF},   // CJK Unified Ideographs
	{0x3400, 0x4DBF},   // Extension A
	{0x20000, 0x2A6DF}, // Extension B
}

// cjkClass buckets unified ideographs by position within their block as a
// stand-in for radical/stroke ordering, which the blocks roughly follow.
func cjkClass(r rune) uint8 {
	for _, b := range cjkBlocks {
		if r >= b.lo && r <= b.hi {
			bucket := (r - b.lo) / 512
			if bucket > 0x7F {
				bucket = 0x7F
			}
			return uint8(bucket)
		}
	}
	return 0
}

// confusableGroup returns the case-folded head of r's NFKD decomposition.
// Characters that decompose to the same base letter (accents, ligature
// parts, compatibility variants) share a group and land near each other.
func confusableGroup(r rune) rune {
	decomposed := norm.NFKD.String(string(r))
	for _, first := range decomposed {
		return unicode.ToLower(first)
	}
	return unicode.ToLower(r)
}

// KeyFor computes the semantic ordering key for a code point. Pure and
// deterministic: the same rune always produces the identical key.
func KeyFor(r rune) OrderingKey {
	return OrderingKey{
		CodePoint:  r,
		Category:   categoryIndex(r),
		Script:     scriptIndex(r),
		Collation:  collationWeight(r),
		CJKClass:   cjkClass(r),
		Confusable: confusableGroup(r),
	}
}

// Rank packs the key into a single ordering integer for the projector.
// Field widths, most significant first: category 5 bits, script 8,
// collation 12, CJK class 7, confusable group 11, code point 21. The code
// point tail guarantees distinct runes never share a rank.
func (k OrderingKey) Rank() uint64 {
	rank := uint64(k.Category) & 0x1F
	rank = rank<<8 | uint64(k.Script)
	rank = rank<<12 | uint64(k.Collation>>4)
	rank = rank<<7 | uint64(k.CJKClass)&0x7F
	rank = rank<<11 | uint64(k.Confusable)&0x7FF
	rank = rank<<21 | uint64(k.CodePoint)&0x1FFFFF
	return rank
}
