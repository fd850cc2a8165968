package builtin

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/turtacn/lupa/pkg/types/entity"
)

// numSpan is a number found in text, either in digits or spelled out.
type numSpan struct {
	start, end int
	value      float64
}

var (
	digitsRe   = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?|\.\d+`)
	wordRe     = regexp.MustCompile(`[A-Za-z]+`)
	ordinalRe  = regexp.MustCompile(`(?i)(\d+)(st|nd|rd|th)`)
	percentRe  = regexp.MustCompile(`(?i)^\s*(%|percent\b|per cent\b|pct\b)`)
	scaleRe    = regexp.MustCompile(`(?i)^\s+(hundred|thousand|million|billion|trillion)\b`)
	rangeSepRe = regexp.MustCompile(`(?i)^\s*(?:-|–|~|to|through)\s*$`)
)

var unitWords = map[string]float64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"thirteen": 13, "fourteen": 14, "fifteen": 15, "sixteen": 16,
	"seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var tensWords = map[string]float64{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

var scaleWords = map[string]float64{
	"hundred": 100, "thousand": 1e3, "million": 1e6, "billion": 1e9, "trillion": 1e12,
}

var ordinalWords = map[string]float64{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5, "sixth": 6,
	"seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10, "eleventh": 11,
	"twelfth": 12, "thirteenth": 13, "fourteenth": 14, "fifteenth": 15,
	"sixteenth": 16, "seventeenth": 17, "eighteenth": 18, "nineteenth": 19,
	"twentieth": 20, "thirtieth": 30, "fortieth": 40, "fiftieth": 50,
	"sixtieth": 60, "seventieth": 70, "eightieth": 80, "ninetieth": 90,
	"hundredth": 100, "thousandth": 1000,
}

type relative struct {
	offset     string
	relativeTo string
	value      string
}

var relativeOrdinals = map[string]relative{
	"next":     {"1", "current", "current+1"},
	"previous": {"-1", "current", "current-1"},
	"current":  {"0", "current", "current"},
	"last":     {"0", "end", "end"},
}

// ---------------------------------------------------------------------------
// Scanning
// ---------------------------------------------------------------------------

// scanNumbers finds digit and (for English) spelled-out numbers in order.
func scanNumbers(text string, english bool) []numSpan {
	var spans []numSpan
	for _, m := range digitsRe.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		if start > 0 && (isWordByte(text[start-1]) || text[start-1] == '.') {
			continue
		}
		if end < len(text) && isWordByte(text[end]) {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(text[start:end], ",", ""), 64)
		if err != nil {
			continue
		}
		if start > 0 && text[start-1] == '-' && (start == 1 || !isWordByte(text[start-2])) {
			start--
			v = -v
		}
		if english {
			if sm := scaleRe.FindStringSubmatchIndex(text[end:]); sm != nil {
				v *= scaleWords[strings.ToLower(text[end+sm[2]:end+sm[3]])]
				end += sm[1]
			}
		}
		spans = append(spans, numSpan{start, end, v})
	}
	if english {
		spans = mergeSpans(spans, scanNumberWords(text))
	}
	return spans
}

type word struct {
	start, end int
	lower      string
}

func words(text string) []word {
	var out []word
	for _, m := range wordRe.FindAllStringIndex(text, -1) {
		if !bounded(text, m[0], m[1]) {
			continue
		}
		out = append(out, word{m[0], m[1], strings.ToLower(text[m[0]:m[1]])})
	}
	return out
}

// gapJoins reports whether the text between two words continues a
// spelled-out number.
func gapJoins(gap string) bool {
	g := strings.TrimSpace(gap)
	return g == "" && gap != "" || g == "-"
}

type wordKind int

const (
	kindNone wordKind = iota
	kindUnit
	kindTens
	kindScale
)

func classify(w string) (wordKind, float64) {
	if v, ok := unitWords[w]; ok {
		return kindUnit, v
	}
	if v, ok := tensWords[w]; ok {
		return kindTens, v
	}
	if v, ok := scaleWords[w]; ok {
		return kindScale, v
	}
	return kindNone, 0
}

// scanNumberWords parses runs like "two hundred and forty-five".
func scanNumberWords(text string) []numSpan {
	ws := words(text)
	var spans []numSpan
	for i := 0; i < len(ws); {
		kind, _ := classify(ws[i].lower)
		if kind == kindNone || kind == kindScale && ws[i].lower != "hundred" {
			i++
			continue
		}
		var total, current float64
		last := kindNone
		start, end := ws[i].start, ws[i].end
		j := i
		for ; j < len(ws); j++ {
			if j > i && !gapJoins(text[ws[j-1].end:ws[j].start]) {
				break
			}
			if ws[j].lower == "and" {
				if last != kindScale || j+1 >= len(ws) {
					break
				}
				if k, _ := classify(ws[j+1].lower); k == kindNone || k == kindScale {
					break
				}
				continue
			}
			k, v := classify(ws[j].lower)
			if k == kindNone {
				break
			}
			if !follows(last, k, current) {
				break
			}
			switch k {
			case kindUnit, kindTens:
				current += v
			case kindScale:
				if current == 0 {
					current = 1
				}
				if v == 100 {
					current *= v
				} else {
					total += current * v
					current = 0
				}
			}
			last = k
			end = ws[j].end
		}
		spans = append(spans, numSpan{start, end, total + current})
		i = j
	}
	return spans
}

func follows(last, next wordKind, current float64) bool {
	switch last {
	case kindNone, kindScale:
		return true
	case kindUnit:
		return next == kindScale
	case kindTens:
		return next == kindScale || next == kindUnit && math.Mod(current, 10) == 0
	}
	return false
}

// mergeSpans interleaves two ordered span lists, dropping spans of b that
// overlap spans of a.
func mergeSpans(a, b []numSpan) []numSpan {
	out := make([]numSpan, 0, len(a)+len(b))
	out = append(out, a...)
	for _, s := range b {
		overlap := false
		for _, t := range a {
			if s.start < t.end && t.start < s.end {
				overlap = true
				break
			}
		}
		if !overlap {
			out = append(out, s)
		}
	}
	sortSpans(out)
	return out
}

func sortSpans(s []numSpan) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].start < s[j-1].start; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func numberSubtype(v float64) string {
	if v == math.Trunc(v) {
		return "integer"
	}
	return "decimal"
}

// ---------------------------------------------------------------------------
// Recognizers
// ---------------------------------------------------------------------------

func (d *Default) number(text string, english bool) []*entity.Entity {
	var out []*entity.Entity
	for _, s := range scanNumbers(text, english) {
		out = append(out, newEntity(Number, text, s.start, s.end, values{
			"value":   formatNumber(s.value),
			"subtype": numberSubtype(s.value),
		}))
	}
	return out
}

func (d *Default) ordinal(text string, english bool) []*entity.Entity {
	var out []*entity.Entity
	for _, m := range ordinalRe.FindAllStringSubmatchIndex(text, -1) {
		if !bounded(text, m[0], m[1]) {
			continue
		}
		out = append(out, newEntity(Ordinal, text, m[0], m[1], values{
			"value":      text[m[2]:m[3]],
			"offset":     text[m[2]:m[3]],
			"relativeTo": "start",
		}))
	}
	if !english {
		return out
	}
	for _, w := range words(text) {
		if rel, ok := relativeOrdinals[w.lower]; ok {
			out = append(out, newEntity(OrdinalRelative, text, w.start, w.end, values{
				"offset":     rel.offset,
				"relativeTo": rel.relativeTo,
				"value":      rel.value,
			}))
			continue
		}
		if v, ok := ordinalWords[w.lower]; ok {
			out = append(out, newEntity(Ordinal, text, w.start, w.end, values{
				"value":      formatNumber(v),
				"offset":     formatNumber(v),
				"relativeTo": "start",
			}))
		}
	}
	return out
}

func (d *Default) percentage(text string, english bool) []*entity.Entity {
	var out []*entity.Entity
	for _, s := range scanNumbers(text, english) {
		m := percentRe.FindStringIndex(text[s.end:])
		if m == nil {
			continue
		}
		end := s.end + m[1]
		out = append(out, newEntity(Percentage, text, s.start, end, values{"value": formatNumber(s.value) + "%"}))
	}
	return out
}

func (d *Default) numberRange(text string, english bool) []*entity.Entity {
	nums := scanNumbers(text, english)
	var out []*entity.Entity
	for i := 0; i+1 < len(nums); i++ {
		a, b := nums[i], nums[i+1]
		gap := text[a.end:b.start]
		start := a.start
		switch {
		case rangeSepRe.MatchString(gap):
			if p := precedingWord(text, a.start); p == "from" || p == "between" {
				start = a.start - len(p) - 1
			}
		case strings.EqualFold(strings.TrimSpace(gap), "and") && precedingWord(text, a.start) == "between":
			start = a.start - len("between") - 1
		default:
			continue
		}
		lo, hi := a.value, b.value
		if lo > hi {
			lo, hi = hi, lo
		}
		out = append(out, newEntity(NumberRange, text, start, b.end, values{
			"value": "[" + formatNumber(lo) + "," + formatNumber(hi) + "]",
		}))
		i++
	}
	return out
}

// precedingWord returns the lower-cased word directly before pos separated by
// exactly one space.
func precedingWord(text string, pos int) string {
	if pos < 2 || text[pos-1] != ' ' {
		return ""
	}
	i := pos - 1
	for i > 0 && isWordByte(text[i-1]) {
		i--
	}
	return strings.ToLower(text[i : pos-1])
}
