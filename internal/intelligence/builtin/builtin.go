// Package builtin provides recognizers for the fixed taxonomy of built-in
// entity kinds (numbers, dates, e-mail addresses and so on). The engine treats
// a Recognizer as a black box: given text, a locale and a kind it returns typed
// spans with resolved values.
package builtin

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/turtacn/lupa/pkg/errors"
	"github.com/turtacn/lupa/pkg/types/entity"
)

// ---------------------------------------------------------------------------
// Taxonomy
// ---------------------------------------------------------------------------

const (
	Age         = "age"
	Boolean     = "boolean"
	Currency    = "currency"
	DateTime    = "datetime"
	Dimension   = "dimension"
	Email       = "email"
	GUID        = "guid"
	Hashtag     = "hashtag"
	IP          = "ip"
	Mention     = "mention"
	Number      = "number"
	NumberRange = "numberrange"
	Ordinal     = "ordinal"
	Percentage  = "percentage"
	PhoneNumber = "phonenumber"
	Temperature = "temperature"
	URL         = "url"
)

// Taxonomy is the closed set of built-in kinds, sorted.
var Taxonomy = []string{
	Age, Boolean, Currency, DateTime, Dimension, Email, GUID, Hashtag, IP,
	Mention, Number, NumberRange, Ordinal, Percentage, PhoneNumber, Temperature, URL,
}

// Entity types emitted by the datetime recognizer.
const (
	DateV2          = "datetimeV2.date"
	TimeV2          = "datetimeV2.time"
	DateTimeV2      = "datetimeV2.datetime"
	DateRangeV2     = "datetimeV2.daterange"
	TimeRangeV2     = "datetimeV2.timerange"
	DateTimeRangeV2 = "datetimeV2.datetimerange"
	DurationV2      = "datetimeV2.duration"
)

// DateTimeKinds lists the datetime sub-kinds in the order the default
// datetime pattern references them.
var DateTimeKinds = []string{DateV2, TimeV2, DateTimeV2, DateRangeV2, TimeRangeV2, DateTimeRangeV2, DurationV2}

// OrdinalRelative is the entity type of relative ordinals such as "next".
const OrdinalRelative = "ordinal.relative"

var taxonomySet = func() map[string]bool {
	m := make(map[string]bool, len(Taxonomy))
	for _, k := range Taxonomy {
		m[k] = true
	}
	return m
}()

// IsKind reports whether name is in the taxonomy.
func IsKind(name string) bool {
	return taxonomySet[strings.ToLower(name)]
}

// KindOf maps an entity reference to the built-in kind that produces it.
// A reference names a kind when it, or its prefix before the first '.', is in
// the taxonomy. "datetimeV2" and its sub-kinds map to datetime.
func KindOf(ref string) (string, bool) {
	name := strings.ToLower(ref)
	prefix := name
	if i := strings.IndexByte(name, '.'); i >= 0 {
		prefix = name[:i]
	}
	switch {
	case prefix == "datetimev2":
		return DateTime, true
	case taxonomySet[name]:
		return name, true
	case taxonomySet[prefix]:
		return prefix, true
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Recognizer
// ---------------------------------------------------------------------------

// Recognizer returns the entities of one built-in kind found in text.
// Implementations must be safe for concurrent use. End offsets are exclusive.
type Recognizer interface {
	Recognize(ctx context.Context, text, locale, kind string) ([]*entity.Entity, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, text, locale, kind string) ([]*entity.Entity, error)

func (f RecognizerFunc) Recognize(ctx context.Context, text, locale, kind string) ([]*entity.Entity, error) {
	return f(ctx, text, locale, kind)
}

type recognizeFunc func(r *Default, text string, english bool) []*entity.Entity

// Default is the bundled rule-based recognizer. Structural kinds (email, url,
// ip, guid, hashtag, mention, phone numbers) are locale independent; kinds that
// depend on vocabulary understand English words and fall back to digits for
// other locales.
type Default struct {
	now   func() time.Time
	kinds map[string]recognizeFunc
}

// Option configures a Default recognizer.
type Option func(*Default)

// WithClock sets the reference time used to resolve relative dates.
func WithClock(now func() time.Time) Option {
	return func(d *Default) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDefault creates the bundled recognizer.
func NewDefault(opts ...Option) *Default {
	d := &Default{
		now: time.Now,
		kinds: map[string]recognizeFunc{
			Age:         (*Default).age,
			Boolean:     (*Default).boolean,
			Currency:    (*Default).currency,
			DateTime:    (*Default).datetime,
			Dimension:   (*Default).dimension,
			Email:       (*Default).email,
			GUID:        (*Default).guid,
			Hashtag:     (*Default).hashtag,
			IP:          (*Default).ip,
			Mention:     (*Default).mention,
			Number:      (*Default).number,
			NumberRange: (*Default).numberRange,
			Ordinal:     (*Default).ordinal,
			Percentage:  (*Default).percentage,
			PhoneNumber: (*Default).phoneNumber,
			Temperature: (*Default).temperature,
			URL:         (*Default).url,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Recognize implements Recognizer.
func (d *Default) Recognize(ctx context.Context, text, locale, kind string) ([]*entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBuiltinFailure, "recognizer interrupted")
	}
	fn, ok := d.kinds[strings.ToLower(kind)]
	if !ok {
		return nil, errors.New(errors.ErrCodeBuiltinFailure, "unsupported built-in kind").WithDetail(kind)
	}
	out := fn(d, text, isEnglish(locale))
	sort.SliceStable(out, func(i, j int) bool { return entity.Less(out[i], out[j]) })
	return out, nil
}

func isEnglish(locale string) bool {
	l := strings.ToLower(locale)
	return l == "" || l == "en" || strings.HasPrefix(l, "en-") || strings.HasPrefix(l, "en_")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type values map[string]any

func newEntity(typ, text string, start, end int, v values) *entity.Entity {
	return &entity.Entity{
		Type:       typ,
		Start:      start,
		End:        end,
		Text:       text[start:end],
		Resolution: entity.Structured(map[string]any(v)),
		Score:      entity.BuiltinScore,
	}
}

// findGroup returns the spans of submatch group g for every match of re.
func findGroup(re *regexp.Regexp, text string, g int) [][2]int {
	var spans [][2]int
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		if m[2*g] < 0 {
			continue
		}
		spans = append(spans, [2]int{m[2*g], m[2*g+1]})
	}
	return spans
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// bounded reports whether [start,end) is not glued to word characters.
func bounded(text string, start, end int) bool {
	if start > 0 && isWordByte(text[start-1]) {
		return false
	}
	if end < len(text) && isWordByte(text[end]) {
		return false
	}
	return true
}
