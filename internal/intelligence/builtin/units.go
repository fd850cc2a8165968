package builtin

import (
	"regexp"
	"strings"

	"github.com/turtacn/lupa/pkg/types/entity"
)

// unit is one measurement unit: the surface forms that follow (or precede) a
// number and the canonical name reported in the resolution.
type unit struct {
	name    string
	iso     string
	pattern *regexp.Regexp
}

func suffix(forms string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^\s*(?:` + forms + `)(?:$|[^\p{L}\p{N}_])`)
}

var ageUnits = []unit{
	{name: "Year", pattern: suffix(`-?years?[- ]old|-?yrs?[- ]old|-?year-old`)},
	{name: "Month", pattern: suffix(`-?months?[- ]old|-?month-old`)},
	{name: "Week", pattern: suffix(`-?weeks?[- ]old|-?week-old`)},
	{name: "Day", pattern: suffix(`-?days?[- ]old|-?day-old`)},
}

var currencyUnits = []unit{
	{name: "United States dollar", iso: "USD", pattern: suffix(`us dollars?|dollars?|usd|bucks?`)},
	{name: "Euro", iso: "EUR", pattern: suffix(`euros?|eur`)},
	{name: "British pound", iso: "GBP", pattern: suffix(`pounds? sterling|pounds?|gbp|quid`)},
	{name: "Japanese yen", iso: "JPY", pattern: suffix(`yen|jpy`)},
	{name: "Chinese yuan", iso: "CNY", pattern: suffix(`yuan|rmb|cny|renminbi`)},
	{name: "Swiss franc", iso: "CHF", pattern: suffix(`swiss francs?|chf`)},
	{name: "Cent", pattern: suffix(`cents?`)},
}

var currencySymbols = map[string]unit{
	"$": {name: "Dollar", iso: "USD"},
	"€": {name: "Euro", iso: "EUR"},
	"£": {name: "British pound", iso: "GBP"},
	"¥": {name: "Japanese yen", iso: "JPY"},
}

var dimensionUnits = []unit{
	{name: "Kilometer", pattern: suffix(`kilometers?|kilometres?|km`)},
	{name: "Meter", pattern: suffix(`meters?|metres?|m`)},
	{name: "Centimeter", pattern: suffix(`centimeters?|centimetres?|cm`)},
	{name: "Millimeter", pattern: suffix(`millimeters?|millimetres?|mm`)},
	{name: "Mile", pattern: suffix(`miles?|mi`)},
	{name: "Foot", pattern: suffix(`feet|foot|ft`)},
	{name: "Inch", pattern: suffix(`inches|inch|in\.`)},
	{name: "Yard", pattern: suffix(`yards?|yd`)},
	{name: "Kilogram", pattern: suffix(`kilograms?|kilos?|kg`)},
	{name: "Gram", pattern: suffix(`grams?|g`)},
	{name: "Pound", pattern: suffix(`lbs?`)},
	{name: "Ounce", pattern: suffix(`ounces?|oz`)},
	{name: "Liter", pattern: suffix(`liters?|litres?|l`)},
	{name: "Milliliter", pattern: suffix(`milliliters?|millilitres?|ml`)},
	{name: "Gallon", pattern: suffix(`gallons?|gal`)},
	{name: "Megabyte", pattern: suffix(`megabytes?|mb`)},
	{name: "Gigabyte", pattern: suffix(`gigabytes?|gb`)},
	{name: "Terabyte", pattern: suffix(`terabytes?|tb`)},
}

var temperatureUnits = []unit{
	{name: "C", pattern: suffix(`°\s*c|degrees? celsius|degrees? centigrade|celsius|degrees? c`)},
	{name: "F", pattern: suffix(`°\s*f|degrees? fahrenheit|fahrenheit|degrees? f`)},
	{name: "K", pattern: suffix(`degrees? kelvin|kelvin|°\s*k`)},
	{name: "Degree", pattern: suffix(`degrees?|°`)},
}

// trailingUnit matches the first unit whose pattern follows the number and
// returns the end offset of the unit text.
func trailingUnit(text string, end int, units []unit) (unit, int, bool) {
	rest := text[end:]
	for _, u := range units {
		m := u.pattern.FindStringIndex(rest)
		if m == nil {
			continue
		}
		matched := strings.TrimRightFunc(rest[:m[1]], func(r rune) bool {
			return !isUnitRune(r)
		})
		return u, end + len(matched), true
	}
	return unit{}, 0, false
}

func isUnitRune(r rune) bool {
	return r == '°' || r < 0x80 && isWordByte(byte(r))
}

func (d *Default) measure(typ string, units []unit, text string, english bool) []*entity.Entity {
	var out []*entity.Entity
	for _, s := range scanNumbers(text, english) {
		u, end, ok := trailingUnit(text, s.end, units)
		if !ok {
			continue
		}
		out = append(out, newEntity(typ, text, s.start, end, values{
			"value": formatNumber(s.value),
			"unit":  u.name,
		}))
	}
	return out
}

func (d *Default) age(text string, english bool) []*entity.Entity {
	return d.measure(Age, ageUnits, text, english)
}

func (d *Default) dimension(text string, english bool) []*entity.Entity {
	return d.measure(Dimension, dimensionUnits, text, english)
}

func (d *Default) temperature(text string, english bool) []*entity.Entity {
	return d.measure(Temperature, temperatureUnits, text, english)
}

func (d *Default) currency(text string, english bool) []*entity.Entity {
	var out []*entity.Entity
	for _, s := range scanNumbers(text, english) {
		if sym, start, ok := leadingSymbol(text, s.start); ok {
			out = append(out, newEntity(Currency, text, start, s.end, values{
				"value":       formatNumber(s.value),
				"unit":        sym.name,
				"isoCurrency": sym.iso,
			}))
			continue
		}
		u, end, ok := trailingUnit(text, s.end, currencyUnits)
		if !ok {
			continue
		}
		v := values{"value": formatNumber(s.value), "unit": u.name}
		if u.iso != "" {
			v["isoCurrency"] = u.iso
		}
		out = append(out, newEntity(Currency, text, s.start, end, v))
	}
	return out
}

func leadingSymbol(text string, start int) (unit, int, bool) {
	prefix := strings.TrimRight(text[:start], " ")
	for sym, u := range currencySymbols {
		if strings.HasSuffix(prefix, sym) {
			return u, len(prefix) - len(sym), true
		}
	}
	return unit{}, 0, false
}

// ---------------------------------------------------------------------------
// Choice
// ---------------------------------------------------------------------------

var (
	trueWords  = map[string]bool{"yes": true, "yeah": true, "yep": true, "yup": true, "sure": true, "ok": true, "okay": true, "true": true, "correct": true, "affirmative": true, "y": true}
	falseWords = map[string]bool{"no": true, "nope": true, "nah": true, "false": true, "incorrect": true, "negative": true, "n": true}
	emojiTrue  = []string{"👍", "✔", "✅"}
	emojiFalse = []string{"👎", "✖", "❌"}
)

func (d *Default) boolean(text string, english bool) []*entity.Entity {
	var out []*entity.Entity
	if english {
		for _, w := range words(text) {
			switch {
			case trueWords[w.lower]:
				out = append(out, newEntity(Boolean, text, w.start, w.end, values{"value": true, "score": 1.0}))
			case falseWords[w.lower]:
				out = append(out, newEntity(Boolean, text, w.start, w.end, values{"value": false, "score": 1.0}))
			}
		}
	}
	for _, group := range []struct {
		forms []string
		value bool
	}{{emojiTrue, true}, {emojiFalse, false}} {
		for _, form := range group.forms {
			for off := 0; ; {
				i := strings.Index(text[off:], form)
				if i < 0 {
					break
				}
				start := off + i
				out = append(out, newEntity(Boolean, text, start, start+len(form), values{"value": group.value, "score": 1.0}))
				off = start + len(form)
			}
		}
	}
	return out
}
