package builtin

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/lupa/pkg/types/entity"
)

const monthNames = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

var (
	isoDateRe    = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	slashDateRe  = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4}|\d{2})`)
	monthDayRe   = regexp.MustCompile(`(?i)(` + monthNames + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?`)
	dayMonthRe   = regexp.MustCompile(`(?i)(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthNames + `)(?:,?\s+(\d{4}))?`)
	relDayRe     = regexp.MustCompile(`(?i)the day after tomorrow|the day before yesterday|today|tomorrow|yesterday`)
	weekdayRe    = regexp.MustCompile(`(?i)(?:(this|next|last|coming|past)\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)`)
	clockRe      = regexp.MustCompile(`(?i)(\d{1,2}):(\d{2})(?::(\d{2}))?(?:\s*([ap])\.?m\.?)?`)
	hourRe       = regexp.MustCompile(`(?i)(\d{1,2})\s*(?:([ap])\.?m\.?|(o'clock))`)
	namedTimeRe  = regexp.MustCompile(`(?i)noon|midday|midnight`)
	dayPartRe    = regexp.MustCompile(`(?i)(?:(?:this|in the)\s+)?(morning|afternoon|evening|night)`)
	tonightRe    = regexp.MustCompile(`(?i)tonight`)
	relRangeRe   = regexp.MustCompile(`(?i)(this|next|last|previous|coming)\s+(week|weekend|month|year)`)
	durUnitRe    = regexp.MustCompile(`(?i)^\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?|days?|weeks?|months?|years?|yrs?)`)
	durArticleRe = regexp.MustCompile(`(?i)(half an?|an?)\s+(second|minute|hour|day|week|month|year)`)
	durSkipRe    = regexp.MustCompile(`(?i)^[\s-]*(?:old|ago)\b`)

	dateTimeGapRe = regexp.MustCompile(`(?i)^,?\s+(?:at\s+)?$`)
	timeDateGapRe = regexp.MustCompile(`(?i)^\s+(?:on\s+)?$`)
	datePartGapRe = regexp.MustCompile(`(?i)^\s+(?:in the\s+|at\s+)?$`)
	rangeGapRe    = regexp.MustCompile(`(?i)^\s*(?:-|–|to|until|till|through|thru)\s*$`)
	andGapRe      = regexp.MustCompile(`(?i)^\s+and\s+$`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

type dayPart struct {
	timex      string
	start, end time.Duration
}

var dayParts = map[string]dayPart{
	"morning":   {"TMO", 8 * time.Hour, 12 * time.Hour},
	"afternoon": {"TAF", 12 * time.Hour, 16 * time.Hour},
	"evening":   {"TEV", 16 * time.Hour, 20 * time.Hour},
	"night":     {"TNI", 20 * time.Hour, 24*time.Hour - time.Second},
}

var durationUnits = map[string]struct {
	seconds float64
	timex   string
}{
	"s": {1, "S"}, "mi": {60, "M"}, "h": {3600, "H"},
	"d": {86400, "D"}, "w": {604800, "W"}, "mo": {2592000, "M"}, "y": {31536000, "Y"},
}

// dtKind tags intermediate datetime spans before they are composed.
type dtKind int

const (
	dtDate dtKind = iota
	dtTime
	dtPart
	dtRange
	dtDuration
	dtComposite
)

type dtSpan struct {
	start, end int
	kind       dtKind
	typ        string
	timex      string
	day        time.Time
	tod        time.Duration
	part       dayPart
	vals       values
	used       bool
}

func (d *Default) datetime(text string, english bool) []*entity.Entity {
	now := d.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var spans []*dtSpan
	spans = append(spans, scanDates(text, english, today)...)
	spans = append(spans, scanTimes(text, english)...)
	if english {
		spans = append(spans, scanDayParts(text, today)...)
		spans = append(spans, scanRelativeRanges(text, today)...)
	}
	spans = append(spans, scanDurations(text, english)...)
	spans = dropOverlapped(spans)
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	spans = append(spans, composeRanges(text, spans)...)
	spans = append(spans, composeDateTimes(text, spans)...)

	var out []*entity.Entity
	for _, s := range spans {
		if s.used {
			continue
		}
		out = append(out, newEntity(s.typ, text, s.start, s.end, values{"values": []any{s.resolution()}}))
	}
	return out
}

func (s *dtSpan) resolution() map[string]any {
	v := map[string]any{"timex": s.timex, "type": strings.TrimPrefix(s.typ, "datetimeV2.")}
	for k, val := range s.vals {
		v[k] = val
	}
	return v
}

// ---------------------------------------------------------------------------
// Scanners
// ---------------------------------------------------------------------------

func dateSpan(start, end int, day time.Time, timex string) *dtSpan {
	if timex == "" {
		timex = day.Format("2006-01-02")
	}
	return &dtSpan{
		start: start, end: end, kind: dtDate, typ: DateV2, timex: timex, day: day,
		vals: values{"value": day.Format("2006-01-02")},
	}
}

func validDate(y, m, dd int) (time.Time, bool) {
	if m < 1 || m > 12 || dd < 1 || dd > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), dd, 0, 0, 0, 0, time.UTC)
	return t, t.Day() == dd
}

func monthOf(name string) int {
	n := strings.ToLower(name)
	for i, m := range []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"} {
		if strings.HasPrefix(n, m) {
			return i + 1
		}
	}
	return 0
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func scanDates(text string, english bool, today time.Time) []*dtSpan {
	var out []*dtSpan
	add := func(start, end int, y, m, dd int, yearless bool) {
		if !bounded(text, start, end) {
			return
		}
		t, ok := validDate(y, m, dd)
		if !ok {
			return
		}
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, today.Location())
		timex := ""
		if yearless {
			timex = fmt.Sprintf("XXXX-%02d-%02d", m, dd)
		}
		out = append(out, dateSpan(start, end, t, timex))
	}

	for _, m := range isoDateRe.FindAllStringSubmatchIndex(text, -1) {
		add(m[0], m[1], atoiOr(text[m[2]:m[3]], 0), atoiOr(text[m[4]:m[5]], 0), atoiOr(text[m[6]:m[7]], 0), false)
	}
	for _, m := range slashDateRe.FindAllStringSubmatchIndex(text, -1) {
		y := atoiOr(text[m[6]:m[7]], 0)
		if y < 100 {
			y += 2000
		}
		add(m[0], m[1], y, atoiOr(text[m[2]:m[3]], 0), atoiOr(text[m[4]:m[5]], 0), false)
	}
	if !english {
		return out
	}
	for _, m := range monthDayRe.FindAllStringSubmatchIndex(text, -1) {
		y, yearless := today.Year(), true
		if m[6] >= 0 {
			y, yearless = atoiOr(text[m[6]:m[7]], 0), false
		}
		add(m[0], m[1], y, monthOf(text[m[2]:m[3]]), atoiOr(text[m[4]:m[5]], 0), yearless)
	}
	for _, m := range dayMonthRe.FindAllStringSubmatchIndex(text, -1) {
		y, yearless := today.Year(), true
		if m[6] >= 0 {
			y, yearless = atoiOr(text[m[6]:m[7]], 0), false
		}
		add(m[0], m[1], y, monthOf(text[m[4]:m[5]]), atoiOr(text[m[2]:m[3]], 0), yearless)
	}
	for _, m := range relDayRe.FindAllStringIndex(text, -1) {
		if !bounded(text, m[0], m[1]) {
			continue
		}
		offset := 0
		switch strings.ToLower(text[m[0]:m[1]]) {
		case "tomorrow":
			offset = 1
		case "yesterday":
			offset = -1
		case "the day after tomorrow":
			offset = 2
		case "the day before yesterday":
			offset = -2
		}
		out = append(out, dateSpan(m[0], m[1], today.AddDate(0, 0, offset), ""))
	}
	for _, m := range weekdayRe.FindAllStringSubmatchIndex(text, -1) {
		if !bounded(text, m[0], m[1]) {
			continue
		}
		wd := weekdays[strings.ToLower(text[m[4]:m[5]])]
		ahead := (int(wd) - int(today.Weekday()) + 7) % 7
		day := today.AddDate(0, 0, ahead)
		timex := fmt.Sprintf("XXXX-WXX-%d", isoWeekday(wd))
		if m[2] >= 0 {
			switch strings.ToLower(text[m[2]:m[3]]) {
			case "next":
				day = day.AddDate(0, 0, 7)
				timex = ""
			case "last", "past":
				day = day.AddDate(0, 0, -7)
				timex = ""
			default:
				timex = ""
			}
		}
		out = append(out, dateSpan(m[0], m[1], day, timex))
	}
	return out
}

func isoWeekday(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

func timeSpan(start, end int, tod time.Duration) *dtSpan {
	h := int(tod / time.Hour)
	mi := int(tod % time.Hour / time.Minute)
	sec := int(tod % time.Minute / time.Second)
	timex := fmt.Sprintf("T%02d", h)
	if mi != 0 || sec != 0 {
		timex += fmt.Sprintf(":%02d", mi)
	}
	if sec != 0 {
		timex += fmt.Sprintf(":%02d", sec)
	}
	return &dtSpan{
		start: start, end: end, kind: dtTime, typ: TimeV2, timex: timex, tod: tod,
		vals: values{"value": fmt.Sprintf("%02d:%02d:%02d", h, mi, sec)},
	}
}

func clock(h, mi, sec int, meridiem string) (time.Duration, bool) {
	switch strings.ToLower(meridiem) {
	case "p":
		if h < 1 || h > 12 {
			return 0, false
		}
		if h < 12 {
			h += 12
		}
	case "a":
		if h < 1 || h > 12 {
			return 0, false
		}
		if h == 12 {
			h = 0
		}
	}
	if h > 23 || mi > 59 || sec > 59 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(mi)*time.Minute + time.Duration(sec)*time.Second, true
}

func scanTimes(text string, english bool) []*dtSpan {
	var out []*dtSpan
	group := func(m []int, i int) string {
		if m[2*i] < 0 {
			return ""
		}
		return text[m[2*i]:m[2*i+1]]
	}
	for _, m := range clockRe.FindAllStringSubmatchIndex(text, -1) {
		if !bounded(text, m[0], m[1]) {
			continue
		}
		tod, ok := clock(atoiOr(group(m, 1), 0), atoiOr(group(m, 2), 0), atoiOr(group(m, 3), 0), group(m, 4))
		if ok {
			out = append(out, timeSpan(m[0], m[1], tod))
		}
	}
	for _, m := range hourRe.FindAllStringSubmatchIndex(text, -1) {
		if !bounded(text, m[0], m[1]) {
			continue
		}
		tod, ok := clock(atoiOr(group(m, 1), 0), 0, 0, group(m, 2))
		if ok {
			out = append(out, timeSpan(m[0], m[1], tod))
		}
	}
	if !english {
		return out
	}
	for _, m := range namedTimeRe.FindAllStringIndex(text, -1) {
		if !bounded(text, m[0], m[1]) {
			continue
		}
		tod := 12 * time.Hour
		if strings.EqualFold(text[m[0]:m[1]], "midnight") {
			tod = 0
		}
		out = append(out, timeSpan(m[0], m[1], tod))
	}
	return out
}

func partSpan(start, end int, p dayPart) *dtSpan {
	return &dtSpan{
		start: start, end: end, kind: dtPart, typ: TimeRangeV2, timex: p.timex, part: p,
		vals: values{"start": formatClock(p.start), "end": formatClock(p.end)},
	}
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute), int(d%time.Minute/time.Second))
}

func scanDayParts(text string, today time.Time) []*dtSpan {
	var out []*dtSpan
	for _, m := range dayPartRe.FindAllStringSubmatchIndex(text, -1) {
		if !bounded(text, m[0], m[1]) {
			continue
		}
		p := dayParts[strings.ToLower(text[m[2]:m[3]])]
		out = append(out, partSpan(m[0], m[1], p))
	}
	for _, m := range tonightRe.FindAllStringIndex(text, -1) {
		if !bounded(text, m[0], m[1]) {
			continue
		}
		out = append(out, dateTimeRange(m[0], m[1], today, "", dayParts["night"]))
	}
	return out
}

func dateTimeRange(start, end int, day time.Time, dayTimex string, p dayPart) *dtSpan {
	if dayTimex == "" {
		dayTimex = day.Format("2006-01-02")
	}
	return &dtSpan{
		start: start, end: end, kind: dtComposite, typ: DateTimeRangeV2, timex: dayTimex + p.timex,
		vals: values{
			"start": day.Add(p.start).Format("2006-01-02 15:04:05"),
			"end":   day.Add(p.end).Format("2006-01-02 15:04:05"),
		},
	}
}

func scanRelativeRanges(text string, today time.Time) []*dtSpan {
	var out []*dtSpan
	for _, m := range relRangeRe.FindAllStringSubmatchIndex(text, -1) {
		if !bounded(text, m[0], m[1]) {
			continue
		}
		shift := 0
		switch strings.ToLower(text[m[2]:m[3]]) {
		case "next", "coming":
			shift = 1
		case "last", "previous":
			shift = -1
		}
		var from, to time.Time
		var timex string
		switch unit := strings.ToLower(text[m[4]:m[5]]); unit {
		case "week", "weekend":
			monday := today.AddDate(0, 0, -(isoWeekday(today.Weekday()) - 1)).AddDate(0, 0, 7*shift)
			y, w := monday.ISOWeek()
			from, to = monday, monday.AddDate(0, 0, 7)
			timex = fmt.Sprintf("%04d-W%02d", y, w)
			if unit == "weekend" {
				from = monday.AddDate(0, 0, 5)
				to = monday.AddDate(0, 0, 7)
				timex += "-WE"
			}
		case "month":
			first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()).AddDate(0, shift, 0)
			from, to = first, first.AddDate(0, 1, 0)
			timex = first.Format("2006-01")
		case "year":
			first := time.Date(today.Year()+shift, 1, 1, 0, 0, 0, 0, today.Location())
			from, to = first, first.AddDate(1, 0, 0)
			timex = first.Format("2006")
		}
		out = append(out, &dtSpan{
			start: m[0], end: m[1], kind: dtRange, typ: DateRangeV2, timex: timex,
			vals: values{"start": from.Format("2006-01-02"), "end": to.Format("2006-01-02")},
		})
	}
	return out
}

func durationKey(unit string) string {
	u := strings.ToLower(unit)
	switch {
	case strings.HasPrefix(u, "mo"):
		return "mo"
	case strings.HasPrefix(u, "mi"):
		return "mi"
	default:
		return u[:1]
	}
}

func durationSpan(start, end int, n float64, unit string) *dtSpan {
	u := durationUnits[durationKey(unit)]
	prefix := "P"
	if u.seconds < 86400 {
		prefix = "PT"
	}
	return &dtSpan{
		start: start, end: end, kind: dtDuration, typ: DurationV2,
		timex: prefix + formatNumber(n) + u.timex,
		vals:  values{"value": formatNumber(n * u.seconds)},
	}
}

func scanDurations(text string, english bool) []*dtSpan {
	var out []*dtSpan
	for _, s := range scanNumbers(text, english) {
		m := durUnitRe.FindStringSubmatchIndex(text[s.end:])
		if m == nil {
			continue
		}
		end := s.end + m[1]
		if end < len(text) && isWordByte(text[end]) || durSkipRe.MatchString(text[end:]) {
			continue
		}
		out = append(out, durationSpan(s.start, end, s.value, text[s.end+m[2]:s.end+m[3]]))
	}
	if !english {
		return out
	}
	for _, m := range durArticleRe.FindAllStringSubmatchIndex(text, -1) {
		if !bounded(text, m[0], m[1]) || durSkipRe.MatchString(text[m[1]:]) {
			continue
		}
		n := 1.0
		if strings.HasPrefix(strings.ToLower(text[m[2]:m[3]]), "half") {
			n = 0.5
		}
		out = append(out, durationSpan(m[0], m[1], n, text[m[4]:m[5]]))
	}
	return out
}

// dropOverlapped keeps the longest of overlapping raw spans, preferring the
// earlier one on ties.
func dropOverlapped(spans []*dtSpan) []*dtSpan {
	sort.SliceStable(spans, func(i, j int) bool {
		li, lj := spans[i].end-spans[i].start, spans[j].end-spans[j].start
		if li != lj {
			return li > lj
		}
		return spans[i].start < spans[j].start
	})
	var kept []*dtSpan
	for _, s := range spans {
		clash := false
		for _, k := range kept {
			if s.start < k.end && k.start < s.end {
				clash = true
				break
			}
		}
		if !clash {
			kept = append(kept, s)
		}
	}
	return kept
}

// ---------------------------------------------------------------------------
// Composition
// ---------------------------------------------------------------------------

// composeRanges joins "from X to Y" and "between X and Y" where X and Y are
// both dates or both times.
func composeRanges(text string, spans []*dtSpan) []*dtSpan {
	var out []*dtSpan
	for i := 0; i+1 < len(spans); i++ {
		a, b := spans[i], spans[i+1]
		if a.used || a.kind != b.kind || a.kind != dtDate && a.kind != dtTime {
			continue
		}
		gap := text[a.end:b.start]
		lead := precedingWord(text, a.start)
		if !rangeGapRe.MatchString(gap) && !(andGapRe.MatchString(gap) && lead == "between") {
			continue
		}
		start := a.start
		if lead == "from" || lead == "between" {
			start -= len(lead) + 1
		}
		r := &dtSpan{start: start, end: b.end, kind: dtComposite}
		if a.kind == dtDate {
			days := int(b.day.Sub(a.day).Hours() / 24)
			r.typ = DateRangeV2
			r.timex = fmt.Sprintf("(%s,%s,P%dD)", a.timex, b.timex, days)
			r.vals = values{"start": a.day.Format("2006-01-02"), "end": b.day.Format("2006-01-02")}
		} else {
			r.typ = TimeRangeV2
			r.timex = fmt.Sprintf("(%s,%s,PT%sH)", a.timex, b.timex, formatNumber((b.tod - a.tod).Hours()))
			r.vals = values{"start": formatClock(a.tod), "end": formatClock(b.tod)}
		}
		a.used, b.used = true, true
		out = append(out, r)
		i++
	}
	return out
}

// composeDateTimes joins adjacent dates with times ("tomorrow at 3pm",
// "10:00 on 2024-01-05") and dates with day parts ("tomorrow morning").
func composeDateTimes(text string, spans []*dtSpan) []*dtSpan {
	var out []*dtSpan
	for i := 0; i+1 < len(spans); i++ {
		a, b := spans[i], spans[i+1]
		if a.used || b.used {
			continue
		}
		gap := text[a.end:b.start]
		var date, tm *dtSpan
		switch {
		case a.kind == dtDate && b.kind == dtTime && dateTimeGapRe.MatchString(gap):
			date, tm = a, b
		case a.kind == dtTime && b.kind == dtDate && timeDateGapRe.MatchString(gap):
			date, tm = b, a
		case a.kind == dtDate && b.kind == dtPart && datePartGapRe.MatchString(gap):
			out = append(out, dateTimeRange(a.start, b.end, a.day, a.timex, b.part))
			a.used, b.used = true, true
			i++
			continue
		default:
			continue
		}
		at := date.day.Add(tm.tod)
		out = append(out, &dtSpan{
			start: a.start, end: b.end, kind: dtComposite, typ: DateTimeV2,
			timex: date.timex + tm.timex,
			vals:  values{"value": at.Format("2006-01-02 15:04:05")},
		})
		a.used, b.used = true, true
		i++
	}
	return out
}
