package builtin

import (
	"net"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/turtacn/lupa/pkg/types/entity"
)

var (
	emailRe   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`)
	urlRe     = regexp.MustCompile(`(?i)(?:https?://|ftp://|www\.)[^\s<>"']+`)
	ipv4Re    = regexp.MustCompile(`\d{1,3}(?:\.\d{1,3}){3}`)
	ipv6Re    = regexp.MustCompile(`(?i)[0-9a-f]{0,4}(?::[0-9a-f]{0,4}){2,7}`)
	guidRe    = regexp.MustCompile(`\{?[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}\}?`)
	hashtagRe = regexp.MustCompile(`(?:^|[^\w&#])(#[\p{L}\p{N}_]*\p{L}[\p{L}\p{N}_]*)`)
	mentionRe = regexp.MustCompile(`(?:^|[^\w@.])(@[A-Za-z0-9_]{1,30})`)
	phoneRe   = regexp.MustCompile(`(?:\+\d{1,3}[\s.\-]?)?(?:\(\d{3}\)\s?|\d{3}[\s.\-]?)\d{3}[\s.\-]?\d{4}`)
)

func (d *Default) email(text string, _ bool) []*entity.Entity {
	var out []*entity.Entity
	for _, m := range emailRe.FindAllStringIndex(text, -1) {
		out = append(out, newEntity(Email, text, m[0], m[1], values{"value": text[m[0]:m[1]]}))
	}
	return out
}

func (d *Default) url(text string, _ bool) []*entity.Entity {
	var out []*entity.Entity
	for _, m := range urlRe.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		if start > 0 && isWordByte(text[start-1]) {
			continue
		}
		end = start + len(strings.TrimRight(text[start:end], ".,;:!?)]}"))
		out = append(out, newEntity(URL, text, start, end, values{"value": text[start:end]}))
	}
	return out
}

func (d *Default) ip(text string, _ bool) []*entity.Entity {
	var out []*entity.Entity
	for _, m := range ipv4Re.FindAllStringIndex(text, -1) {
		if !bounded(text, m[0], m[1]) || hasDotNeighbour(text, m[0], m[1]) {
			continue
		}
		s := text[m[0]:m[1]]
		if net.ParseIP(s) == nil {
			continue
		}
		out = append(out, newEntity(IP, text, m[0], m[1], values{"type": "ipv4", "value": s}))
	}
	for _, m := range ipv6Re.FindAllStringIndex(text, -1) {
		s := text[m[0]:m[1]]
		if !bounded(text, m[0], m[1]) || strings.Count(s, ":") < 2 {
			continue
		}
		ip := net.ParseIP(s)
		if ip == nil || ip.To4() != nil && !strings.HasPrefix(s, "::ffff:") {
			continue
		}
		out = append(out, newEntity(IP, text, m[0], m[1], values{"type": "ipv6", "value": s}))
	}
	return out
}

func hasDotNeighbour(text string, start, end int) bool {
	if start > 0 && text[start-1] == '.' {
		return true
	}
	return end < len(text)-1 && text[end] == '.' && text[end+1] >= '0' && text[end+1] <= '9'
}

func (d *Default) guid(text string, _ bool) []*entity.Entity {
	var out []*entity.Entity
	for _, m := range guidRe.FindAllStringIndex(text, -1) {
		if !bounded(text, m[0], m[1]) {
			continue
		}
		id, err := uuid.Parse(strings.Trim(text[m[0]:m[1]], "{}"))
		if err != nil {
			continue
		}
		out = append(out, newEntity(GUID, text, m[0], m[1], values{"value": id.String()}))
	}
	return out
}

func (d *Default) hashtag(text string, _ bool) []*entity.Entity {
	var out []*entity.Entity
	for _, s := range findGroup(hashtagRe, text, 1) {
		out = append(out, newEntity(Hashtag, text, s[0], s[1], values{"value": text[s[0]:s[1]]}))
	}
	return out
}

func (d *Default) mention(text string, _ bool) []*entity.Entity {
	var out []*entity.Entity
	for _, s := range findGroup(mentionRe, text, 1) {
		if s[1] < len(text) && isWordByte(text[s[1]]) {
			continue
		}
		out = append(out, newEntity(Mention, text, s[0], s[1], values{"value": text[s[0]:s[1]]}))
	}
	return out
}

func (d *Default) phoneNumber(text string, _ bool) []*entity.Entity {
	var out []*entity.Entity
	for _, m := range phoneRe.FindAllStringIndex(text, -1) {
		start := m[0]
		if start > 0 && isWordByte(text[start-1]) {
			continue
		}
		if m[1] < len(text) && isWordByte(text[m[1]]) {
			continue
		}
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' || r == '+' {
				return r
			}
			return -1
		}, text[start:m[1]])
		out = append(out, newEntity(PhoneNumber, text, start, m[1], values{"value": digits, "score": "1"}))
	}
	return out
}
