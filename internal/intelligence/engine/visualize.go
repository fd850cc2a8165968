package engine

import (
	"sort"
	"strings"

	"github.com/turtacn/lupa/pkg/types/entity"
)

// NoEntities is rendered when there is nothing to show.
const NoEntities = "No entities found"

// VisualizeSpans renders text followed by one line per entity tier marking
// each span with carets, for example:
//
//	hello there
//	^___^       @greeting
//
// Entities of one type are stacked on extra lines when they overlap.
func VisualizeSpans(text string, entities []*entity.Entity) string {
	if len(entities) == 0 {
		return NoEntities
	}
	groups := make(map[string][]*entity.Entity)
	var order []string
	for _, e := range entities {
		t := strings.ToLower(e.Type)
		if _, ok := groups[t]; !ok {
			order = append(order, t)
		}
		groups[t] = append(groups[t], e)
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := groups[order[i]], groups[order[j]]
		if maxLen(a) != maxLen(b) {
			return maxLen(a) < maxLen(b)
		}
		return minStart(a) < minStart(b)
	})

	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteByte('\n')
	for _, t := range order {
		group := groups[t]
		for _, tier := range tiers(group) {
			last := 0
			for _, e := range tier {
				sb.WriteString(strings.Repeat(" ", max(e.Start-last, 0)))
				sb.WriteString(caret(e.Len()))
				last = max(e.End, last)
			}
			sb.WriteString(strings.Repeat(" ", max(len(text)-last, 0)))
			sb.WriteString(" @")
			sb.WriteString(group[0].Type)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func caret(n int) string {
	if n <= 1 {
		return "^"
	}
	return "^" + strings.Repeat("_", n-2) + "^"
}

func maxLen(es []*entity.Entity) int {
	m := 0
	for _, e := range es {
		m = max(m, e.Len())
	}
	return m
}

func minStart(es []*entity.Entity) int {
	m := es[0].Start
	for _, e := range es[1:] {
		m = min(m, e.Start)
	}
	return m
}

// tiers splits entities into lines whose spans neither overlap nor touch.
func tiers(entities []*entity.Entity) [][]*entity.Entity {
	var out [][]*entity.Entity
	pending := entities
	for len(pending) > 0 {
		var tier, next []*entity.Entity
		for _, e := range pending {
			collides := false
			for _, t := range tier {
				if t.Start <= e.End && e.Start <= t.End {
					collides = true
					break
				}
			}
			if collides {
				next = append(next, e)
			} else {
				tier = append(tier, e)
			}
		}
		sort.SliceStable(tier, func(i, j int) bool { return tier[i].Start < tier[j].Start })
		out = append(out, tier)
		pending = next
	}
	return out
}

// VisualizeHierarchy renders each entity with its children indented below
// it. Entities with the most descendants come first.
func VisualizeHierarchy(entities []*entity.Entity) string {
	if len(entities) == 0 {
		return NoEntities
	}
	sorted := append([]*entity.Entity(nil), entities...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Descendants()) > len(sorted[j].Descendants())
	})
	var sb strings.Builder
	for _, e := range sorted {
		writeTree(&sb, "", e)
	}
	return sb.String()
}

func writeTree(sb *strings.Builder, indent string, e *entity.Entity) {
	sb.WriteString(indent)
	if indent != "" {
		sb.WriteString("=> ")
	}
	sb.WriteString("@")
	sb.WriteString(e.String())
	sb.WriteByte('\n')
	for _, child := range e.Children {
		writeTree(sb, indent+"    ", child)
	}
}
