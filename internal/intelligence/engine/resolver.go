package engine

import (
	"strings"

	"github.com/turtacn/lupa/pkg/types/entity"
)

// Resolve removes duplicate and overlapping entities of the same type.
//
// Entities are deduplicated by key. An entity is dropped when another entity
// of the same type contains it, or partially overlaps it and is longer. Of
// two equally long partial overlaps the one starting first survives.
// Entities of different types never compete. The result is ordered with
// entity.Sort, and Resolve(Resolve(x)) equals Resolve(x).
func Resolve(entities []*entity.Entity) []*entity.Entity {
	seen := make(map[entity.Key]bool, len(entities))
	unique := make([]*entity.Entity, 0, len(entities))
	for _, e := range entities {
		if e == nil || seen[e.Key()] {
			continue
		}
		seen[e.Key()] = true
		unique = append(unique, e)
	}

	byType := make(map[string][]int)
	for i, e := range unique {
		t := strings.ToLower(e.Type)
		byType[t] = append(byType[t], i)
	}

	out := make([]*entity.Entity, 0, len(unique))
	for i, a := range unique {
		dropped := false
		for _, j := range byType[strings.ToLower(a.Type)] {
			if j != i && displaces(unique[j], a, j < i) {
				dropped = true
				break
			}
		}
		if !dropped {
			out = append(out, a)
		}
	}
	entity.Sort(out)
	return out
}

// displaces reports whether b wins over a. first tells whether b precedes a
// in input order, which only decides between identical spans.
func displaces(b, a *entity.Entity, first bool) bool {
	if b.Start == a.Start && b.End == a.End {
		return first
	}
	if b.Start <= a.Start && b.End >= a.End {
		return true
	}
	if a.Start <= b.Start && a.End >= b.End {
		return false
	}
	if b.Start >= a.End || a.Start >= b.End {
		return false
	}
	if b.Len() != a.Len() {
		return b.Len() > a.Len()
	}
	return b.Start < a.Start
}
