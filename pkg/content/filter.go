package content

// TriState is a three-valued inclusion flag used by NovelFilter: a filter
// field can require presence, require absence, or not care.
type TriState int

const (
	TriStateNone TriState = iota
	TriStateInclude
	TriStateExclude
)

// ToFilterValue renders a TriState as the string form used in filter query
// parameters.
func (t TriState) ToFilterValue() string {
	switch t {
	case TriStateInclude:
		return "include"
	case TriStateExclude:
		return "exclude"
	default:
		return "none"
	}
}

// TriStateFromFilterValue parses a filter value back into a TriState.
// Unknown inputs return (TriStateNone, false).
func TriStateFromFilterValue(s string) (TriState, bool) {
	switch s {
	case "include":
		return TriStateInclude, true
	case "exclude":
		return TriStateExclude, true
	default:
		return TriStateNone, false
	}
}

// NovelFilter narrows ListNovels. A nil or zero-value NovelFilter matches
// everything.
type NovelFilter struct {
	SourceIDs []string    // restrict to these sources; empty = all
	Status    NovelStatus // empty = any
	HasCover  TriState
}

func (f NovelFilter) matchesSource(sourceID string) bool {
	if len(f.SourceIDs) == 0 {
		return true
	}
	for _, id := range f.SourceIDs {
		if id == sourceID {
			return true
		}
	}
	return false
}

func (f NovelFilter) matches(sourceID string, n Novel) bool {
	if !f.matchesSource(sourceID) {
		return false
	}
	if f.Status != "" && f.Status != n.Status {
		return false
	}
	switch f.HasCover {
	case TriStateInclude:
		if n.Cover == nil {
			return false
		}
	case TriStateExclude:
		if n.Cover != nil {
			return false
		}
	}
	return true
}
