package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriStateFilterValueRoundTrip(t *testing.T) {
	assert.Equal(t, "include", TriStateInclude.ToFilterValue())
	assert.Equal(t, "exclude", TriStateExclude.ToFilterValue())
	assert.Equal(t, "none", TriStateNone.ToFilterValue())

	got, ok := TriStateFromFilterValue("exclude")
	assert.True(t, ok)
	assert.Equal(t, TriStateExclude, got)

	got, ok = TriStateFromFilterValue("include")
	assert.True(t, ok)
	assert.Equal(t, TriStateInclude, got)

	_, ok = TriStateFromFilterValue("maybe")
	assert.False(t, ok)
}

func TestNovelFilterMatchesSourceStatusAndCover(t *testing.T) {
	cover := "https://example.com/cover.jpg"
	withCover := Novel{Status: StatusOngoing, Cover: &cover}
	withoutCover := Novel{Status: StatusCompleted}

	filter := NovelFilter{SourceIDs: []string{"alpha"}, HasCover: TriStateInclude}
	assert.True(t, filter.matches("alpha", withCover))
	assert.False(t, filter.matches("beta", withCover))
	assert.False(t, filter.matches("alpha", withoutCover))

	statusFilter := NovelFilter{Status: StatusCompleted}
	assert.False(t, statusFilter.matches("alpha", withCover))
	assert.True(t, statusFilter.matches("alpha", withoutCover))

	excludeFilter := NovelFilter{HasCover: TriStateExclude}
	assert.True(t, excludeFilter.matches("alpha", withoutCover))
	assert.False(t, excludeFilter.matches("alpha", withCover))

	assert.True(t, NovelFilter{}.matches("anything", withCover))
}
