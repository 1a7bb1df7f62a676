package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/painscope/painscope/pkg/models"
)

func baseRequest() models.SearchRequest {
	return models.SearchRequest{
		Topic:      "notion",
		Tags:       []models.StoryTag{models.TagAsk, models.TagShow},
		TimeRange:  models.RangeMonth,
		MinUpvotes: 10,
		SortBy:     models.SortRelevance,
	}
}

func TestComputeStableFormat(t *testing.T) {
	fp := Compute(baseRequest())
	assert.Equal(t,
		`searchKey:{"topic":"notion","tags":["ask_hn","show_hn"],"timeRange":"month","minUpvotes":10,"sortBy":"relevance"}`,
		fp)
}

func TestComputeNormalizesTopic(t *testing.T) {
	a := baseRequest()
	b := baseRequest()
	b.Topic = "  NoTiOn \t"
	assert.Equal(t, Compute(a), Compute(b))
}

func TestComputeSortsTags(t *testing.T) {
	a := baseRequest()
	b := baseRequest()
	b.Tags = []models.StoryTag{models.TagShow, models.TagAsk}
	assert.Equal(t, Compute(a), Compute(b))
}

func TestComputeDistinguishesParameters(t *testing.T) {
	a := baseRequest()

	b := baseRequest()
	b.MinUpvotes = 11
	assert.NotEqual(t, Compute(a), Compute(b))

	c := baseRequest()
	c.TimeRange = models.RangeWeek
	assert.NotEqual(t, Compute(a), Compute(c))

	d := baseRequest()
	d.SortBy = models.SortUpvotes
	assert.NotEqual(t, Compute(a), Compute(d))

	e := baseRequest()
	e.Tags = []models.StoryTag{models.TagAsk}
	assert.NotEqual(t, Compute(a), Compute(e))
}

func TestComputeEmptyTags(t *testing.T) {
	a := baseRequest()
	a.Tags = nil
	b := baseRequest()
	b.Tags = []models.StoryTag{}
	assert.Equal(t, Compute(a), Compute(b))
}
