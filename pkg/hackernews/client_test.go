package hackernews

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painscope/painscope/pkg/models"
)

func TestStripHTML(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"<p>hello <b>world</b></p>", "hello world"},
		{"a&amp;b &gt; c", "a&b > c"},
		{"line<br>break", "line break"},
		{"  lots   of\n\twhitespace  ", "lots of whitespace"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StripHTML(tc.in), "input %q", tc.in)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abcd", 2))
	// Multi-byte runes are not split.
	s := "héllo"
	cut := Truncate(s, 2)
	assert.Equal(t, "h", cut)
}

func TestSearchStories(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"hits": [
				{"objectID": "1", "title": "Notion is slow", "url": "https://example.com/a",
				 "points": 120, "author": "pg", "created_at_i": 1700000000,
				 "_tags": ["story", "ask_hn"], "num_comments": 42},
				{"objectID": "2", "title": "", "points": 5, "author": "x", "created_at_i": 1700000001, "_tags": ["comment"]},
				{"objectID": "3", "title": "Show: my tool", "story_text": "<p>I built &amp; shipped</p>",
				 "points": 30, "author": "dang", "created_at_i": 1700000002, "_tags": ["show_hn", "story"]}
			],
			"nbPages": 3, "page": 0
		}`))
	}))
	defer srv.Close()

	client := NewClientWithHTTP(srv.URL, srv.Client())
	stories, err := client.SearchStories(context.Background(), models.StoryQuery{
		Query:      "notion",
		Tags:       []models.StoryTag{models.TagAsk, models.TagStory},
		TimeRange:  models.RangeMonth,
		MinUpvotes: 10,
		SortBy:     models.SortRelevance,
		Page:       0,
		PerPage:    30,
	})
	require.NoError(t, err)

	assert.Equal(t, "/search", gotPath)
	assert.Equal(t, "notion", gotQuery["query"][0])
	assert.Equal(t, "(ask_hn,story)", gotQuery["tags"][0])
	assert.Contains(t, gotQuery["numericFilters"][0], "points>=10")
	assert.Contains(t, gotQuery["numericFilters"][0], "created_at_i>=")

	// The title-less hit is dropped.
	require.Len(t, stories, 2)
	assert.Equal(t, "1", stories[0].ID)
	assert.Equal(t, models.TagAsk, stories[0].PrimaryTag)
	assert.Equal(t, "https://news.ycombinator.com/item?id=1", stories[0].Permalink)
	assert.Equal(t, models.TagShow, stories[1].PrimaryTag)
	assert.Equal(t, "I built & shipped", stories[1].Text)
}

func TestSearchStoriesSortByRecencyUsesByDateEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"hits": [], "nbPages": 0, "page": 0}`))
	}))
	defer srv.Close()

	client := NewClientWithHTTP(srv.URL, srv.Client())
	_, err := client.SearchStories(context.Background(), models.StoryQuery{
		Query: "x", SortBy: models.SortRecency, PerPage: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, "/search_by_date", gotPath)
}

func TestComments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items/99", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": 99, "type": "story", "children": [
				{"id": 100, "type": "comment", "author": "alice", "text": "<i>first</i>",
				 "points": 7, "created_at_i": 1700000100, "children": [
					{"id": 101, "type": "comment", "author": "bob", "text": "reply", "created_at_i": 1700000200, "children": []}
				]},
				{"id": 102, "type": "comment", "author": "deleted", "text": "", "children": []}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClientWithHTTP(srv.URL, srv.Client())
	comments, err := client.Comments(context.Background(), "99")
	require.NoError(t, err)

	// The empty-text comment is dropped; nesting is flattened.
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Text)
	assert.Equal(t, 7, comments[0].Points)
	assert.Equal(t, "99", comments[0].StoryID)
	assert.Equal(t, "reply", comments[1].Text)
	assert.Equal(t, "100", comments[1].ParentID)
	assert.Equal(t, "https://news.ycombinator.com/item?id=101", comments[1].Permalink)
}

func TestGetJSONErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClientWithHTTP(srv.URL, srv.Client())
	_, err := client.SearchStories(context.Background(), models.StoryQuery{Query: "x", PerPage: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
