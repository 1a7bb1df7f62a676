package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painscope/painscope/pkg/models"
)

func validRequest() models.SearchRequest {
	return models.SearchRequest{
		Topic:      "notion",
		Tags:       []models.StoryTag{models.TagAsk},
		TimeRange:  models.RangeMonth,
		MinUpvotes: 10,
		SortBy:     models.SortRelevance,
	}
}

func TestValidateRequestAccepts(t *testing.T) {
	req, err := ValidateRequest(validRequest())
	require.NoError(t, err)
	assert.Equal(t, "notion", req.Topic)
}

func TestValidateRequestTrimsTopic(t *testing.T) {
	r := validRequest()
	r.Topic = "  notion  "
	req, err := ValidateRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "notion", req.Topic)
}

func TestValidateRequestTopicLengthBounds(t *testing.T) {
	r := validRequest()

	r.Topic = "ab" // exactly 2: accepted
	_, err := ValidateRequest(r)
	assert.NoError(t, err)

	r.Topic = "a" // 1: rejected
	_, err = ValidateRequest(r)
	require.Error(t, err)

	r.Topic = strings.Repeat("x", 100) // exactly 100: accepted
	_, err = ValidateRequest(r)
	assert.NoError(t, err)

	r.Topic = strings.Repeat("x", 101) // 101: rejected
	_, err = ValidateRequest(r)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "topic")
}

func TestValidateRequestForbiddenCharacters(t *testing.T) {
	for _, c := range []string{"<", ">", "{", "}", "[", "]", "\\", "`"} {
		r := validRequest()
		r.Topic = "notion" + c
		_, err := ValidateRequest(r)
		assert.Error(t, err, "character %q should be rejected", c)
	}
}

func TestValidateRequestMinUpvotesBounds(t *testing.T) {
	r := validRequest()

	r.MinUpvotes = 0
	_, err := ValidateRequest(r)
	assert.NoError(t, err)

	r.MinUpvotes = 10000
	_, err = ValidateRequest(r)
	assert.NoError(t, err)

	r.MinUpvotes = -1
	_, err = ValidateRequest(r)
	assert.Error(t, err)

	r.MinUpvotes = 10001
	_, err = ValidateRequest(r)
	assert.Error(t, err)
}

func TestValidateRequestTags(t *testing.T) {
	r := validRequest()

	r.Tags = []models.StoryTag{"reddit"}
	_, err := ValidateRequest(r)
	assert.Error(t, err)

	r.Tags = []models.StoryTag{models.TagAsk, models.TagAsk}
	_, err = ValidateRequest(r)
	assert.Error(t, err)

	r.Tags = []models.StoryTag{
		models.TagAsk, models.TagShow, models.TagFront, models.TagPoll, models.TagStory, models.TagAsk,
	}
	_, err = ValidateRequest(r)
	assert.Error(t, err)

	r.Tags = nil
	_, err = ValidateRequest(r)
	assert.NoError(t, err)
}

func TestValidateRequestEnums(t *testing.T) {
	r := validRequest()
	r.TimeRange = "decade"
	_, err := ValidateRequest(r)
	assert.Error(t, err)

	r = validRequest()
	r.SortBy = "shuffle"
	_, err = ValidateRequest(r)
	assert.Error(t, err)
}

func TestValidationErrorCollectsAllIssues(t *testing.T) {
	r := models.SearchRequest{Topic: "x", TimeRange: "bad", MinUpvotes: -5, SortBy: "bad"}
	_, err := ValidateRequest(r)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Issues, "topic")
	assert.Contains(t, verr.Issues, "timeRange")
	assert.Contains(t, verr.Issues, "minUpvotes")
	assert.Contains(t, verr.Issues, "sortBy")
}
