package api

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/painscope/painscope/pkg/models"
)

func init() {
	// Reject the markup characters < > { } [ ] \ and ` at the binding
	// layer; the service layer re-checks the same set and reports them in
	// the per-field issue map.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("topicchars", func(fl validator.FieldLevel) bool {
			return !strings.ContainsAny(fl.Field().String(), "<>{}[]\\`")
		})
	}
}

// SearchRequestBody is the HTTP request body for POST /search. Gin's
// binding layer (go-playground/validator) enforces presence and coarse
// bounds; the service layer adds the per-field checks and normalization.
type SearchRequestBody struct {
	Topic      string   `json:"topic" binding:"required,topicchars"`
	Tags       []string `json:"tags" binding:"omitempty,max=5"`
	TimeRange  string   `json:"timeRange" binding:"required"`
	MinUpvotes int      `json:"minUpvotes" binding:"min=0,max=10000"`
	SortBy     string   `json:"sortBy" binding:"required"`
}

// toModel converts the wire body to the domain request.
func (b *SearchRequestBody) toModel() models.SearchRequest {
	tags := make([]models.StoryTag, len(b.Tags))
	for i, t := range b.Tags {
		tags[i] = models.StoryTag(t)
	}
	return models.SearchRequest{
		Topic:      b.Topic,
		Tags:       tags,
		TimeRange:  models.TimeRange(b.TimeRange),
		MinUpvotes: b.MinUpvotes,
		SortBy:     models.SortBy(b.SortBy),
	}
}
