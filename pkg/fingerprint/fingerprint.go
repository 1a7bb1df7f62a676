// Package fingerprint derives the deterministic cache/dedup key of a
// search request from its normalized parameters.
package fingerprint

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/painscope/painscope/pkg/models"
)

const prefix = "searchKey:"

// payload fixes the canonical key order of the fingerprint JSON. Field
// order here is the wire contract; do not reorder.
type payload struct {
	Topic      string   `json:"topic"`
	Tags       []string `json:"tags"`
	TimeRange  string   `json:"timeRange"`
	MinUpvotes int      `json:"minUpvotes"`
	SortBy     string   `json:"sortBy"`
}

// Compute returns the stable fingerprint of req. Topic is trimmed and
// lowercased; tags are lowercased and sorted ascending; the remaining
// fields pass through verbatim. Requests equal modulo that normalization
// fingerprint identically.
func Compute(req models.SearchRequest) string {
	tags := make([]string, len(req.Tags))
	for i, t := range req.Tags {
		tags[i] = strings.ToLower(string(t))
	}
	sort.Strings(tags)

	p := payload{
		Topic:      strings.ToLower(strings.TrimSpace(req.Topic)),
		Tags:       tags,
		TimeRange:  string(req.TimeRange),
		MinUpvotes: req.MinUpvotes,
		SortBy:     string(req.SortBy),
	}

	// Struct marshaling emits keys in declaration order, giving a stable
	// canonical form across instances.
	b, err := json.Marshal(p)
	if err != nil {
		// Marshaling a flat struct of strings and ints cannot fail.
		panic(err)
	}
	return prefix + string(b)
}
