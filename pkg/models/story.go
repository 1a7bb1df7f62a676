package models

import "time"

// Story is a normalized news-source story. PrimaryTag is chosen from the
// raw tag list by PreferredTagOrder; stories matching none default to
// TagStory.
type Story struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Permalink   string     `json:"permalink"`
	Text        string     `json:"text"`
	Points      int        `json:"points"`
	Author      string     `json:"author"`
	CreatedAt   time.Time  `json:"createdAt"`
	Tags        []StoryTag `json:"tags"`
	NumComments int        `json:"numComments"`
	PrimaryTag  StoryTag   `json:"primaryTag"`
}

// Comment is a single news-source comment with HTML already stripped.
type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Points    int       `json:"points"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	StoryID   string    `json:"storyId"`
	ParentID  string    `json:"parentId,omitempty"`
	Permalink string    `json:"permalink"`
}

// PrimaryTag returns the first preferred tag present in tags, or TagStory.
func PrimaryTag(tags []StoryTag) StoryTag {
	for _, preferred := range PreferredTagOrder {
		for _, t := range tags {
			if t == preferred {
				return preferred
			}
		}
	}
	return TagStory
}
