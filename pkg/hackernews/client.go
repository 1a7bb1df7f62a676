// Package hackernews implements the news-source port against the
// Algolia Hacker News search API.
package hackernews

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/painscope/painscope/pkg/config"
	"github.com/painscope/painscope/pkg/models"
)

// Client queries the Algolia Hacker News API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client from configuration.
func NewClient(cfg config.NewsConfig) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// NewClientWithHTTP creates a Client with a custom http.Client (tests).
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// searchResponse is the Algolia search result envelope.
type searchResponse struct {
	Hits    []storyHit `json:"hits"`
	NbPages int        `json:"nbPages"`
	Page    int        `json:"page"`
}

type storyHit struct {
	ObjectID    string   `json:"objectID"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	StoryText   string   `json:"story_text"`
	Points      int      `json:"points"`
	Author      string   `json:"author"`
	CreatedAtI  int64    `json:"created_at_i"`
	Tags        []string `json:"_tags"`
	NumComments int      `json:"num_comments"`
}

// item is the Algolia item-tree node used for comment retrieval.
type item struct {
	ID         int64   `json:"id"`
	Author     string  `json:"author"`
	Text       string  `json:"text"`
	Points     *int    `json:"points"`
	CreatedAtI int64   `json:"created_at_i"`
	ParentID   *int64  `json:"parent_id"`
	StoryID    *int64  `json:"story_id"`
	Type       string  `json:"type"`
	Children   []*item `json:"children"`
}

// SearchStories fetches one page of stories matching params.
func (c *Client) SearchStories(ctx context.Context, params models.StoryQuery) ([]models.Story, error) {
	endpoint := "/search"
	if params.SortBy == models.SortRecency {
		endpoint = "/search_by_date"
	}

	q := url.Values{}
	q.Set("query", params.Query)
	q.Set("page", strconv.Itoa(params.Page))
	q.Set("hitsPerPage", strconv.Itoa(params.PerPage))

	if len(params.Tags) > 0 {
		tags := make([]string, len(params.Tags))
		for i, t := range params.Tags {
			tags[i] = string(t)
		}
		// Parenthesized tag list means OR.
		q.Set("tags", "("+strings.Join(tags, ",")+")")
	} else {
		q.Set("tags", "story")
	}

	filters := []string{}
	if params.MinUpvotes > 0 {
		filters = append(filters, "points>="+strconv.Itoa(params.MinUpvotes))
	}
	if since := rangeStart(params.TimeRange); !since.IsZero() {
		filters = append(filters, "created_at_i>="+strconv.FormatInt(since.Unix(), 10))
	}
	if len(filters) > 0 {
		q.Set("numericFilters", strings.Join(filters, ","))
	}

	var resp searchResponse
	if err := c.getJSON(ctx, endpoint+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("hackernews search: %w", err)
	}

	stories := make([]models.Story, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if hit.Title == "" {
			continue
		}
		tags := make([]models.StoryTag, 0, len(hit.Tags))
		for _, t := range hit.Tags {
			if models.ValidTags[models.StoryTag(t)] {
				tags = append(tags, models.StoryTag(t))
			}
		}
		permalink := "https://news.ycombinator.com/item?id=" + hit.ObjectID
		storyURL := hit.URL
		if storyURL == "" {
			storyURL = permalink
		}
		stories = append(stories, models.Story{
			ID:          hit.ObjectID,
			Title:       hit.Title,
			URL:         storyURL,
			Permalink:   permalink,
			Text:        StripHTML(hit.StoryText),
			Points:      hit.Points,
			Author:      hit.Author,
			CreatedAt:   time.Unix(hit.CreatedAtI, 0).UTC(),
			Tags:        tags,
			NumComments: hit.NumComments,
			PrimaryTag:  models.PrimaryTag(tags),
		})
	}
	return stories, nil
}

// Comments fetches a story's comment tree and flattens it. Comments with
// empty text (deleted or flagged) are dropped; text is HTML-stripped.
func (c *Client) Comments(ctx context.Context, storyID string) ([]models.Comment, error) {
	var root item
	if err := c.getJSON(ctx, "/items/"+url.PathEscape(storyID), &root); err != nil {
		return nil, fmt.Errorf("hackernews comments: %w", err)
	}

	var comments []models.Comment
	var walk func(node *item, parentID string)
	walk = func(node *item, parentID string) {
		for _, child := range node.Children {
			if child == nil {
				continue
			}
			id := strconv.FormatInt(child.ID, 10)
			text := StripHTML(child.Text)
			if child.Type == "comment" && text != "" {
				points := 0
				if child.Points != nil {
					points = *child.Points
				}
				comments = append(comments, models.Comment{
					ID:        id,
					Text:      text,
					Points:    points,
					Author:    child.Author,
					CreatedAt: time.Unix(child.CreatedAtI, 0).UTC(),
					StoryID:   storyID,
					ParentID:  parentID,
					Permalink: "https://news.ycombinator.com/item?id=" + id,
				})
			}
			walk(child, id)
		}
	}
	walk(&root, "")
	return comments, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// rangeStart returns the lower creation bound for a time range, or the
// zero time for RangeAll.
func rangeStart(r models.TimeRange) time.Time {
	now := time.Now().UTC()
	switch r {
	case models.RangeWeek:
		return now.AddDate(0, 0, -7)
	case models.RangeMonth:
		return now.AddDate(0, -1, 0)
	case models.RangeYear:
		return now.AddDate(-1, 0, 0)
	default:
		return time.Time{}
	}
}
