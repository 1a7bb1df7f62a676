// Package notify delivers optional Slack notifications when searches
// reach a terminal state. All delivery is fail-open: errors are logged,
// never returned to the pipeline.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/painscope/painscope/pkg/config"
)

const postTimeout = 10 * time.Second

// Service posts search lifecycle notifications to a Slack channel.
// Nil-safe: all methods are no-ops on a nil receiver.
type Service struct {
	api     *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewService creates a Service, or nil when Slack is not configured.
func NewService(cfg config.NotifyConfig) *Service {
	if cfg.SlackToken == "" || cfg.SlackChannel == "" {
		return nil
	}
	return &Service{
		api:     goslack.New(cfg.SlackToken),
		channel: cfg.SlackChannel,
		logger:  slog.Default().With("component", "notify"),
	}
}

// NewServiceWithAPIURL targets a custom API URL (tests).
func NewServiceWithAPIURL(token, channel, apiURL string) *Service {
	return &Service{
		api:     goslack.New(token, goslack.OptionAPIURL(apiURL)),
		channel: channel,
		logger:  slog.Default().With("component", "notify"),
	}
}

// SearchCompleted announces a finished search.
func (s *Service) SearchCompleted(ctx context.Context, searchID, topic string, painPoints int) {
	if s == nil {
		return
	}
	text := fmt.Sprintf(":white_check_mark: *Pain point search complete* — %q surfaced %d pain points.\nSearch ID: `%s`",
		topic, painPoints, searchID)
	s.post(ctx, text)
}

// SearchFailed announces a permanently failed search.
func (s *Service) SearchFailed(ctx context.Context, searchID, topic, errMsg string) {
	if s == nil {
		return
	}
	text := fmt.Sprintf(":x: *Pain point search failed* — %q: %s\nSearch ID: `%s`", topic, errMsg, searchID)
	s.post(ctx, text)
}

func (s *Service) post(ctx context.Context, text string) {
	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	_, _, err := s.api.PostMessageContext(ctx, s.channel,
		goslack.MsgOptionText(text, false),
		goslack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		s.logger.Warn("Slack notification failed", "error", err)
	}
}
