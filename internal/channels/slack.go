package channels

import (
	"context"
	"regexp"
	"slices"
	"strings"

	slackgo "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/crystaldolphin/toolsmith/internal/bus"
	"github.com/crystaldolphin/toolsmith/internal/config/channel"
)

// SlackChannel implements Slack via Socket Mode.
type SlackChannel struct {
	Base
	cfg       *channel.SlackConfig
	webClient *slackgo.Client
	smClient  *socketmode.Client
	botUserID string
	mention   *regexp.Regexp
}

func NewSlackChannel(cfg *channel.SlackConfig, b bus.Bus, logger *zap.Logger) *SlackChannel {
	return &SlackChannel{
		Base: NewBase(bus.ChannelSlack, b, nil, logger), // Slack uses its own allow logic
		cfg:  cfg,
	}
}

func (s *SlackChannel) Name() bus.ChannelType { return bus.ChannelSlack }

func (s *SlackChannel) Start(ctx context.Context) error {
	if s.cfg.BotToken == "" || s.cfg.AppToken == "" {
		s.logger.Warn("bot/app token not configured")
		<-ctx.Done()
		return ctx.Err()
	}

	s.webClient = slackgo.New(s.cfg.BotToken, slackgo.OptionAppLevelToken(s.cfg.AppToken))

	if resp, err := s.webClient.AuthTestContext(ctx); err == nil {
		s.setBotUser(resp.UserID)
		s.logger.Info("connected", zap.String("bot_user_id", s.botUserID))
	} else {
		s.logger.Warn("auth test failed", zap.Error(err))
	}

	s.smClient = socketmode.New(s.webClient)
	go func() {
		if err := s.smClient.RunContext(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("socket mode stopped", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-s.smClient.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, evt)
		}
	}
}

func (s *SlackChannel) setBotUser(id string) {
	s.botUserID = id
	if id != "" {
		s.mention = regexp.MustCompile(`<@` + regexp.QuoteMeta(id) + `>\s*`)
	}
}

func (s *SlackChannel) handleEvent(ctx context.Context, evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	if evt.Request != nil {
		s.smClient.Ack(*evt.Request)
	}
	cb, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if cb.InnerEvent.Type != "message" && cb.InnerEvent.Type != "app_mention" {
		return
	}
	s.handleInnerEvent(ctx, cb.InnerEvent)
}

// slackInbound is the subset of a message / app_mention event we route on.
type slackInbound struct {
	eventType   string
	user        string
	channel     string
	text        string
	subtype     string
	channelType string
	ts          string
	threadTS    string
}

func parseInnerEvent(ev slackevents.EventsAPIInnerEvent) (slackInbound, bool) {
	switch data := ev.Data.(type) {
	case *slackevents.MessageEvent:
		return slackInbound{
			eventType:   ev.Type,
			user:        data.User,
			channel:     data.Channel,
			text:        data.Text,
			subtype:     data.SubType,
			channelType: data.ChannelType,
			ts:          data.TimeStamp,
			threadTS:    data.ThreadTimeStamp,
		}, true
	case *slackevents.AppMentionEvent:
		return slackInbound{
			eventType: ev.Type,
			user:      data.User,
			channel:   data.Channel,
			text:      data.Text,
			ts:        data.TimeStamp,
			threadTS:  data.ThreadTimeStamp,
		}, true
	}
	return slackInbound{}, false
}

func (s *SlackChannel) handleInnerEvent(ctx context.Context, ev slackevents.EventsAPIInnerEvent) {
	in, ok := parseInnerEvent(ev)
	if !ok {
		return
	}
	text, ok := s.accept(in)
	if !ok {
		return
	}

	threadTS := in.threadTS
	if s.cfg.ReplyInThread && threadTS == "" {
		threadTS = in.ts
	}

	if s.webClient != nil && in.ts != "" && s.cfg.ReactEmoji != "" {
		if err := s.webClient.AddReactionContext(ctx, s.cfg.ReactEmoji, slackgo.ItemRef{
			Channel:   in.channel,
			Timestamp: in.ts,
		}); err != nil {
			s.logger.Debug("reaction failed", zap.Error(err))
		}
	}

	s.HandleMessage(ctx, in.user, in.channel, text, map[string]any{
		"slack": map[string]any{
			"thread_ts":    threadTS,
			"channel_type": in.channelType,
		},
	})
}

// accept applies the DM and group policies and returns the text with the
// bot mention stripped.
func (s *SlackChannel) accept(in slackInbound) (string, bool) {
	if in.subtype != "" || in.user == "" || in.channel == "" || in.user == s.botUserID {
		return "", false
	}
	// app_mention delivers the same message again.
	if in.eventType == "message" && s.botUserID != "" && strings.Contains(in.text, "<@"+s.botUserID+">") {
		return "", false
	}
	if !s.isAllowedSlack(in.user, in.channel, in.channelType) {
		return "", false
	}
	if in.channelType != "im" && !s.shouldRespond(in.eventType, in.text, in.channel) {
		return "", false
	}
	text := s.stripMention(in.text)
	return text, text != ""
}

func (s *SlackChannel) isAllowedSlack(user, channel, channelType string) bool {
	if channelType == "im" {
		if !s.cfg.DM.Enabled {
			return false
		}
		if s.cfg.DM.Policy == "allowlist" {
			return slices.Contains(s.cfg.DM.AllowFrom, user)
		}
		return true
	}
	if s.cfg.GroupPolicy == "allowlist" {
		return slices.Contains(s.cfg.GroupAllowFrom, channel)
	}
	return true
}

func (s *SlackChannel) shouldRespond(evType, text, channel string) bool {
	switch s.cfg.GroupPolicy {
	case "open":
		return true
	case "mention":
		if evType == "app_mention" {
			return true
		}
		return s.botUserID != "" && strings.Contains(text, "<@"+s.botUserID+">")
	case "allowlist":
		return slices.Contains(s.cfg.GroupAllowFrom, channel)
	}
	return false
}

func (s *SlackChannel) stripMention(text string) string {
	if s.mention == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(s.mention.ReplaceAllString(text, ""))
}

func (s *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if s.webClient == nil {
		return nil
	}
	meta, _ := msg.Metadata()["slack"].(map[string]any)
	threadTS, _ := meta["thread_ts"].(string)
	channelType, _ := meta["channel_type"].(string)

	options := []slackgo.MsgOption{slackgo.MsgOptionText(msg.Content(), false)}
	if threadTS != "" && channelType != "im" {
		options = append(options, slackgo.MsgOptionTS(threadTS))
	}

	_, _, err := s.webClient.PostMessageContext(ctx, msg.ChatId(), options...)
	return err
}
