package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/onnwee/chatfeed/irc"
	"github.com/onnwee/chatfeed/telemetry"
	"github.com/onnwee/chatfeed/transport"
)

// refreshCommand makes moderators re-fetch emotes and badges.
const refreshCommand = "!refreshoverlay"

func (s *Session) dispatch(ctx context.Context, conn transport.Conn, ev *irc.Event) error {
	switch ev.Command {
	case "PING":
		return conn.WriteLine("PONG :" + ev.Param(0))
	case "001", "372", "375", "376", "JOIN":
		if s.State() != StateJoined {
			s.setState(StateJoined)
			s.logger.Info("joined channel", slog.String("via", ev.Command))
		}
	case "RECONNECT":
		return errServerReconnect
	case "CLEARMSG":
		if id := ev.Tags.String("target-msg-id"); id != "" {
			s.store.RemoveByID(id)
		}
	case "CLEARCHAT":
		if user := ev.Param(1); user != "" {
			n := s.store.RemoveByUser(user)
			s.logger.Debug("cleared user messages", slog.String("user", user), slog.Int("removed", n))
		} else {
			s.store.Clear()
		}
	case "ROOMSTATE", "USERSTATE":
		if id := ev.Tags.String("room-id"); id != "" && s.ChannelID() == "0" {
			s.setChannelID(id)
			s.logger.Info("learned channel id from room state", slog.String("channel_id", id))
			s.goBackground(ctx, s.refreshChannelScoped)
		}
	case "PRIVMSG":
		s.handlePrivmsg(ctx, ev)
	}
	return nil
}

func (s *Session) handlePrivmsg(ctx context.Context, ev *irc.Event) {
	if len(ev.Params) < 2 || ev.Params[0] != "#"+s.channel {
		return
	}
	body := ev.Params[1]
	username := ev.Nick()
	if body == "" || username == "" {
		return
	}

	if strings.EqualFold(body, refreshCommand) {
		// only trust badges the server attached to the line
		if ev.Tags.HasBadge("moderator", "broadcaster") {
			s.logger.Info("overlay refresh requested", slog.String("by", username))
			s.goBackground(ctx, s.Refresh)
		} else {
			s.logger.Debug("ignoring refresh from unprivileged user", slog.String("user", username))
		}
		return
	}

	if reason := s.filter.Reason(username, body); reason != "" {
		telemetry.IncFiltered(reason)
		return
	}

	if s.opts.ShowBadges && s.opts.Badges != nil {
		if uid := ev.Tags.String("user-id"); uid != "" && !s.opts.Badges.HasBadges(username) {
			s.goBackground(ctx, func(ctx context.Context) {
				s.opts.Badges.LoadUserBadges(ctx, username, uid)
			})
		}
	}

	msg := s.enricher.Enrich(username, ev.Tags, body)
	if s.store.Append(msg) {
		telemetry.IncMessages()
	}
}
