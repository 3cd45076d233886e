package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"guildstats/internal/database"
	"guildstats/internal/metrics"
	"guildstats/internal/models"
	"guildstats/internal/stats"
	"guildstats/internal/tracker"
	"guildstats/pkg/utils"
)

const topLimit = 10

// Bot represents the Discord bot
type Bot struct {
	session    *discordgo.Session
	tracker    *tracker.Tracker
	stats      *stats.Service
	repository *database.Repository
	logger     zerolog.Logger
}

// New creates a new Discord bot
func New(token string, trk *tracker.Tracker, statsService *stats.Service, repository *database.Repository, logger zerolog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	bot := &Bot{
		session:    session,
		tracker:    trk,
		stats:      statsService,
		repository: repository,
		logger:     logger.With().Str("component", "discord").Logger(),
	}

	session.AddHandler(bot.voiceStateUpdate)
	session.AddHandler(bot.messageCreate)

	return bot, nil
}

// Start starts the bot
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	b.logger.Info().Msg("Bot is running")
	return nil
}

// Stop stops the bot
func (b *Bot) Stop() error {
	return b.session.Close()
}

// voiceStateUpdate handles voice state updates
func (b *Bot) voiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot {
		return
	}

	oldChannelID := ""
	if vs.BeforeUpdate != nil {
		oldChannelID = vs.BeforeUpdate.ChannelID
	}

	err := b.tracker.OnVoiceTransition(context.Background(), vs.GuildID, vs.UserID, oldChannelID, vs.ChannelID, time.Now().UTC())
	if err != nil {
		b.logger.Error().Err(err).
			Str("guild_id", vs.GuildID).
			Str("user_id", vs.UserID).
			Msg("Failed to record voice transition")
	}
}

// messageCreate tracks message activity and dispatches prefix commands
func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	err := b.tracker.OnMessage(context.Background(), m.GuildID, m.Author.ID, m.ChannelID, m.Timestamp)
	if err != nil {
		b.logger.Error().Err(err).
			Str("guild_id", m.GuildID).
			Str("user_id", m.Author.ID).
			Msg("Failed to record message")
	}

	content := strings.TrimSpace(m.Content)

	switch {
	case content == "!stats" || strings.HasPrefix(content, "!stats "):
		b.handleStatsCommand(s, m, content)
	case strings.HasPrefix(content, "!chanstats"):
		b.handleChanStatsCommand(s, m, content)
	case content == "!top" || strings.HasPrefix(content, "!top "):
		b.handleTopCommand(s, m, content)
	}
}

// parsePeriodArgs interprets trailing command arguments as a period
// specifier: "7d"/"all" presets, or a from/to day pair for a custom range.
func parsePeriodArgs(args []string) (stats.PeriodQuery, error) {
	switch len(args) {
	case 0:
		return stats.PeriodQuery{}, nil
	case 1:
		if _, err := models.ParseDay(args[0]); err == nil {
			// A lone date is half of a custom range.
			return stats.PeriodQuery{}, stats.ErrPartialCustomRange
		}
		return stats.PeriodQuery{Period: args[0]}, nil
	case 2:
		return stats.PeriodQuery{From: args[0], To: args[1]}, nil
	default:
		return stats.PeriodQuery{}, fmt.Errorf("too many arguments")
	}
}

// handleStatsCommand handles "!stats [@user] [period | from to]"
func (b *Bot) handleStatsCommand(s *discordgo.Session, m *discordgo.MessageCreate, content string) {
	args := strings.Fields(content)[1:]

	targetID := m.Author.ID
	if len(args) > 0 && utils.IsUserMention(args[0]) {
		targetID = utils.ExtractUserIDFromMention(args[0])
		args = args[1:]
	}

	query, err := parsePeriodArgs(args)
	if err != nil {
		b.replyUsage(s, m.ChannelID, "Usage: !stats [@user] [3d|7d|30d|90d|all | YYYY-MM-DD YYYY-MM-DD]")
		return
	}

	activity, err := b.stats.GetUserActivity(context.Background(), m.GuildID, targetID, query)
	if err != nil {
		b.replyError(s, m, err, "Failed to fetch user stats.")
		return
	}

	metrics.ActivityQueries.WithLabelValues(string(models.ScopeUser), "discord").Inc()

	msg := fmt.Sprintf("📊 %s — %s\nMessages: **%d** • Voice: **%s**",
		utils.FormatUserMention(targetID),
		activity.Range.Label,
		activity.Totals.Messages,
		utils.FormatHMS(activity.Totals.VoiceSeconds))
	s.ChannelMessageSend(m.ChannelID, msg)
}

// handleChanStatsCommand handles "!chanstats <#channel> [period | from to]"
func (b *Bot) handleChanStatsCommand(s *discordgo.Session, m *discordgo.MessageCreate, content string) {
	args := strings.Fields(content)[1:]

	if len(args) == 0 || !utils.IsChannelMention(args[0]) {
		b.replyUsage(s, m.ChannelID, "Usage: !chanstats <#channel> [3d|7d|30d|90d|all | YYYY-MM-DD YYYY-MM-DD]")
		return
	}
	channelID := utils.ExtractChannelIDFromMention(args[0])

	query, err := parsePeriodArgs(args[1:])
	if err != nil {
		b.replyUsage(s, m.ChannelID, "Usage: !chanstats <#channel> [3d|7d|30d|90d|all | YYYY-MM-DD YYYY-MM-DD]")
		return
	}

	activity, err := b.stats.GetChannelActivity(context.Background(), m.GuildID, channelID, query)
	if err != nil {
		b.replyError(s, m, err, "Failed to fetch channel stats.")
		return
	}

	metrics.ActivityQueries.WithLabelValues(string(models.ScopeChannel), "discord").Inc()

	msg := fmt.Sprintf("📊 %s — %s\nMessages: **%d** • Voice: **%s**",
		utils.FormatChannelMention(channelID),
		activity.Range.Label,
		activity.Totals.Messages,
		utils.FormatHMS(activity.Totals.VoiceSeconds))
	s.ChannelMessageSend(m.ChannelID, msg)
}

// handleTopCommand handles "!top [period]"
func (b *Bot) handleTopCommand(s *discordgo.Session, m *discordgo.MessageCreate, content string) {
	args := strings.Fields(content)[1:]

	query := stats.PeriodQuery{}
	if len(args) > 0 {
		query.Period = args[0]
	}
	rng := stats.ResolveRange(query, time.Now().UTC())

	top, err := b.repository.TopUsers(context.Background(), m.GuildID, rng.Start, rng.End, topLimit)
	if err != nil {
		b.replyError(s, m, err, "Failed to fetch leaderboard.")
		return
	}

	if len(top) == 0 {
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("🏆 %s: no activity yet.", rng.Label))
		return
	}

	var lines []string
	for i, ut := range top {
		lines = append(lines, utils.FormatLeaderboardEntry(i+1,
			utils.FormatUserMention(ut.UserID),
			utils.FormatDuration(ut.VoiceSeconds)))
	}

	msg := fmt.Sprintf("🏆 Voice leaderboard — %s\n%s", rng.Label, strings.Join(lines, "\n"))
	s.ChannelMessageSend(m.ChannelID, msg)
}

func (b *Bot) replyUsage(s *discordgo.Session, channelID, usage string) {
	s.ChannelMessageSend(channelID, usage)
}

func (b *Bot) replyError(s *discordgo.Session, m *discordgo.MessageCreate, err error, fallback string) {
	if errors.Is(err, stats.ErrPartialCustomRange) {
		s.ChannelMessageSend(m.ChannelID, "For a custom range, provide both from and to as YYYY-MM-DD.")
		return
	}

	b.logger.Error().Err(err).Str("guild_id", m.GuildID).Msg("Command failed")
	s.ChannelMessageSend(m.ChannelID, fallback)
}
