package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/router"
	"github.com/keshon/jukebox/internal/stats"
)

// buildRouter assembles the guild's command table with its configured
// prefix. Registration order is dispatch priority: the URL forms of
// play must precede the free-text query form.
func (b *Bot) buildRouter(guildID string) *router.Router {
	p := regexp.QuoteMeta(b.settings.Guild(guildID).Prefix)
	rt := router.New(b.settings)

	rt.Register(p+`(?:pe|play embed)(?: (\S+\.(?:mp3|ogg|wav|mp4)))?`, false, b.cmdPlayFile)
	rt.Register(p+`(?:p|play) (https?://(?:www\.youtube\.com/\S*?watch\?v=[\w\-]+\S*|youtu\.be/[\w\-]+\S*))`, false, b.cmdPlayURL)
	rt.Register(p+`(?:p|play) ([^|]+(?:\|[^|]+)*)`, false, b.cmdPlayQuery)
	rt.Register(p+`(?:pl|playlist) (https?://www\.youtube\.com/\S*?list=[\w\-]+\S*)`, false, b.cmdPlayURL)
	rt.Register(p+`(?:s|skip)(?: (-?[1-9]\d*))?`, false, b.cmdSkip)
	rt.Register(p+`(?:sh|shuffle)`, false, b.cmdShuffle)
	rt.Register(p+`(?:q|queue)`, false, b.cmdQueue)
	rt.Register(p+`seek (\d{1,2}:\d\d(?::\d\d)?)`, false, b.cmdSeek)
	rt.Register(p+`top(?: (global|server))?`, false, b.cmdTop)
	rt.Register(p+`pause`, false, b.cmdPause)
	rt.Register(p+`resume`, false, b.cmdResume)
	rt.Register(p+`(?:info|i)`, false, b.cmdInfo)
	rt.Register(p+`(?:w|webui)`, false, b.cmdWebUI)
	rt.Register(p+`stop`, true, b.cmdStop)
	rt.Register(p+`prefix (\S+)`, true, b.cmdPrefix)
	rt.Register(p+`allow <@!?(\d+)>`, true, b.cmdAllow)
	rt.Register(p+`deny <@!?(\d+)>`, true, b.cmdDeny)

	return rt
}

// reply sends a code-block message to the originating channel.
func reply(ctx *router.Context, lines ...string) {
	content := "```\n" + strings.Join(lines, "\n") + "\n```"
	if _, err := ctx.Session.ChannelMessageSend(ctx.Message.ChannelID, content); err != nil {
		log.Warn().Err(err).Str("guild", ctx.GuildID).Msg("failed to send reply")
	}
}

// queueTracks resolves an identifier and feeds the results to the
// engine. Resolution runs here, before any engine lock, so a slow
// lookup never blocks the guild's other commands.
func (b *Bot) queueTracks(ctx *router.Context, identifier string) error {
	channelID := b.voiceChannelOf(ctx.GuildID, ctx.Message.Author.ID)
	if channelID == "" {
		reply(ctx, "Join a voice channel first!")
		return nil
	}

	tracks, err := b.resolver.Resolve(b.ctx, identifier)
	if err != nil {
		log.Warn().Err(err).Str("guild", ctx.GuildID).Str("identifier", identifier).
			Msg("resolution failed")
		reply(ctx, "Couldn't find anything for that, try something else")
		return nil
	}

	for i := range tracks {
		tracks[i].RequesterID = ctx.Message.Author.ID
		tracks[i].RequesterName = ctx.Message.Author.Username
		if err := ctx.Engine.Play(ctx.Message.Author.ID, &tracks[i], channelID); err != nil {
			reply(ctx, "Couldn't join your voice channel")
			return err
		}
	}

	if len(tracks) == 1 {
		reply(ctx, "Queued: "+tracks[0].Title)
	} else {
		reply(ctx, fmt.Sprintf("Queued %d tracks", len(tracks)))
	}
	return nil
}

func (b *Bot) cmdPlayURL(ctx *router.Context, args ...string) error {
	return b.queueTracks(ctx, args[0])
}

// cmdPlayQuery queues one track per '|'-separated query.
func (b *Bot) cmdPlayQuery(ctx *router.Context, args ...string) error {
	for _, q := range strings.Split(args[0], "|") {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if err := b.queueTracks(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// cmdPlayFile queues a bare media URL, from the argument or the
// message's first attachment.
func (b *Bot) cmdPlayFile(ctx *router.Context, args ...string) error {
	url := ""
	if len(args) > 0 {
		url = args[0]
	}
	if len(ctx.Message.Attachments) > 0 {
		url = ctx.Message.Attachments[0].URL
	}
	if url == "" {
		return nil
	}
	return b.queueTracks(ctx, url)
}

func (b *Bot) cmdSkip(ctx *router.Context, args ...string) error {
	n := 1
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil {
			return nil
		}
		n = parsed
	}
	ctx.Engine.Skip(n)
	return nil
}

func (b *Bot) cmdShuffle(ctx *router.Context, _ ...string) error {
	ctx.Engine.Shuffle()
	return nil
}

func (b *Bot) cmdQueue(ctx *router.Context, _ ...string) error {
	lines := append([]string{"----Queue----", ""}, ctx.Engine.Summary(time.Now())...)
	reply(ctx, lines...)
	return nil
}

// cmdSeek restarts the current track at the given timestamp. Malformed
// input is silently ignored, matching the engine's contract.
func (b *Bot) cmdSeek(ctx *router.Context, args ...string) error {
	if err := ctx.Engine.Seek(args[0]); err != nil {
		log.Debug().Err(err).Str("guild", ctx.GuildID).Str("stamp", args[0]).
			Msg("seek rejected")
	}
	return nil
}

func (b *Bot) cmdPause(ctx *router.Context, _ ...string) error {
	ctx.Engine.Pause()
	return nil
}

func (b *Bot) cmdResume(ctx *router.Context, _ ...string) error {
	ctx.Engine.Resume()
	return nil
}

func (b *Bot) cmdStop(ctx *router.Context, _ ...string) error {
	ctx.Engine.ClearAll()
	reply(ctx, "Stopped and cleared the queue")
	return nil
}

func (b *Bot) cmdTop(ctx *router.Context, args ...string) error {
	scope, label, subject := stats.TopLocal, "Local", ctx.Message.Author.Username
	if len(args) > 0 {
		switch args[0] {
		case "global":
			scope, label = stats.TopGlobal, "Global"
		case "server":
			scope, label = stats.TopServer, "Server"
			if guild, err := ctx.Session.State.Guild(ctx.GuildID); err == nil {
				subject = guild.Name
			}
		}
	}

	songs, err := b.stats.TopSongs(scope, ctx.Message.Author.ID, ctx.GuildID)
	if err != nil {
		return fmt.Errorf("top songs lookup: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n**%s top for %s**\n```\n", label, subject)
	for i, s := range songs {
		fmt.Fprintf(&sb, "%d. %s, %s, %d\n", i+1, s.Title, s.VideoID, s.Plays)
	}
	sb.WriteString("```")

	_, err = ctx.Session.ChannelMessageSend(ctx.Message.ChannelID, sb.String())
	return err
}

func (b *Bot) cmdInfo(ctx *router.Context, _ ...string) error {
	uptime := time.Since(b.started).Truncate(time.Second)
	reply(ctx,
		"Jukebox - your guild's music companion",
		fmt.Sprintf("Uptime: %s", uptime))
	return nil
}

// cmdWebUI DMs the user their one-time key exchange URL.
func (b *Bot) cmdWebUI(ctx *router.Context, _ ...string) error {
	issued, err := b.webkeys.Issue(ctx.Message.Author.ID)
	if err != nil {
		return fmt.Errorf("issue web key: %w", err)
	}

	var msg string
	switch {
	case issued.Resent:
		msg = fmt.Sprintf("Resending URL:\n%s\nExpires soon", issued.URL)
	case issued.Renewed:
		msg = fmt.Sprintf("Regenerated URL:\n%s\nExpires in 5 minutes", issued.URL)
	default:
		msg = fmt.Sprintf("Your URL:\n%s\nExpires in 5 minutes", issued.URL)
	}

	dm, err := ctx.Session.UserChannelCreate(ctx.Message.Author.ID)
	if err == nil {
		_, err = ctx.Session.ChannelMessageSend(dm.ID, msg)
	}
	if err != nil {
		log.Warn().Err(err).Str("user", ctx.Message.Author.ID).Msg("failed to DM web key URL")
		_, serr := ctx.Session.ChannelMessageSend(ctx.Message.ChannelID,
			ctx.Message.Author.Mention()+"\n```\nCouldn't send the webui URL through your DM. Check your privacy settings and try again.\n```")
		return serr
	}
	return nil
}

func (b *Bot) cmdPrefix(ctx *router.Context, args ...string) error {
	if err := b.settings.SetPrefix(ctx.GuildID, args[0]); err != nil {
		reply(ctx, "That prefix won't work")
		return nil
	}
	b.registry.SetRouter(ctx.GuildID, b.buildRouter(ctx.GuildID))
	reply(ctx, "Prefix changed to "+args[0])
	return nil
}

func (b *Bot) cmdAllow(ctx *router.Context, args ...string) error {
	b.settings.Allow(ctx.GuildID, args[0])
	reply(ctx, "User granted elevated commands")
	return nil
}

func (b *Bot) cmdDeny(ctx *router.Context, args ...string) error {
	b.settings.Deny(ctx.GuildID, args[0])
	reply(ctx, "User denied all commands")
	return nil
}
