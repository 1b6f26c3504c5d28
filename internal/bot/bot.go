// Package bot wires the Discord gateway to the per-guild runtimes:
// events in, registry lookups, command dispatch, membership accounting.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/config"
	"github.com/keshon/jukebox/internal/music/engine"
	"github.com/keshon/jukebox/internal/music/resolver"
	"github.com/keshon/jukebox/internal/music/voice"
	"github.com/keshon/jukebox/internal/registry"
	"github.com/keshon/jukebox/internal/router"
	"github.com/keshon/jukebox/internal/settings"
	"github.com/keshon/jukebox/internal/stats"
	"github.com/keshon/jukebox/internal/webkey"
)

// Bot owns the gateway session and the shared collaborators handed to
// every guild runtime.
type Bot struct {
	dg       *discordgo.Session
	cfg      *config.Config
	registry *registry.Registry
	settings *settings.Settings
	stats    *stats.Store
	resolver *resolver.Resolver
	webkeys  *webkey.Service

	ctx     context.Context // process lifetime, parents every guild runtime
	started time.Time
}

// Run connects to Discord and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, st *settings.Settings,
	db *stats.Store, res *resolver.Resolver, wk *webkey.Service) error {

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	b := &Bot{
		dg:       dg,
		cfg:      cfg,
		settings: st,
		stats:    db,
		resolver: res,
		webkeys:  wk,
		ctx:      ctx,
		started:  time.Now(),
	}
	b.registry = registry.New(b.newEngine, b.buildRouter)
	defer b.registry.Close()

	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentMessageContent

	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onGuildCreate)
	dg.AddHandler(b.onGuildDelete)
	dg.AddHandler(b.onMessageCreate)
	dg.AddHandler(b.onVoiceStateUpdate)
	dg.AddHandler(b.onGuildMemberAdd)
	dg.AddHandler(b.onGuildMemberRemove)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer dg.Close()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, closing gateway")
	return nil
}

// newEngine is the registry's engine factory.
func (b *Bot) newEngine(guildID string) *engine.Engine {
	return engine.New(guildID,
		func(gid string) engine.Session { return voice.NewSession(b.dg, gid) },
		b.stats,
		engine.Options{EvictionInterval: b.cfg.EvictionInterval})
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).
		Msg("gateway ready")
}

// onGuildCreate fires once per guild on connect and again on joins.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	b.registry.Create(b.ctx, g.ID)
	b.settings.SetOwner(g.ID, g.OwnerID)

	members := g.Members
	go func() {
		users := make([]stats.UserRef, 0, len(members))
		ids := make([]string, 0, len(members))
		for _, m := range members {
			users = append(users, stats.UserRef{ID: m.User.ID, Name: m.User.Username})
			ids = append(ids, m.User.ID)
		}
		if err := b.stats.RegisterServer(g.ID, g.Name, g.OwnerID); err != nil {
			log.Warn().Err(err).Str("guild", g.ID).Msg("failed to register guild")
			return
		}
		if err := b.stats.RegisterUsers(users); err != nil {
			log.Warn().Err(err).Str("guild", g.ID).Msg("failed to register guild users")
			return
		}
		if err := b.stats.RegisterMemberships(g.ID, ids); err != nil {
			log.Warn().Err(err).Str("guild", g.ID).Msg("failed to register memberships")
		}
	}()

	log.Info().Str("guild", g.ID).Str("name", g.Name).Msg("joined guild")
}

func (b *Bot) onGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	// Unavailable means an outage on Discord's side, not a removal.
	if g.Unavailable {
		return
	}
	b.registry.Remove(g.ID)
	b.settings.Remove(g.ID)
	log.Info().Str("guild", g.ID).Msg("removed from guild")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	entry := b.registry.Get(m.GuildID)
	if entry == nil {
		return
	}
	rt := b.registry.Router(m.GuildID)
	if rt == nil {
		return
	}

	ctx := &router.Context{
		Session: s,
		Message: m,
		GuildID: m.GuildID,
		Engine:  entry.Engine,
	}
	// Dispatch off the gateway callback so one slow handler never stalls
	// event delivery for other guilds.
	go func() {
		if rt.Dispatch(ctx, m.Content) {
			if err := b.stats.RecordCommand(m.Content, m.Author.ID, m.GuildID); err != nil {
				log.Warn().Err(err).Str("guild", m.GuildID).Msg("failed to record command")
			}
		}
	}()
}

// onVoiceStateUpdate watches for the bot's own voice state losing its
// channel, which means the platform (or an operator) kicked us.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.UserID != s.State.User.ID || v.ChannelID != "" {
		return
	}
	if entry := b.registry.Get(v.GuildID); entry != nil {
		entry.Engine.HandleVoiceDropped()
	}
}

func (b *Bot) onGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	go func() {
		if err := b.stats.RegisterUsers([]stats.UserRef{{ID: m.User.ID, Name: m.User.Username}}); err != nil {
			log.Warn().Err(err).Str("user", m.User.ID).Msg("failed to register member")
			return
		}
		if err := b.stats.RegisterMemberships(m.GuildID, []string{m.User.ID}); err != nil {
			log.Warn().Err(err).Str("user", m.User.ID).Msg("failed to register membership")
		}
	}()
}

func (b *Bot) onGuildMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	go func() {
		if err := b.stats.RemoveMembership(m.GuildID, m.User.ID); err != nil {
			log.Warn().Err(err).Str("user", m.User.ID).Msg("failed to remove membership")
		}
	}()
}

// voiceChannelOf finds the voice channel the user currently occupies,
// empty when they are not in voice.
func (b *Bot) voiceChannelOf(guildID, userID string) string {
	guild, err := b.dg.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}
