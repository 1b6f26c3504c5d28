// Package router matches inbound chat messages against an ordered
// command table and dispatches the first full match to its handler.
package router

import (
	"regexp"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/music/engine"
)

// PermissionChecker gates elevated commands. The router consults it;
// the playback engine never does.
type PermissionChecker interface {
	IsAllowed(guildID, userID string, elevated bool) bool
}

// Context is handed to every handler with the originating message and
// the guild's playback engine.
type Context struct {
	Session *discordgo.Session
	Message *discordgo.MessageCreate
	GuildID string
	Engine  *engine.Engine
}

// HandlerFunc receives the dispatch context plus the non-empty captured
// groups of the matched pattern, in order.
type HandlerFunc func(ctx *Context, args ...string) error

// Command binds one full-string pattern to a handler. Registration
// order defines dispatch priority.
type Command struct {
	pattern  *regexp.Regexp
	handler  HandlerFunc
	elevated bool
}

// Router holds the per-guild command table. A message matches at most
// one command; handler panics and errors never escape Dispatch.
type Router struct {
	commands []Command
	perms    PermissionChecker
}

func New(perms PermissionChecker) *Router {
	return &Router{perms: perms}
}

// Register appends a command. The pattern is anchored to the full
// message; a bad pattern is a programming error and panics at startup.
func (r *Router) Register(pattern string, elevated bool, handler HandlerFunc) {
	re := regexp.MustCompile(`\A(?:` + pattern + `)\z`)
	r.commands = append(r.commands, Command{pattern: re, handler: handler, elevated: elevated})
}

// Dispatch routes content to the first matching command and reports
// whether anything matched. No match is not an error.
func (r *Router) Dispatch(ctx *Context, content string) bool {
	for _, cmd := range r.commands {
		m := cmd.pattern.FindStringSubmatch(content)
		if m == nil {
			continue
		}

		userID := ""
		if ctx.Message != nil && ctx.Message.Author != nil {
			userID = ctx.Message.Author.ID
		}

		if r.perms != nil && !r.perms.IsAllowed(ctx.GuildID, userID, cmd.elevated) {
			log.Info().Str("guild", ctx.GuildID).Str("user", userID).
				Str("command", content).Msg("command denied by permissions")
			return true
		}

		var args []string
		for _, g := range m[1:] {
			if g != "" {
				args = append(args, g)
			}
		}

		r.invoke(ctx, cmd, content, args)
		return true
	}

	log.Trace().Str("guild", ctx.GuildID).Str("content", content).Msg("no command matched")
	return false
}

// invoke shields the router from handler failures: a panicking or
// erroring handler is logged and the message otherwise ignored.
func (r *Router) invoke(ctx *Context, cmd Command, content string, args []string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("guild", ctx.GuildID).Str("command", content).
				Interface("panic", rec).Msg("command handler panicked")
		}
	}()

	if err := cmd.handler(ctx, args...); err != nil {
		log.Error().Err(err).Str("guild", ctx.GuildID).Str("command", content).
			Msg("command handler failed")
	}
}
