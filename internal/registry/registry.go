// Package registry tracks the per-guild runtime: one playback engine
// and one command router per guild the bot is a member of.
package registry

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/music/engine"
	"github.com/keshon/jukebox/internal/router"
)

// EngineFactory builds the guild's playback engine.
type EngineFactory func(guildID string) *engine.Engine

// RouterFactory builds the guild's command table.
type RouterFactory func(guildID string) *router.Router

// Entry is one guild's live runtime.
type Entry struct {
	GuildID string
	Engine  *engine.Engine
	Router  *router.Router

	cancel context.CancelFunc
}

// Registry is the guild id -> runtime map. Safe for concurrent use by
// gateway event handlers.
type Registry struct {
	newEngine EngineFactory
	newRouter RouterFactory

	mu     sync.RWMutex
	guilds map[string]*Entry
}

func New(newEngine EngineFactory, newRouter RouterFactory) *Registry {
	return &Registry{
		newEngine: newEngine,
		newRouter: newRouter,
		guilds:    make(map[string]*Entry),
	}
}

// Create registers a guild and starts its engine loop. Idempotent: an
// already registered guild keeps its existing runtime.
func (r *Registry) Create(ctx context.Context, guildID string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.guilds[guildID]; ok {
		return e
	}

	runCtx, cancel := context.WithCancel(ctx)
	e := &Entry{
		GuildID: guildID,
		Engine:  r.newEngine(guildID),
		Router:  r.newRouter(guildID),
		cancel:  cancel,
	}
	go e.Engine.Run(runCtx)
	r.guilds[guildID] = e

	log.Info().Str("guild", guildID).Msg("guild registered")
	return e
}

// Get returns the guild's runtime, nil when unregistered.
func (r *Registry) Get(guildID string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.guilds[guildID]
}

// Router returns the guild's live command table, nil when
// unregistered. Read through here, not Entry, so prefix changes are
// race-free.
func (r *Registry) Router(guildID string) *router.Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.guilds[guildID]; ok {
		return e.Router
	}
	return nil
}

// SetRouter swaps the guild's command table, used after a prefix
// change.
func (r *Registry) SetRouter(guildID string, rt *router.Router) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.guilds[guildID]; ok {
		e.Router = rt
	}
}

// Remove tears the guild's runtime down; the engine loop disconnects
// voice on its way out.
func (r *Registry) Remove(guildID string) {
	r.mu.Lock()
	e, ok := r.guilds[guildID]
	delete(r.guilds, guildID)
	r.mu.Unlock()

	if ok {
		e.cancel()
		log.Info().Str("guild", guildID).Msg("guild removed")
	}
}

// Close stops every guild runtime.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.guilds {
		e.cancel()
		delete(r.guilds, id)
	}
}
