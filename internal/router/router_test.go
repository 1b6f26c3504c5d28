package router

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type allowAll struct{}

func (allowAll) IsAllowed(guildID, userID string, elevated bool) bool { return true }

type denyElevated struct{}

func (denyElevated) IsAllowed(guildID, userID string, elevated bool) bool { return !elevated }

func testCtx() *Context {
	return &Context{
		GuildID: "guild-1",
		Message: &discordgo.MessageCreate{
			Message: &discordgo.Message{Author: &discordgo.User{ID: "user-1"}},
		},
	}
}

func TestRouter_FirstFullMatchWins(t *testing.T) {
	r := New(allowAll{})

	var hit string
	r.Register(`\+p (\S+)`, false, func(ctx *Context, args ...string) error {
		hit = "url"
		return nil
	})
	r.Register(`\+p (.+)`, false, func(ctx *Context, args ...string) error {
		hit = "query"
		return nil
	})

	assert.True(t, r.Dispatch(testCtx(), "+p one-word"))
	assert.Equal(t, "url", hit)

	assert.True(t, r.Dispatch(testCtx(), "+p two words"))
	assert.Equal(t, "query", hit)
}

func TestRouter_RequiresFullMatch(t *testing.T) {
	r := New(allowAll{})

	called := false
	r.Register(`\+q`, false, func(ctx *Context, args ...string) error {
		called = true
		return nil
	})

	assert.False(t, r.Dispatch(testCtx(), "+queue is not +q"))
	assert.False(t, r.Dispatch(testCtx(), "say +q"))
	assert.False(t, called)

	assert.True(t, r.Dispatch(testCtx(), "+q"))
	assert.True(t, called)
}

func TestRouter_ExtractsNonEmptyGroups(t *testing.T) {
	r := New(allowAll{})

	var got []string
	r.Register(`\+(?:s|skip)(?: (-?[1-9]\d*))?`, false, func(ctx *Context, args ...string) error {
		got = args
		return nil
	})

	require.True(t, r.Dispatch(testCtx(), "+skip 3"))
	assert.Equal(t, []string{"3"}, got)

	got = nil
	require.True(t, r.Dispatch(testCtx(), "+s"))
	assert.Empty(t, got, "unmatched optional group must not appear as an argument")
}

func TestRouter_NoMatchIsNotAnError(t *testing.T) {
	r := New(allowAll{})
	r.Register(`\+q`, false, func(ctx *Context, args ...string) error { return nil })

	assert.False(t, r.Dispatch(testCtx(), "hello there"))
}

func TestRouter_ExclusiveDispatch(t *testing.T) {
	r := New(allowAll{})

	calls := 0
	handler := func(ctx *Context, args ...string) error {
		calls++
		return nil
	}
	r.Register(`\+x`, false, handler)
	r.Register(`\+x`, false, handler)

	assert.True(t, r.Dispatch(testCtx(), "+x"))
	assert.Equal(t, 1, calls, "a message matches at most one command")
}

func TestRouter_ElevatedGate(t *testing.T) {
	r := New(denyElevated{})

	var plain, privileged bool
	r.Register(`\+q`, false, func(ctx *Context, args ...string) error {
		plain = true
		return nil
	})
	r.Register(`\+stop`, true, func(ctx *Context, args ...string) error {
		privileged = true
		return nil
	})

	assert.True(t, r.Dispatch(testCtx(), "+q"))
	assert.True(t, plain)

	// Denied commands are swallowed: handled, but the handler never runs.
	assert.True(t, r.Dispatch(testCtx(), "+stop"))
	assert.False(t, privileged)
}

func TestRouter_HandlerFailuresAreContained(t *testing.T) {
	r := New(allowAll{})

	r.Register(`\+boom`, false, func(ctx *Context, args ...string) error {
		panic("handler exploded")
	})
	r.Register(`\+bad`, false, func(ctx *Context, args ...string) error {
		return errors.New("handler failed")
	})

	assert.NotPanics(t, func() {
		assert.True(t, r.Dispatch(testCtx(), "+boom"))
	})
	assert.True(t, r.Dispatch(testCtx(), "+bad"))
}
