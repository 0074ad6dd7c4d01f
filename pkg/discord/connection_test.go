package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnection_RequiresToken(t *testing.T) {
	_, err := NewConnection("  ", nil)
	assert.Error(t, err)
}

func TestNewConnection_NotReadyUntilGatewayReady(t *testing.T) {
	c, err := NewConnection("test-token", nil)
	require.NoError(t, err)

	assert.False(t, c.Ready())
	assert.NoError(t, c.Close(), "closing an unopened connection is a no-op")

	c.onReady(c.session, &discordgo.Ready{User: &discordgo.User{ID: "bot_1"}})
	assert.True(t, c.Ready())

	// a second ready after a reconnect must not panic on the closed channel
	assert.NotPanics(t, func() {
		c.onReady(c.session, &discordgo.Ready{User: &discordgo.User{ID: "bot_1"}})
	})
}

func TestNewConnection_Intents(t *testing.T) {
	c, err := NewConnection("test-token", nil)
	require.NoError(t, err)

	intents := c.session.Identify.Intents
	assert.NotZero(t, intents&discordgo.IntentsGuildMembers)
	assert.NotZero(t, intents&discordgo.IntentsGuilds)

	dir, err := c.Directory()
	require.NoError(t, err)
	assert.NotNil(t, dir)
}
