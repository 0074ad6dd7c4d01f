package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

// Connection owns the process-wide bot session: it opens the gateway,
// tracks readiness and closes it on shutdown.
type Connection struct {
	session *discordgo.Session
	logger  bridge.Logger

	mu     sync.Mutex
	ready  chan struct{}
	isOpen bool
}

// NewConnection creates an unopened bot session for token.
func NewConnection(token string, logger bridge.Logger) (*Connection, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}
	if logger == nil {
		logger = &bridge.NoopLogger{}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	session.StateEnabled = true
	session.State.TrackMembers = true
	session.State.TrackRoles = true

	c := &Connection{
		session: session,
		logger:  logger,
		ready:   make(chan struct{}),
	}
	session.AddHandler(c.onReady)
	return c, nil
}

func (c *Connection) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
	c.logger.Info("discord session ready",
		bridge.F("user_id", r.User.ID),
		bridge.F("guilds", len(r.Guilds)))
}

// Open connects to the gateway and waits until the session is ready or ctx ends.
func (c *Connection) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.isOpen {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	c.mu.Lock()
	c.isOpen = true
	c.mu.Unlock()

	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for discord ready: %w", ctx.Err())
	}
}

// Ready reports whether the gateway has delivered the ready event.
func (c *Connection) Ready() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// Close disconnects the gateway. It is safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isOpen {
		return nil
	}
	c.isOpen = false
	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

// Directory returns the membership directory backed by this session.
func (c *Connection) Directory() (*Directory, error) {
	return NewDirectory(c.session, c.session.State, c.logger)
}
