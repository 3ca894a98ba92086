/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package callkit is the top-level entry point: it wires a signaling
// channel, media acquisition, and the call client together behind one
// facade so an embedding application only deals with this package.
package callkit

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dentalio/callkit-go/calling"
	"github.com/dentalio/callkit-go/callsdk"
	"github.com/dentalio/callkit-go/media"
	"github.com/dentalio/callkit-go/signaling"
)

// Config holds the configuration for the top-level client.
type Config struct {
	// SignalURL is the websocket endpoint of the signaling gateway.
	// Required unless Channel is set.
	SignalURL string

	// Channel overrides SignalURL with a caller-supplied signaling
	// channel. Used by tests and in-process deployments.
	Channel signaling.Channel

	// Socket configures the websocket channel built from SignalURL.
	Socket *signaling.SocketConfig

	// Namespace selects the presence namespace. Defaults to
	// signaling.DefaultNamespace.
	Namespace string

	// Acquirer overrides device capture, e.g. with media.StaticAcquirer.
	Acquirer media.Acquirer

	// ICEServers overrides the default STUN list.
	ICEServers []webrtc.ICEServer

	// Constraints are the capture hints for local media.
	Constraints media.Constraints

	// SetupTimeout bounds call setup; zero keeps the calling default.
	SetupTimeout time.Duration

	// Notifier receives call summaries for the conversation thread.
	Notifier calling.Notifier

	// OnLocalPreview receives the local stream of video calls.
	OnLocalPreview func(*media.Stream)

	Logger callsdk.Logger
}

// Client is the top-level client. It owns the signaling channel and
// exposes the calling client once Connect has been called.
type Client struct {
	config   *Config
	identity callsdk.Identity
	logger   callsdk.Logger

	channel signaling.Channel
	socket  *signaling.SocketChannel

	// Mutex for thread-safe lazy initialization of the calling client
	callMu        sync.Mutex
	callingClient *calling.Client
}

// New creates a top-level client for the given identity. The channel is
// built but not connected; call Connect before placing calls.
func New(identity callsdk.Identity, config *Config) (*Client, error) {
	if config == nil {
		config = &Config{}
	}
	if identity.UserID == "" {
		return nil, fmt.Errorf("callkit: identity user id is required")
	}

	logger := callsdk.EnsureLogger(config.Logger)

	c := &Client{
		config:   config,
		identity: identity,
		logger:   logger,
	}

	switch {
	case config.Channel != nil:
		c.channel = config.Channel
	case config.SignalURL != "":
		socketConfig := config.Socket
		if socketConfig == nil {
			socketConfig = signaling.DefaultSocketConfig()
		}
		if socketConfig.Logger == nil {
			socketConfig.Logger = logger
		}
		socket := signaling.NewSocket(config.SignalURL, socketConfig)
		c.socket = socket
		c.channel = socket
	default:
		return nil, fmt.Errorf("callkit: either SignalURL or Channel is required")
	}

	return c, nil
}

// Connect establishes the signaling connection and registers the local
// identity. Registration is repeated after every reconnect.
func (c *Client) Connect() error {
	if c.socket != nil {
		c.socket.SetOnConnect(func() {
			if err := c.Calling().Register(); err != nil {
				c.logger.Printf("callkit: presence registration failed: %v", err)
			}
		})
		return c.socket.Connect()
	}
	return c.Calling().Register()
}

// Calling returns the call client, building it on first use.
func (c *Client) Calling() *calling.Client {
	c.callMu.Lock()
	defer c.callMu.Unlock()
	if c.callingClient == nil {
		cfg := calling.DefaultConfig()
		cfg.Channel = c.channel
		cfg.Identity = c.identity
		cfg.Logger = c.logger
		if c.config.Namespace != "" {
			cfg.Namespace = c.config.Namespace
		}
		if c.config.Acquirer != nil {
			cfg.Acquirer = c.config.Acquirer
		} else {
			cfg.Acquirer = media.NewDeviceAcquirer(c.logger)
		}
		if len(c.config.ICEServers) > 0 {
			cfg.ICEServers = c.config.ICEServers
		}
		if c.config.Constraints != (media.Constraints{}) {
			cfg.Constraints = c.config.Constraints
		}
		if c.config.SetupTimeout != 0 {
			cfg.SetupTimeout = c.config.SetupTimeout
		}
		if c.config.Notifier != nil {
			cfg.Notifier = c.config.Notifier
		}
		if c.config.OnLocalPreview != nil {
			cfg.OnLocalPreview = c.config.OnLocalPreview
		}

		client, err := calling.New(cfg)
		if err != nil {
			// Unreachable with the invariants New enforces above.
			panic(err)
		}
		c.callingClient = client
	}
	return c.callingClient
}

// Channel exposes the underlying signaling channel.
func (c *Client) Channel() signaling.Channel { return c.channel }

// Close shuts down the call client and the signaling channel.
func (c *Client) Close() error {
	c.callMu.Lock()
	callingClient := c.callingClient
	c.callMu.Unlock()

	if callingClient != nil {
		if err := callingClient.Close(); err != nil {
			c.logger.Printf("callkit: calling close: %v", err)
		}
	}
	return c.channel.Close()
}
