package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/shellgame/internal/server"
	"github.com/lox/shellgame/internal/tui"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 54 * time.Second
)

// Client is a WebSocket client for the cup game. It implements tui.Backend
// so the TUI drives a live server exactly like an in-process session.
type Client struct {
	serverURL  string
	conn       *websocket.Conn
	send       chan *server.Message
	updates    chan tui.StateUpdate
	logger     *log.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex
	connected  bool
	playerName string
	closeOnce  sync.Once
}

// NewClient creates a new WebSocket client.
func NewClient(serverURL string, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		serverURL: serverURL,
		send:      make(chan *server.Message, 256),
		updates:   make(chan tui.StateUpdate, 256),
		logger:    logger.WithPrefix("client"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect establishes the WebSocket connection and authenticates.
func (c *Client) Connect(playerName string) error {
	c.logger.Info("connecting to server", "url", c.serverURL)

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	// Convert http/https to ws/wss
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.playerName = playerName
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()

	authMsg, err := server.NewMessage(server.MessageTypeAuth, server.AuthData{
		PlayerName: playerName,
	})
	if err != nil {
		return err
	}
	if err := c.sendMessage(authMsg); err != nil {
		return err
	}

	c.logger.Info("connected to server", "player", playerName)
	return nil
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// sendMessage queues a message to the server.
func (c *Client) sendMessage(msg *server.Message) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return fmt.Errorf("send buffer full")
	}
}

// sendIntent builds and queues an intent message.
func (c *Client) sendIntent(messageType server.MessageType, data any) error {
	msg, err := server.NewMessage(messageType, data)
	if err != nil {
		return err
	}
	return c.sendMessage(msg)
}

// readPump handles incoming messages from the server.
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		close(c.updates)
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg server.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			return
		}
		c.logger.Debug("received message", "type", msg.Type)

		update, ok := tui.DecodeUpdate(&msg)
		if !ok {
			c.logger.Debug("no decoder for message type", "type", msg.Type)
			continue
		}
		select {
		case c.updates <- update:
		case <-c.ctx.Done():
			return
		}
	}
}

// writePump handles outgoing messages to the server.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// tui.Backend implementation

func (c *Client) SetBet(amount float64) error {
	return c.sendIntent(server.MessageTypeSetBet, server.SetBetData{Amount: amount})
}

func (c *Client) IncreaseBet() error {
	return c.sendIntent(server.MessageTypeIncreaseBet, struct{}{})
}

func (c *Client) DecreaseBet() error {
	return c.sendIntent(server.MessageTypeDecreaseBet, struct{}{})
}

func (c *Client) MaxBet() error {
	return c.sendIntent(server.MessageTypeMaxBet, struct{}{})
}

func (c *Client) PlaceBet() error {
	return c.sendIntent(server.MessageTypePlaceBet, struct{}{})
}

func (c *Client) StartRound() error {
	return c.sendIntent(server.MessageTypeStartRound, struct{}{})
}

func (c *Client) SelectCup(position int) error {
	return c.sendIntent(server.MessageTypeSelectCup, server.SelectCupData{Position: position})
}

func (c *Client) RefreshBalance() error {
	return c.sendIntent(server.MessageTypeRefreshBalance, struct{}{})
}

// Updates returns the decoded server updates. The channel closes when the
// connection drops.
func (c *Client) Updates() <-chan tui.StateUpdate {
	return c.updates
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			_ = c.conn.Close()
			c.connected = false
		}
		close(c.send)

		c.logger.Info("disconnected from server")
	})
	return nil
}
