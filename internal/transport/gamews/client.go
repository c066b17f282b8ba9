// Package gamews is the websocket client for the game-server plugin. One
// connection carries the shared event stream for every agent the controller
// drives; ACT messages flow back the other way.
package gamews

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seanhlewis/mcagentgym/internal/protocol"
)

type Config struct {
	URL         string
	Name        string // controller name announced in HELLO
	Token       string
	ResumeToken string
	MaxQueue    int
	Logger      *log.Logger
}

// Hooks receive decoded server messages. They are called from the read
// goroutine, in arrival order; keep them fast and hand off to the owner.
type Hooks struct {
	OnWelcome    func(protocol.WelcomeMsg)
	OnEvent      func(protocol.EventMsg)
	OnTaskStatus func(protocol.TaskStatusMsg)
	OnAck        func(protocol.AckMsg)
}

type Status struct {
	Connected   bool
	URL         string
	AgentID     string
	ResumeToken string
	LastTick    uint64
	LastError   string
}

type Client struct {
	cfg   Config
	hooks Hooks
	log   *log.Logger

	mu sync.RWMutex

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	connected bool
	lastErr   string

	conn    *websocket.Conn
	writeMu sync.Mutex

	agentID     string
	resumeToken string
	world       protocol.WorldParams
	lastTick    uint64
	instSeq     uint64
}

func New(cfg Config, hooks Hooks) *Client {
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[gamews] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Client{
		cfg:         cfg,
		hooks:       hooks,
		log:         cfg.Logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		resumeToken: cfg.ResumeToken,
	}
}

func (c *Client) Start() {
	c.startOnce.Do(func() {
		go c.run()
	})
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		// Wake any blocking ReadMessage promptly.
		c.Disconnect()
		<-c.done
	})
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Connected:   c.connected,
		URL:         c.cfg.URL,
		AgentID:     c.agentID,
		ResumeToken: c.resumeToken,
		LastTick:    c.lastTick,
		LastError:   c.lastErr,
	}
}

// World returns the parameters announced in WELCOME; zero until connected.
func (c *Client) World() protocol.WorldParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.world
}

// Act sends one ACT message on behalf of an agent. Instants missing an ID
// get one assigned; task and control IDs are the caller's.
func (c *Client) Act(agentID string, instants []protocol.InstantReq, tasks []protocol.TaskReq, controls []protocol.ControlReq) error {
	if len(instants) == 0 && len(tasks) == 0 && len(controls) == 0 {
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	base := time.Now().UnixMilli()
	for i := range instants {
		if instants[i].ID == "" {
			c.instSeq++
			instants[i].ID = fmt.Sprintf("I_%d_%d", base, c.instSeq)
		}
	}
	for i := range controls {
		if controls[i].ID == "" {
			c.instSeq++
			controls[i].ID = fmt.Sprintf("C_%d_%d", base, c.instSeq)
		}
	}

	c.mu.RLock()
	conn := c.conn
	tick := c.lastTick
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("gamews: not connected")
	}

	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		AgentID:         agentID,
		Instants:        instants,
		Tasks:           tasks,
		Controls:        controls,
	}
	b, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("gamews: encode act: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("gamews: write act: %w", err)
	}
	return nil
}

// EmitChat sends one chat line. Channel defaults to LOCAL.
func (c *Client) EmitChat(agentID, channel, text string) error {
	if channel == "" {
		channel = "LOCAL"
	}
	return c.Act(agentID, []protocol.InstantReq{{Type: protocol.InstSay, Channel: channel, Text: text}}, nil, nil)
}

func (c *Client) run() {
	defer close(c.done)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-c.stop:
			c.Disconnect()
			return
		default:
		}

		if err := c.connectAndReadLoop(); err != nil {
			c.mu.Lock()
			c.connected = false
			c.lastErr = err.Error()
			c.mu.Unlock()
			c.log.Printf("disconnected: %v (retry in %s)", err, backoff)
			select {
			case <-c.stop:
				c.Disconnect()
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
				if backoff > 5*time.Second {
					backoff = 5 * time.Second
				}
			}
			continue
		}
		return
	}
}

func (c *Client) connectAndReadLoop() error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(c.cfg.URL, http.Header{})
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       c.cfg.Name,
		Capabilities: protocol.HelloCapabilities{
			MaxQueue:   c.cfg.MaxQueue,
			TaskStatus: true,
		},
	}
	c.mu.RLock()
	rt := c.resumeToken
	c.mu.RUnlock()
	if rt != "" {
		hello.ResumeToken = rt
	}
	if c.cfg.Token != "" {
		hello.Auth = &protocol.HelloAuth{Token: c.cfg.Token}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.lastErr = ""
	c.mu.Unlock()

	for {
		select {
		case <-c.stop:
			_ = conn.Close()
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			if !protocol.IsSupportedVersion(w.ProtocolVersion) {
				continue
			}
			c.mu.Lock()
			c.agentID = w.AgentID
			c.resumeToken = w.ResumeToken
			c.world = w.WorldParams
			c.connected = true
			c.mu.Unlock()
			c.log.Printf("connected agent_id=%s tick_rate=%dhz", w.AgentID, w.WorldParams.TickRateHz)
			if c.hooks.OnWelcome != nil {
				c.hooks.OnWelcome(w)
			}

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			c.mu.Lock()
			if ev.Tick > c.lastTick {
				c.lastTick = ev.Tick
			}
			c.mu.Unlock()
			if c.hooks.OnEvent != nil {
				c.hooks.OnEvent(ev)
			}

		case protocol.TypeTaskStatus:
			var ts protocol.TaskStatusMsg
			if err := json.Unmarshal(msg, &ts); err != nil {
				continue
			}
			if c.hooks.OnTaskStatus != nil {
				c.hooks.OnTaskStatus(ts)
			}

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if !ack.Accepted {
				c.log.Printf("rejected %s: %s %s", ack.AckFor, ack.Code, ack.Message)
			}
			if c.hooks.OnAck != nil {
				c.hooks.OnAck(ack)
			}
		}
	}
}
