package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerStatus represents the current state of a managed MCP server.
type ServerStatus string

const (
	StatusStopped  ServerStatus = "stopped"
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusFailed   ServerStatus = "failed"
)

// ServerState holds the state of one managed MCP server, including the pool
// bookkeeping spec §4.I requires (created_at, last_used) for TTL/idle
// eviction.
type ServerState struct {
	Name       string
	Status     ServerStatus
	Error      error
	Client     *Client
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// StatusUpdate is sent when a server's status changes.
type StatusUpdate struct {
	Name   string
	Status ServerStatus
	Error  error
}

// Pool is the session's MCP client pool (spec §4.I "mcp_pool"): a
// server_name → {client, created_at, last_used} map guarded by its own
// mutex, with TTL and idle-eviction on top of the teacher's enable/disable
// server lifecycle (internal/mcp/manager.go).
type Pool struct {
	config   *Config
	clients  map[string]*Client
	statuses map[string]*ServerState
	mu       sync.RWMutex

	statusChan chan StatusUpdate

	// idleTTL, if non-zero, evicts a client that hasn't been used for this
	// long the next time sweepIdle runs.
	idleTTL time.Duration
	// hardTTL, if non-zero, evicts a client this long after creation
	// regardless of use.
	hardTTL time.Duration
}

// NewPool creates an empty pool. cfg may be nil and set later via LoadConfig.
func NewPool(cfg *Config) *Pool {
	return &Pool{
		config:   cfg,
		clients:  make(map[string]*Client),
		statuses: make(map[string]*ServerState),
	}
}

// SetTTLs configures idle and hard eviction windows (spec §5 "MCP clients
// have a TTL and an idle-eviction policy"). Zero disables that check.
func (p *Pool) SetTTLs(idle, hard time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idleTTL = idle
	p.hardTTL = hard
}

// LoadConfig loads server definitions from the default config path.
func (p *Pool) LoadConfig() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.config = cfg
	p.mu.Unlock()
	return nil
}

// Config returns the current server configuration.
func (p *Pool) Config() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// SetStatusChannel sets a channel to receive status updates; optional.
func (p *Pool) SetStatusChannel(ch chan StatusUpdate) {
	p.mu.Lock()
	p.statusChan = ch
	p.mu.Unlock()
}

func (p *Pool) sendStatus(name string, status ServerStatus, err error) {
	p.mu.RLock()
	ch := p.statusChan
	p.mu.RUnlock()
	if ch != nil {
		select {
		case ch <- StatusUpdate{Name: name, Status: status, Error: err}:
		default:
		}
	}
}

// AvailableServers returns the names of all configured servers.
func (p *Pool) AvailableServers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.config == nil {
		return nil
	}
	return p.config.ServerNames()
}

// ServerStatus returns the current status of a server.
func (p *Pool) ServerStatus(name string) (ServerStatus, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	state, ok := p.statuses[name]
	if !ok {
		return StatusStopped, nil
	}
	return state.Status, state.Error
}

// GetClient returns a healthy pooled client for server, starting one via the
// configured factory if none exists yet (spec §4.I "get_client"). Blocks
// until the client finishes starting or fails.
func (p *Pool) GetClient(ctx context.Context, server string) (*Client, error) {
	p.sweepIdle()

	p.mu.Lock()
	if p.config == nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("no MCP configuration loaded")
	}
	serverCfg, ok := p.config.Servers[server]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("unknown MCP server: %s", server)
	}

	if state, ok := p.statuses[server]; ok && state.Status == StatusReady {
		state.LastUsedAt = time.Now()
		client := state.Client
		p.mu.Unlock()
		return client, nil
	}

	client := NewClient(server, serverCfg)
	now := time.Now()
	p.clients[server] = client
	p.statuses[server] = &ServerState{Name: server, Status: StatusStarting, Client: client, CreatedAt: now, LastUsedAt: now}
	p.mu.Unlock()

	p.sendStatus(server, StatusStarting, nil)

	err := client.Start(ctx)

	p.mu.Lock()
	state := p.statuses[server]
	if err != nil {
		state.Status = StatusFailed
		state.Error = err
	} else {
		state.Status = StatusReady
		state.Error = nil
	}
	p.mu.Unlock()

	p.sendStatus(server, state.Status, err)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// MarkUnhealthy evicts and closes server's client, so the next GetClient
// creates a fresh one (spec §4.I "mark_unhealthy").
func (p *Pool) MarkUnhealthy(server string) {
	p.mu.Lock()
	client, ok := p.clients[server]
	delete(p.clients, server)
	if state, ok := p.statuses[server]; ok {
		state.Status = StatusStopped
		state.Error = nil
		state.Client = nil
	}
	p.mu.Unlock()

	if ok {
		client.Stop()
	}
	p.sendStatus(server, StatusStopped, nil)
}

// sweepIdle evicts clients past their idle or hard TTL.
func (p *Pool) sweepIdle() {
	p.mu.RLock()
	idle, hard := p.idleTTL, p.hardTTL
	if idle == 0 && hard == 0 {
		p.mu.RUnlock()
		return
	}
	now := time.Now()
	var stale []string
	for name, state := range p.statuses {
		if state.Status != StatusReady {
			continue
		}
		if idle > 0 && now.Sub(state.LastUsedAt) > idle {
			stale = append(stale, name)
			continue
		}
		if hard > 0 && now.Sub(state.CreatedAt) > hard {
			stale = append(stale, name)
		}
	}
	p.mu.RUnlock()

	for _, name := range stale {
		p.MarkUnhealthy(name)
	}
}

// CloseAll awaits graceful shutdown of every pooled client: each client gets
// up to grace to stop before the pool moves on (spec §4.I "close_all").
func (p *Pool) CloseAll(grace time.Duration) {
	p.mu.Lock()
	clients := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		clients = append(clients, c)
	}
	p.clients = make(map[string]*Client)
	p.statuses = make(map[string]*ServerState)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			done := make(chan struct{})
			go func() {
				c.Stop()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(grace):
			}
		}(c)
	}
	wg.Wait()
}

// AllTools returns all tools from every ready server, namespaced as
// "server/tool" per spec §4.D's MCP-detection convention.
func (p *Pool) AllTools() []ToolSpec {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var allTools []ToolSpec
	for name, state := range p.statuses {
		if state.Status != StatusReady || state.Client == nil {
			continue
		}
		for _, tool := range state.Client.Tools() {
			allTools = append(allTools, ToolSpec{
				Name:        fmt.Sprintf("%s/%s", name, tool.Name),
				Description: fmt.Sprintf("[%s] %s", name, tool.Description),
				Schema:      tool.Schema,
			})
		}
	}
	return allTools
}

// CallTool routes a call to the appropriate server's client by a "/"-split
// name, returning the server's raw result for the caller to map into a
// tools.Output.
func (p *Pool) CallTool(ctx context.Context, server, tool string, args json.RawMessage) (*sdkmcp.CallToolResult, error) {
	p.mu.RLock()
	state, ok := p.statuses[server]
	p.mu.RUnlock()

	if !ok || state.Status != StatusReady || state.Client == nil {
		client, err := p.GetClient(ctx, server)
		if err != nil {
			return nil, err
		}
		return client.CallTool(ctx, tool, args)
	}

	p.mu.Lock()
	state.LastUsedAt = time.Now()
	p.mu.Unlock()

	return state.Client.CallTool(ctx, tool, args)
}

// ParseToolName splits a "server/tool" name on its single separating slash.
// Per spec §4.D, names with zero or multiple slashes are not MCP names.
func ParseToolName(fullName string) (server, tool string, ok bool) {
	if strings.Count(fullName, "/") != 1 {
		return "", "", false
	}
	idx := strings.IndexByte(fullName, '/')
	return fullName[:idx], fullName[idx+1:], true
}

// GetAllStates returns a snapshot of every server's state, for host-side
// status display.
func (p *Pool) GetAllStates() []ServerState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	states := make([]ServerState, 0, len(p.statuses))
	for _, state := range p.statuses {
		states = append(states, ServerState{
			Name:      state.Name,
			Status:    state.Status,
			Error:     state.Error,
			CreatedAt: state.CreatedAt,
			LastUsedAt: state.LastUsedAt,
		})
	}
	return states
}
