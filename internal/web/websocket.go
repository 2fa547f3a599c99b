package web

import (
	"context"

	"github.com/gorilla/websocket"
)

// WebSocketConnectionManager manages WebSocket connections using channels
type WebSocketConnectionManager struct {
	connections    map[*websocket.Conn]bool
	registerChan   chan *websocket.Conn
	unregisterChan chan *websocket.Conn
	broadcastChan  chan any
	statusChan     chan chan int // For querying connection count
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewWebSocketConnectionManager creates a new channel-based connection manager
func NewWebSocketConnectionManager(ctx context.Context) *WebSocketConnectionManager {
	managerCtx, cancel := context.WithCancel(ctx)

	manager := &WebSocketConnectionManager{
		connections:    make(map[*websocket.Conn]bool),
		registerChan:   make(chan *websocket.Conn, 10),
		unregisterChan: make(chan *websocket.Conn, 10),
		broadcastChan:  make(chan any, 100),
		statusChan:     make(chan chan int, 10),
		ctx:            managerCtx,
		cancel:         cancel,
	}

	go manager.run()
	return manager
}

// run is the main goroutine that manages WebSocket connections via channels
func (m *WebSocketConnectionManager) run() {
	defer func() {
		for conn := range m.connections {
			conn.Close()
		}
	}()

	for {
		select {
		case conn := <-m.registerChan:
			m.connections[conn] = true

		case conn := <-m.unregisterChan:
			if _, exists := m.connections[conn]; exists {
				delete(m.connections, conn)
				conn.Close()
			}

		case message := <-m.broadcastChan:
			for conn := range m.connections {
				if err := conn.WriteJSON(message); err != nil {
					// Connection failed, remove it
					delete(m.connections, conn)
					conn.Close()
				}
			}

		case responseChan := <-m.statusChan:
			responseChan <- len(m.connections)

		case <-m.ctx.Done():
			return
		}
	}
}

// RegisterConnection adds a new WebSocket connection
func (m *WebSocketConnectionManager) RegisterConnection(conn *websocket.Conn) {
	select {
	case m.registerChan <- conn:
	case <-m.ctx.Done():
	}
}

// UnregisterConnection removes a WebSocket connection
func (m *WebSocketConnectionManager) UnregisterConnection(conn *websocket.Conn) {
	select {
	case m.unregisterChan <- conn:
	case <-m.ctx.Done():
	}
}

// Broadcast sends a message to all connected clients
func (m *WebSocketConnectionManager) Broadcast(message any) {
	select {
	case m.broadcastChan <- message:
	case <-m.ctx.Done():
	}
}

// GetConnectionCount returns the current number of active connections
func (m *WebSocketConnectionManager) GetConnectionCount() int {
	responseChan := make(chan int, 1)
	select {
	case m.statusChan <- responseChan:
		return <-responseChan
	case <-m.ctx.Done():
		return 0
	}
}

// Stop gracefully shuts down the connection manager
func (m *WebSocketConnectionManager) Stop() {
	m.cancel()
}
