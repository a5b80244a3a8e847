package venue

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sportsarb/pkg/utils"
)

// ws_reconnect.go - общий менеджер переподключения для venue WebSocket-клиентов
//
// Adapted from internal/exchange/ws_reconnect.go (WSReconnectManager):
// exponential backoff, ping/pong keepalive, resubscribe-after-reconnect.
// Отличие от оригинала: вместо authFunc(*websocket.Conn) аутентификация
// площадок (Kalshi) происходит через HTTP-заголовки на этапе dial, так как
// RSA-PSS подпись требует пересчёта на каждый reconnect с новым timestamp.

type WSReconnectConfig struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	MaxRetries     int
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

func DefaultWSReconnectConfig() WSReconnectConfig {
	return WSReconnectConfig{
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     0, // venue feeds reconnect indefinitely; the shard's own heartbeat detects staleness
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
	}
}

type WSConnectionState int32

const (
	WSStateDisconnected WSConnectionState = iota
	WSStateConnecting
	WSStateConnected
	WSStateReconnecting
	WSStateClosed
)

func (s WSConnectionState) String() string {
	switch s {
	case WSStateDisconnected:
		return "disconnected"
	case WSStateConnecting:
		return "connecting"
	case WSStateConnected:
		return "connected"
	case WSStateReconnecting:
		return "reconnecting"
	case WSStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// WSReconnectManager управляет одним WebSocket-соединением к площадке с
// автоматическим переподключением и восстановлением подписок.
type WSReconnectManager struct {
	venueName string
	wsURL     string
	config    WSReconnectConfig
	logger    *utils.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32
	retryCount int32

	closeChan chan struct{}
	closeOnce sync.Once

	onMessage    func([]byte)
	onConnect    func()
	onDisconnect func(error)
	callbackMu   sync.RWMutex

	subscriptions   []interface{}
	subscriptionsMu sync.RWMutex

	// headersFunc recomputes auth headers on every dial; nil for
	// unauthenticated (public) feeds.
	headersFunc func() http.Header
}

func NewWSReconnectManager(venueName, wsURL string, config WSReconnectConfig, headersFunc func() http.Header) *WSReconnectManager {
	return &WSReconnectManager{
		venueName:     venueName,
		wsURL:         wsURL,
		config:        config,
		logger:        utils.L().WithComponent("venue-ws-" + venueName),
		closeChan:     make(chan struct{}),
		subscriptions: make([]interface{}, 0),
		headersFunc:   headersFunc,
	}
}

func (m *WSReconnectManager) SetOnMessage(h func([]byte))    { m.callbackMu.Lock(); m.onMessage = h; m.callbackMu.Unlock() }
func (m *WSReconnectManager) SetOnConnect(h func())          { m.callbackMu.Lock(); m.onConnect = h; m.callbackMu.Unlock() }
func (m *WSReconnectManager) SetOnDisconnect(h func(error))  { m.callbackMu.Lock(); m.onDisconnect = h; m.callbackMu.Unlock() }

func (m *WSReconnectManager) AddSubscription(sub interface{}) {
	m.subscriptionsMu.Lock()
	m.subscriptions = append(m.subscriptions, sub)
	m.subscriptionsMu.Unlock()
}

func (m *WSReconnectManager) GetState() WSConnectionState {
	return WSConnectionState(atomic.LoadInt32(&m.state))
}

func (m *WSReconnectManager) IsConnected() bool { return m.GetState() == WSStateConnected }

func (m *WSReconnectManager) Connect() error {
	select {
	case <-m.closeChan:
		return fmt.Errorf("manager is closed")
	default:
	}

	atomic.StoreInt32(&m.state, int32(WSStateConnecting))
	if err := m.dial(); err != nil {
		atomic.StoreInt32(&m.state, int32(WSStateDisconnected))
		return err
	}
	atomic.StoreInt32(&m.state, int32(WSStateConnected))
	atomic.StoreInt32(&m.retryCount, 0)

	m.callbackMu.RLock()
	onConnect := m.onConnect
	m.callbackMu.RUnlock()
	if onConnect != nil {
		onConnect()
	}

	go m.readPump()
	go m.pingPump()
	m.logger.Info("websocket connected", utils.String("url", m.wsURL))
	return nil
}

func (m *WSReconnectManager) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: m.config.ConnectTimeout}
	var headers http.Header
	if m.headersFunc != nil {
		headers = m.headersFunc()
	}

	conn, _, err := dialer.DialContext(ctx, m.wsURL, headers)
	if err != nil {
		return fmt.Errorf("dial error: %w", err)
	}

	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()

	if err := m.resubscribe(); err != nil {
		m.logger.Warn("resubscribe failed", utils.Err(err))
	}
	return nil
}

func (m *WSReconnectManager) resubscribe() error {
	m.subscriptionsMu.RLock()
	subs := make([]interface{}, len(m.subscriptions))
	copy(subs, m.subscriptions)
	m.subscriptionsMu.RUnlock()

	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	for _, sub := range subs {
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("resubscribe: %w", err)
		}
	}
	return nil
}

func (m *WSReconnectManager) readPump() {
	defer m.handleDisconnect(nil)
	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		m.connMu.RLock()
		conn := m.conn
		m.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(err)
			return
		}

		m.callbackMu.RLock()
		onMessage := m.onMessage
		m.callbackMu.RUnlock()
		if onMessage != nil {
			onMessage(message)
		}
	}
}

func (m *WSReconnectManager) pingPump() {
	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.closeChan:
			return
		case <-ticker.C:
			m.connMu.RLock()
			conn := m.conn
			m.connMu.RUnlock()
			if conn == nil || m.GetState() != WSStateConnected {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(m.config.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.handleDisconnect(err)
				return
			}
		}
	}
}

func (m *WSReconnectManager) handleDisconnect(err error) {
	select {
	case <-m.closeChan:
		return
	default:
	}

	state := m.GetState()
	if state == WSStateReconnecting || state == WSStateClosed {
		return
	}
	atomic.StoreInt32(&m.state, int32(WSStateReconnecting))

	m.connMu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connMu.Unlock()

	m.callbackMu.RLock()
	onDisconnect := m.onDisconnect
	m.callbackMu.RUnlock()
	if onDisconnect != nil {
		onDisconnect(err)
	}
	if err != nil {
		m.logger.Warn("websocket disconnected", utils.Err(err))
	}

	go m.reconnectLoop()
}

func (m *WSReconnectManager) reconnectLoop() {
	delay := m.config.InitialDelay
	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		retryCount := atomic.AddInt32(&m.retryCount, 1)
		if m.config.MaxRetries > 0 && int(retryCount) > m.config.MaxRetries {
			m.logger.Error("max reconnect attempts reached", utils.Int("attempts", int(retryCount)))
			atomic.StoreInt32(&m.state, int32(WSStateDisconnected))
			return
		}

		select {
		case <-m.closeChan:
			return
		case <-time.After(delay):
		}

		if err := m.dial(); err != nil {
			delay *= 2
			if delay > m.config.MaxDelay {
				delay = m.config.MaxDelay
			}
			continue
		}

		atomic.StoreInt32(&m.state, int32(WSStateConnected))
		atomic.StoreInt32(&m.retryCount, 0)

		m.callbackMu.RLock()
		onConnect := m.onConnect
		m.callbackMu.RUnlock()
		if onConnect != nil {
			onConnect()
		}

		go m.readPump()
		go m.pingPump()
		return
	}
}

func (m *WSReconnectManager) Send(msg interface{}) error {
	if m.GetState() != WSStateConnected {
		return fmt.Errorf("not connected (state: %s)", m.GetState())
	}
	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}
	return conn.WriteJSON(msg)
}

func (m *WSReconnectManager) Close() error {
	m.closeOnce.Do(func() { close(m.closeChan) })
	atomic.StoreInt32(&m.state, int32(WSStateClosed))

	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}
