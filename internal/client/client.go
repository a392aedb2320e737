// Package client реализует клиента синхронизации: одно логическое
// соединение с relay сервером, push/pull, прием широковещательных
// изменений, переподключение и отложенный авто-push.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cobrain-app/cobrain-sync/internal/client/state"
	"github.com/cobrain-app/cobrain-sync/internal/engine"
	"github.com/cobrain-app/cobrain-sync/internal/models"
	"github.com/cobrain-app/cobrain-sync/pkg/api"
)

//go:generate moq -out engine_mock.go . Engine

// State состояние клиента синхронизации.
type State string

// Переходы: disconnected → connecting → connected → syncing →
// (connected | error) → disconnected. Потеря соединения переводит
// клиента в error с последующим ограниченным переподключением.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateSyncing      State = "syncing"
	StateError        State = "error"
)

// Ошибки клиента.
var (
	// ErrAuthFailed сервер отклонил токен; переподключение не выполняется
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotConnected операция требует открытого соединения
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionLost соединение разорвано во время запроса
	ErrConnectionLost = errors.New("connection lost")
)

// Engine определяет интерфейс локального движка, который нужен клиенту.
type Engine interface {
	// SiteIDHex возвращает идентификатор локальной реплики.
	SiteIDHex() string

	// ChangesSince возвращает локальные изменения с db_version > version.
	ChangesSince(ctx context.Context, version uint64) ([]*models.Change, error)

	// ApplyChanges применяет входящие изменения с разрешением конфликтов.
	ApplyChanges(ctx context.Context, changes []*models.Change) (*engine.ApplyResult, error)
}

// SyncResult результат одной операции синхронизации, передаваемый
// встраивающему приложению через OnSync.
type SyncResult struct {
	Pushed  int // отправлено на сервер
	Pulled  int // получено с сервера
	Applied int // применено локально
	Skipped int // пропущено (устаревшие или битые)
}

// Options параметры клиента.
type Options struct {
	Logger               *slog.Logger
	ServerURL            string        // ws://host:port/sync
	Token                string        // токен устройства
	Debounce             time.Duration // задержка авто-push после локальной записи
	AuthTimeout          time.Duration // ожидание auth_ok
	RequestTimeout       time.Duration // ожидание push_ok/pull_ok
	ReconnectDelay       time.Duration // пауза между попытками переподключения
	MaxReconnectAttempts int           // предел попыток переподключения
}

// Значения Options по умолчанию.
const (
	DefaultDebounce             = 500 * time.Millisecond
	DefaultAuthTimeout          = 10 * time.Second
	DefaultRequestTimeout       = 30 * time.Second
	DefaultReconnectDelay       = 2 * time.Second
	DefaultMaxReconnectAttempts = 5
)

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = DefaultAuthTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	return opts
}

// Client владеет одним логическим соединением с сервером синхронизации.
//
// Клиент асинхронный и single-flight: одновременно не более одного push
// и одного pull; параллельные триггеры коалесцируются. Широковещательные
// изменения применяются немедленно, независимо от push/pull в полете.
//
// Callbacks (OnStateChange, OnSync) вызываются синхронно и не должны
// вызывать методы клиента.
type Client struct {
	engine Engine
	states state.Storage
	logger *slog.Logger
	opts   Options

	mu       sync.Mutex // соединение, pending, таймеры, флаги
	conn     *websocket.Conn
	writeMu  sync.Mutex
	pending  map[string]chan json.RawMessage
	deviceID string
	userID   string

	pushing    bool
	pushQueued bool
	pulling    bool
	pullQueued bool

	debounce          *time.Timer
	reconnectTimer    *time.Timer
	reconnectAttempts int
	intentional       bool // Disconnect() вызван явно

	stateMu sync.Mutex
	st      State
	onState func(State)
	onSync  func(SyncResult)
}

// New создает клиента синхронизации.
// Соединение не открывается до вызова Connect.
func New(eng Engine, states state.Storage, opts Options) *Client {
	o := opts.withDefaults()

	return &Client{
		engine:  eng,
		states:  states,
		logger:  o.Logger,
		opts:    o,
		pending: make(map[string]chan json.RawMessage),
		st:      StateDisconnected,
	}
}

// State возвращает текущее состояние клиента.
func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.st
}

// OnStateChange регистрирует наблюдателя переходов состояния.
func (c *Client) OnStateChange(fn func(State)) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.onState = fn
}

// OnSync регистрирует наблюдателя событий сходимости.
func (c *Client) OnSync(fn func(SyncResult)) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.onSync = fn
}

// UserID возвращает идентификатор пользователя после аутентификации.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// DeviceID возвращает идентификатор этого устройства.
func (c *Client) DeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

func (c *Client) setState(st State) {
	c.stateMu.Lock()
	changed := c.st != st
	c.st = st
	fn := c.onState
	c.stateMu.Unlock()

	if changed && fn != nil {
		fn(st)
	}
}

func (c *Client) emitSync(result SyncResult) {
	c.stateMu.Lock()
	fn := c.onSync
	c.stateMu.Unlock()

	if fn != nil {
		fn(result)
	}
}

// Connect открывает транспорт и выполняет auth handshake. Ответ
// auth_ok обязан прийти в пределах AuthTimeout. Отказ аутентификации
// возвращает ErrAuthFailed и не запускает переподключение — в отличие
// от сетевых сбоев.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.intentional = false

	if c.deviceID == "" {
		deviceID, err := c.states.DeviceID(ctx)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("failed to load device id: %w", err)
		}
		if deviceID == "" {
			deviceID = uuid.New().String()
			if err := c.states.SaveDeviceID(ctx, deviceID); err != nil {
				c.mu.Unlock()
				return fmt.Errorf("failed to save device id: %w", err)
			}
		}
		c.deviceID = deviceID
	}
	deviceID := c.deviceID
	c.mu.Unlock()

	c.setState(StateConnecting)

	conn, err := c.dial(ctx, deviceID)
	if err != nil {
		if errors.Is(err, ErrAuthFailed) {
			c.setState(StateError)
		} else {
			c.setState(StateDisconnected)
		}
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.reconnectAttempts = 0
	c.mu.Unlock()

	c.setState(StateConnected)
	c.logger.Info("Connected to sync server",
		"server", c.opts.ServerURL,
		"user_id", c.UserID(),
		"device_id", deviceID)

	go c.readLoop(conn)

	return nil
}

// dial открывает websocket и выполняет handshake.
func (c *Client) dial(ctx context.Context, deviceID string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.ServerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.opts.ServerURL, err)
	}

	req := api.AuthRequest{
		Header:   api.Header{Type: api.TypeAuth},
		Token:    c.opts.Token,
		DeviceID: deviceID,
		SiteID:   c.engine.SiteIDHex(),
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send auth: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.opts.AuthTimeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set auth deadline: %w", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read auth response: %w", err)
	}

	var header api.Header
	if err := json.Unmarshal(data, &header); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to parse auth response: %w", err)
	}

	switch header.Type {
	case api.TypeAuthOK:
		var ok api.AuthOK
		if err := json.Unmarshal(data, &ok); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to parse auth_ok: %w", err)
		}

		c.mu.Lock()
		c.userID = ok.UserID
		c.mu.Unlock()

	case api.TypeAuthError:
		var authErr api.AuthError
		_ = json.Unmarshal(data, &authErr)
		conn.Close()
		return nil, fmt.Errorf("%w: %s (%s)", ErrAuthFailed, authErr.Message, authErr.Code)

	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected auth response type %q", header.Type)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to clear read deadline: %w", err)
	}

	return conn, nil
}

// readLoop читает сообщения до разрыва соединения. Ответы на запросы
// доставляются по request_id, широковещательные changes применяются
// немедленно.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleConnLoss(conn)
			return
		}

		var header api.Header
		if err := json.Unmarshal(data, &header); err != nil {
			c.logger.Warn("Failed to parse server message", "error", err)
			continue
		}

		if header.RequestID != "" {
			c.deliver(header.RequestID, data)
			continue
		}

		if header.Type == api.TypeChanges {
			c.handleChanges(data)
			continue
		}

		c.logger.Warn("Unexpected server message", "type", header.Type)
	}
}

func (c *Client) deliver(requestID string, data []byte) {
	c.mu.Lock()
	ch, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()

	if ok {
		ch <- data
	}
}

// handleChanges применяет изменения с другого устройства.
func (c *Client) handleChanges(data []byte) {
	var msg api.ChangesMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("Failed to parse changes message", "error", err)
		return
	}

	changes, err := models.DeserializeChanges(msg.Changes)
	if err != nil {
		c.logger.Warn("Failed to decode broadcast changes", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
	defer cancel()

	result, err := c.engine.ApplyChanges(ctx, changes)
	if err != nil {
		c.logger.Error("Failed to apply broadcast changes", "error", err)
		return
	}

	c.logger.Info("Applied broadcast changes",
		"from_device", msg.FromDeviceID,
		"received", len(changes),
		"applied", result.Applied,
		"skipped", len(result.Skipped))

	c.emitSync(SyncResult{
		Pulled:  len(changes),
		Applied: result.Applied,
		Skipped: len(result.Skipped),
	})
}

// handleConnLoss обрабатывает разрыв транспорта: ожидающие запросы
// отменяются, и, если разрыв не был явным Disconnect, планируется
// переподключение.
func (c *Client) handleConnLoss(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		// Уже заменено новым соединением.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.failPending()
	intentional := c.intentional
	c.mu.Unlock()

	_ = conn.Close()

	if intentional {
		c.setState(StateDisconnected)
		return
	}

	c.logger.Warn("Connection lost")
	c.setState(StateError)
	c.scheduleReconnect()
}

// failPending отменяет все ожидающие запросы. Вызывается под c.mu.
func (c *Client) failPending() {
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// scheduleReconnect планирует попытку переподключения с задержкой,
// ограниченную MaxReconnectAttempts. Указатели синхронизации не
// сбрасываются: после переподключения синхронизация возобновляется
// с последних подтвержденных версий.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		return
	}
	if c.reconnectAttempts >= c.opts.MaxReconnectAttempts {
		c.mu.Unlock()
		c.logger.Error("Reconnect attempts exhausted", "attempts", c.reconnectAttempts)
		c.setState(StateError)
		return
	}
	c.reconnectAttempts++
	attempt := c.reconnectAttempts

	c.reconnectTimer = time.AfterFunc(c.opts.ReconnectDelay, func() {
		c.reconnect(attempt)
	})
	c.mu.Unlock()
}

func (c *Client) reconnect(attempt int) {
	c.logger.Info("Reconnecting", "attempt", attempt, "max", c.opts.MaxReconnectAttempts)

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.AuthTimeout+c.opts.RequestTimeout)
	defer cancel()

	err := c.Connect(ctx)
	if err == nil {
		// Возобновляем синхронизацию с последних подтвержденных версий.
		if err := c.Pull(ctx); err != nil {
			c.logger.Warn("Post-reconnect pull failed", "error", err)
		}
		if err := c.Push(ctx); err != nil {
			c.logger.Warn("Post-reconnect push failed", "error", err)
		}
		return
	}

	if errors.Is(err, ErrAuthFailed) {
		// Отказ аутентификации терминален: без повторных попыток.
		c.logger.Error("Reconnect rejected by server", "error", err)
		c.setState(StateError)
		return
	}

	c.logger.Warn("Reconnect attempt failed", "attempt", attempt, "error", err)

	// Connect сбрасывает счетчик попыток только при успехе, поэтому
	// восстанавливаем значение для следующей итерации.
	c.mu.Lock()
	c.reconnectAttempts = attempt
	c.mu.Unlock()

	c.setState(StateError)
	c.scheduleReconnect()
}

// NotifyLocalWrite сообщает клиенту о локальной записи. Всплеск записей
// коалесцируется: push выполняется один раз после паузы Debounce.
func (c *Client) NotifyLocalWrite() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.debounce != nil {
		c.debounce.Reset(c.opts.Debounce)
		return
	}

	c.debounce = time.AfterFunc(c.opts.Debounce, func() {
		c.mu.Lock()
		c.debounce = nil
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
		defer cancel()

		if err := c.Push(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
			c.logger.Warn("Auto-push failed", "error", err)
		}
	})
}

// Push отправляет накопленные локальные изменения на сервер.
// lastPushedVersion продвигается только после push_ok — никогда
// оптимистично. Повторный Push во время выполняющегося коалесцируется
// в один дополнительный запуск.
func (c *Client) Push(ctx context.Context) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.pushing {
		c.pushQueued = true
		c.mu.Unlock()
		return nil
	}
	c.pushing = true
	c.mu.Unlock()

	c.setState(StateSyncing)
	err := c.doPush(ctx)
	c.finishSync(&c.pushing, &c.pushQueued, func(ctx context.Context) error { return c.Push(ctx) })

	return err
}

// Pull запрашивает у сервера изменения, накопившиеся с последней
// полученной версии, и применяет их через движок.
func (c *Client) Pull(ctx context.Context) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.pulling {
		c.pullQueued = true
		c.mu.Unlock()
		return nil
	}
	c.pulling = true
	c.mu.Unlock()

	c.setState(StateSyncing)
	err := c.doPull(ctx)
	c.finishSync(&c.pulling, &c.pullQueued, func(ctx context.Context) error { return c.Pull(ctx) })

	return err
}

// finishSync снимает single-flight флаг, возвращает состояние connected
// и перезапускает операцию, если за время выполнения пришел новый триггер.
func (c *Client) finishSync(flag, queued *bool, again func(context.Context) error) {
	c.mu.Lock()
	*flag = false
	rerun := *queued
	*queued = false
	idle := !c.pushing && !c.pulling
	connected := c.conn != nil
	c.mu.Unlock()

	if idle && connected {
		c.setState(StateConnected)
	}

	if rerun && connected {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
			defer cancel()

			if err := again(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
				c.logger.Warn("Coalesced sync run failed", "error", err)
			}
		}()
	}
}

func (c *Client) doPush(ctx context.Context) error {
	lastPushed, err := c.states.LastPushedVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to load last pushed version: %w", err)
	}

	changes, err := c.engine.ChangesSince(ctx, lastPushed)
	if err != nil {
		return fmt.Errorf("failed to collect changes: %w", err)
	}
	if len(changes) == 0 {
		return nil
	}

	// Изменения упорядочены по db_version: последняя и есть новая версия.
	newVersion := changes[len(changes)-1].DBVersion

	req := api.PushRequest{
		Header: api.Header{
			Type:      api.TypePush,
			RequestID: uuid.New().String(),
		},
		Changes:     models.SerializeChanges(changes),
		FromVersion: formatVersion(lastPushed),
	}

	raw, err := c.request(ctx, req.RequestID, req)
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	var resp api.PushOK
	if err := parseResponse(raw, api.TypePushOK, &resp); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	if err := c.states.SaveLastPushedVersion(ctx, newVersion); err != nil {
		return fmt.Errorf("failed to save last pushed version: %w", err)
	}

	c.logger.Info("Push completed",
		"pushed", len(changes),
		"applied", resp.Applied,
		"server_version", resp.ServerVersion)

	c.emitSync(SyncResult{Pushed: len(changes)})

	return nil
}

func (c *Client) doPull(ctx context.Context) error {
	lastPulled, err := c.states.LastPulledVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to load last pulled version: %w", err)
	}

	req := api.PullRequest{
		Header: api.Header{
			Type:      api.TypePull,
			RequestID: uuid.New().String(),
		},
		SinceVersion: formatVersion(lastPulled),
	}

	raw, err := c.request(ctx, req.RequestID, req)
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	var resp api.PullOK
	if err := parseResponse(raw, api.TypePullOK, &resp); err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	changes, err := models.DeserializeChanges(resp.Changes)
	if err != nil {
		return fmt.Errorf("failed to decode pulled changes: %w", err)
	}

	result := &engine.ApplyResult{}
	if len(changes) > 0 {
		result, err = c.engine.ApplyChanges(ctx, changes)
		if err != nil {
			return fmt.Errorf("failed to apply pulled changes: %w", err)
		}
	}

	serverVersion, err := parseVersion(resp.ServerVersion)
	if err != nil {
		return fmt.Errorf("invalid server version: %w", err)
	}

	if serverVersion > lastPulled {
		if err := c.states.SaveLastPulledVersion(ctx, serverVersion); err != nil {
			return fmt.Errorf("failed to save last pulled version: %w", err)
		}
	}

	c.logger.Info("Pull completed",
		"pulled", len(changes),
		"applied", result.Applied,
		"skipped", len(result.Skipped),
		"server_version", serverVersion)

	c.emitSync(SyncResult{
		Pulled:  len(changes),
		Applied: result.Applied,
		Skipped: len(result.Skipped),
	})

	return nil
}

// request отправляет сообщение и ждет ответ с тем же request_id.
func (c *Client) request(ctx context.Context, requestID string, msg any) (json.RawMessage, error) {
	ch := make(chan json.RawMessage, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[requestID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case raw, ok := <-ch:
		if !ok {
			return nil, ErrConnectionLost
		}
		return raw, nil

	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		return nil, ctx.Err()

	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		return nil, fmt.Errorf("request timed out")
	}
}

func formatVersion(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseVersion(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// parseResponse разбирает ответ сервера, превращая error сообщения
// в ошибки Go.
func parseResponse(raw json.RawMessage, wantType string, out any) error {
	var header api.Header
	if err := json.Unmarshal(raw, &header); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if header.Type == api.TypeError {
		var errMsg api.ErrorMessage
		_ = json.Unmarshal(raw, &errMsg)
		return fmt.Errorf("server error %s: %s", errMsg.Code, errMsg.Message)
	}

	if header.Type != wantType {
		return fmt.Errorf("unexpected response type %q, want %q", header.Type, wantType)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", wantType, err)
	}

	return nil
}

// Disconnect явно закрывает соединение: отменяет отложенный push,
// запланированное переподключение и запросы в полете. Ничего из этого
// не повторяется автоматически.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentional = true

	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	conn := c.conn
	c.conn = nil
	c.failPending()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	}

	c.setState(StateDisconnected)
}
