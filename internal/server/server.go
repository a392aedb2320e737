// Package server реализует relay сервер синхронизации: аутентификация
// устройств, сохранение истории изменений на пользователя и рассылка
// принятых изменений остальным подключенным устройствам пользователя.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cobrain-app/cobrain-sync/internal/models"
	"github.com/cobrain-app/cobrain-sync/internal/server/auth"
	"github.com/cobrain-app/cobrain-sync/internal/server/store"
	"github.com/cobrain-app/cobrain-sync/pkg/api"
)

// Таймауты websocket соединения.
const (
	// DefaultAuthTimeout время на присылку auth после установки соединения
	DefaultAuthTimeout = 10 * time.Second

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Stats агрегированная статистика сервера.
type Stats struct {
	ConnectedClients int    `json:"connected_clients"` // открытых соединений
	DistinctUsers    int    `json:"distinct_users"`    // пользователей с хотя бы одним соединением
	ChangesProcessed uint64 `json:"changes_processed"` // всего принятых изменений
	UptimeSeconds    int64  `json:"uptime_seconds"`    // время работы
}

// connectedClient аутентифицированное соединение одного устройства.
// Создается после успешного auth, уничтожается при разрыве соединения.
// Никогда не персистится.
type connectedClient struct {
	conn       *websocket.Conn
	lastSeenAt time.Time
	userID     string
	deviceID   string
	siteID     string
	writeMu    sync.Mutex // gorilla допускает только одного писателя
	seenMu     sync.Mutex
}

// writeJSON отправляет сообщение с взаимным исключением писателей:
// ответы и широковещательные сообщения идут из разных горутин.
func (c *connectedClient) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *connectedClient) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *connectedClient) touch() {
	c.seenMu.Lock()
	c.lastSeenAt = time.Now()
	c.seenMu.Unlock()
}

// Server принимает соединения устройств и обеспечивает доставку
// изменений между устройствами одного пользователя.
//
// Соединения обрабатываются независимо, но запись внутри одного
// пользователя (присвоение версий + сохранение + рассылка) сериализована
// per-user мьютексом: два одновременных push никогда не перемешиваются
// в нарушение порядка версий. Разные пользователи полностью независимы.
type Server struct {
	logger      *slog.Logger
	verifier    auth.Verifier
	store       store.ChangeStore
	upgrader    websocket.Upgrader
	authTimeout time.Duration
	startedAt   time.Time

	mu        sync.Mutex
	clients   map[*connectedClient]struct{}
	byUser    map[string]map[*connectedClient]struct{}
	userLocks map[string]*sync.Mutex
	closed    bool

	changesProcessed atomic.Uint64
}

// New создает сервер синхронизации.
// authTimeout <= 0 заменяется на DefaultAuthTimeout.
func New(verifier auth.Verifier, changeStore store.ChangeStore, authTimeout time.Duration, logger *slog.Logger) *Server {
	if authTimeout <= 0 {
		authTimeout = DefaultAuthTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		logger:      logger,
		verifier:    verifier,
		store:       changeStore,
		upgrader:    websocket.Upgrader{},
		authTimeout: authTimeout,
		startedAt:   time.Now(),
		clients:     make(map[*connectedClient]struct{}),
		byUser:      make(map[string]map[*connectedClient]struct{}),
		userLocks:   make(map[string]*sync.Mutex),
	}
}

// Handler возвращает HTTP handler сервера:
// /sync — websocket endpoint, /healthz — проверка живости,
// /api/v1/stats — агрегированная статистика.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sync", s.handleSync)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	return mux
}

// Stats возвращает срез агрегированной статистики.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		ConnectedClients: len(s.clients),
		DistinctUsers:    len(s.byUser),
		ChangesProcessed: s.changesProcessed.Load(),
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
	}
}

// Close закрывает все клиентские соединения. Новые соединения после
// Close отклоняются. Используется при graceful shutdown.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	clients := make([]*connectedClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait),
		)
		_ = c.conn.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(s.Stats()); err != nil {
		s.logger.Error("Failed to encode stats", "error", err)
	}
}

// handleSync обслуживает одно websocket соединение: аутентификация
// в пределах таймаута, затем цикл обработки push/pull до разрыва.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	client, err := s.authenticate(r.Context(), conn)
	if err != nil {
		s.logger.Info("Connection rejected", "error", err, "remote", r.RemoteAddr)
		return
	}

	s.register(client)
	defer s.unregister(client)

	s.logger.Info("Device connected",
		"user_id", client.userID,
		"device_id", client.deviceID,
		"remote", r.RemoteAddr)

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(client, done)

	s.readLoop(r.Context(), client)

	s.logger.Info("Device disconnected",
		"user_id", client.userID,
		"device_id", client.deviceID)
}

// authenticate читает первое сообщение соединения: оно обязано быть auth
// и прийти в пределах authTimeout, иначе соединение закрывается.
// Токен проверяет инжектированный verifier; отказ завершается auth_error.
func (s *Server) authenticate(ctx context.Context, conn *websocket.Conn) (*connectedClient, error) {
	if err := conn.SetReadDeadline(time.Now().Add(s.authTimeout)); err != nil {
		return nil, fmt.Errorf("failed to set auth deadline: %w", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read auth message: %w", err)
	}

	var req api.AuthRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Type != api.TypeAuth {
		s.writeAuthError(conn, req.RequestID, api.CodeBadMessage, "expected auth message")
		return nil, fmt.Errorf("first message is not auth")
	}

	userID, err := s.verifier.Verify(ctx, req.Token)
	if err != nil {
		s.writeAuthError(conn, req.RequestID, api.CodeInvalidToken, "token rejected")
		return nil, fmt.Errorf("token rejected: %w", err)
	}

	serverVersion, err := s.store.LatestVersion(ctx, userID)
	if err != nil {
		s.writeAuthError(conn, req.RequestID, api.CodeStorageFailure, "failed to read server version")
		return nil, fmt.Errorf("failed to read latest version: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	client := &connectedClient{
		conn:       conn,
		lastSeenAt: time.Now(),
		userID:     userID,
		deviceID:   req.DeviceID,
		siteID:     req.SiteID,
	}

	conn.SetPongHandler(func(string) error {
		client.touch()
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ok := api.AuthOK{
		Header:        api.Header{Type: api.TypeAuthOK, RequestID: req.RequestID},
		UserID:        userID,
		ServerVersion: strconv.FormatUint(serverVersion, 10),
	}
	if err := client.writeJSON(ok); err != nil {
		return nil, fmt.Errorf("failed to send auth_ok: %w", err)
	}

	return client, nil
}

func (s *Server) writeAuthError(conn *websocket.Conn, requestID, code, message string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(api.AuthError{
		Header:  api.Header{Type: api.TypeAuthError, RequestID: requestID},
		Code:    code,
		Message: message,
	})
}

func (s *Server) register(c *connectedClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[c] = struct{}{}

	if s.byUser[c.userID] == nil {
		s.byUser[c.userID] = make(map[*connectedClient]struct{})
	}
	s.byUser[c.userID][c] = struct{}{}
}

func (s *Server) unregister(c *connectedClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clients, c)

	peers := s.byUser[c.userID]
	delete(peers, c)
	if len(peers) == 0 {
		delete(s.byUser, c.userID)
	}
}

// userLock возвращает мьютекс, сериализующий запись одного пользователя.
func (s *Server) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// keepAlive периодически шлет ping, чтобы мертвые соединения
// отваливались по read deadline.
func (s *Server) keepAlive(c *connectedClient, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readLoop обрабатывает сообщения соединения до его разрыва.
func (s *Server) readLoop(ctx context.Context, c *connectedClient) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Connection read failed", "user_id", c.userID, "error", err)
			}
			return
		}

		c.touch()

		var header api.Header
		if err := json.Unmarshal(data, &header); err != nil {
			s.writeError(c, "", api.CodeBadMessage, "failed to parse message")
			continue
		}

		switch header.Type {
		case api.TypePush:
			s.handlePush(ctx, c, data)
		case api.TypePull:
			s.handlePull(ctx, c, data)
		default:
			s.writeError(c, header.RequestID, api.CodeBadMessage,
				fmt.Sprintf("unexpected message type %q", header.Type))
		}
	}
}

func (s *Server) writeError(c *connectedClient, requestID, code, message string) {
	err := c.writeJSON(api.ErrorMessage{
		Header:  api.Header{Type: api.TypeError, RequestID: requestID},
		Code:    code,
		Message: message,
	})
	if err != nil {
		s.logger.Warn("Failed to send error message", "user_id", c.userID, "error", err)
	}
}

// handlePush сохраняет изменения и рассылает их остальным устройствам
// пользователя. Изменения помечаются аутентифицированным userID, а не
// заявленным клиентом. При сбое хранилища push_ok не отправляется и
// ничего не рассылается: клиент повторит push позже.
func (s *Server) handlePush(ctx context.Context, c *connectedClient, data []byte) {
	var req api.PushRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.writeError(c, req.RequestID, api.CodeBadMessage, "failed to parse push")
		return
	}

	changes, err := models.DeserializeChanges(req.Changes)
	if err != nil {
		s.writeError(c, req.RequestID, api.CodeBadChange, err.Error())
		return
	}

	// Присвоение версий, сохранение и рассылка — одна критическая секция
	// на пользователя: порядок версий в логе и порядок доставки совпадают.
	lock := s.userLock(c.userID)
	lock.Lock()
	defer lock.Unlock()

	stored, err := s.store.Append(ctx, c.userID, c.deviceID, changes)
	if err != nil {
		s.logger.Error("Failed to append changes",
			"user_id", c.userID,
			"device_id", c.deviceID,
			"error", err)
		s.writeError(c, req.RequestID, api.CodeStorageFailure, "failed to persist changes")
		return
	}

	s.changesProcessed.Add(uint64(len(stored)))

	lastVersion := uint64(0)
	if len(stored) > 0 {
		lastVersion = stored[len(stored)-1].ServerVersion
	} else if v, err := s.store.LatestVersion(ctx, c.userID); err == nil {
		lastVersion = v
	}

	ok := api.PushOK{
		Header:        api.Header{Type: api.TypePushOK, RequestID: req.RequestID},
		Applied:       len(stored),
		ServerVersion: strconv.FormatUint(lastVersion, 10),
	}
	if err := c.writeJSON(ok); err != nil {
		s.logger.Warn("Failed to send push_ok", "user_id", c.userID, "error", err)
	}

	if len(stored) > 0 {
		s.broadcast(c, stored)
	}

	s.logger.Info("Push processed",
		"user_id", c.userID,
		"device_id", c.deviceID,
		"applied", len(stored),
		"server_version", lastVersion)
}

// broadcast рассылает сохраненные изменения всем остальным подключенным
// устройствам пользователя. Отправитель исключается по deviceID:
// устройство никогда не получает собственные изменения обратно.
func (s *Server) broadcast(sender *connectedClient, stored []*store.StoredChange) {
	changes := make([]*models.Change, 0, len(stored))
	for _, sc := range stored {
		changes = append(changes, sc.Change)
	}

	msg := api.ChangesMessage{
		Header:       api.Header{Type: api.TypeChanges},
		Changes:      models.SerializeChanges(changes),
		FromDeviceID: sender.deviceID,
	}

	s.mu.Lock()
	peers := make([]*connectedClient, 0, len(s.byUser[sender.userID]))
	for peer := range s.byUser[sender.userID] {
		if peer.deviceID == sender.deviceID {
			continue
		}
		peers = append(peers, peer)
	}
	s.mu.Unlock()

	for _, peer := range peers {
		if err := peer.writeJSON(msg); err != nil {
			s.logger.Warn("Failed to broadcast changes",
				"user_id", peer.userID,
				"device_id", peer.deviceID,
				"error", err)
		}
	}
}

// handlePull отвечает изменениями с serverVersion > since.
func (s *Server) handlePull(ctx context.Context, c *connectedClient, data []byte) {
	var req api.PullRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.writeError(c, req.RequestID, api.CodeBadMessage, "failed to parse pull")
		return
	}

	since := uint64(0)
	if req.SinceVersion != "" {
		parsed, err := strconv.ParseUint(req.SinceVersion, 10, 64)
		if err != nil {
			s.writeError(c, req.RequestID, api.CodeBadMessage, "invalid since_version")
			return
		}
		since = parsed
	}

	stored, err := s.store.GetSince(ctx, c.userID, since)
	if err != nil {
		// Отмена контекста значит, что соединение закрывается:
		// отвечать некому, пустой pull_ok был бы ложным ответом.
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("Failed to read changes", "user_id", c.userID, "error", err)
			s.writeError(c, req.RequestID, api.CodeStorageFailure, "failed to read changes")
		}
		return
	}

	changes := make([]*models.Change, 0, len(stored))
	serverVersion := since
	for _, sc := range stored {
		changes = append(changes, sc.Change)
		if sc.ServerVersion > serverVersion {
			serverVersion = sc.ServerVersion
		}
	}

	resp := api.PullOK{
		Header:        api.Header{Type: api.TypePullOK, RequestID: req.RequestID},
		Changes:       models.SerializeChanges(changes),
		ServerVersion: strconv.FormatUint(serverVersion, 10),
	}
	if err := c.writeJSON(resp); err != nil {
		s.logger.Warn("Failed to send pull_ok", "user_id", c.userID, "error", err)
	}

	s.logger.Info("Pull processed",
		"user_id", c.userID,
		"device_id", c.deviceID,
		"since", since,
		"returned", len(changes))
}
