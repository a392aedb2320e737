package client

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cobrain-app/cobrain-sync/internal/client/state/boltdb"
	"github.com/cobrain-app/cobrain-sync/internal/engine"
	"github.com/cobrain-app/cobrain-sync/internal/server"
	"github.com/cobrain-app/cobrain-sync/internal/server/auth"
	"github.com/cobrain-app/cobrain-sync/internal/server/store"
)

const testWait = 5 * time.Second

// newTestServer поднимает сервер синхронизации с in-memory журналом.
func newTestServer(t *testing.T) string {
	t.Helper()

	verifier := auth.NewStaticVerifier(map[string]string{"token-alice": "alice"})
	srv := server.New(verifier, store.NewMemoryStore(), time.Second, nil)

	httpServer := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		httpServer.Close()
	})

	return "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/sync"
}

// newTestClient создает движок, хранилище состояния и клиента в tmpdir.
func newTestClient(t *testing.T, serverURL, name string) (*Client, *engine.Engine) {
	t.Helper()

	dir := t.TempDir()
	ctx := context.Background()

	eng, err := engine.New(ctx, filepath.Join(dir, name+".db"), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		eng.Finalize()
		eng.Close()
	})

	states, err := boltdb.New(ctx, filepath.Join(dir, name+"-state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { states.Close() })

	c := New(eng, states, Options{
		ServerURL:      serverURL,
		Token:          "token-alice",
		Debounce:       50 * time.Millisecond,
		AuthTimeout:    2 * time.Second,
		RequestTimeout: 2 * time.Second,
		ReconnectDelay: 50 * time.Millisecond,
	})
	t.Cleanup(c.Disconnect)

	return c, eng
}

func waitSync(t *testing.T, ch <-chan SyncResult) SyncResult {
	t.Helper()

	select {
	case result := <-ch:
		return result
	case <-time.After(testWait):
		t.Fatal("timed out waiting for sync event")
		return SyncResult{}
	}
}

func TestClient_ConnectDisconnect(t *testing.T) {
	serverURL := newTestServer(t)
	c, _ := newTestClient(t, serverURL, "a")

	var transitions []State
	c.OnStateChange(func(st State) { transitions = append(transitions, st) })

	assert.Equal(t, StateDisconnected, c.State())

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, "alice", c.UserID())
	assert.NotEmpty(t, c.DeviceID())

	// Повторный Connect на открытом соединении - no-op
	require.NoError(t, c.Connect(context.Background()))

	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnected}, transitions)
}

func TestClient_Connect_AuthFailed(t *testing.T) {
	serverURL := newTestServer(t)
	c, _ := newTestClient(t, serverURL, "a")
	c.opts.Token = "wrong-token"

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, StateError, c.State())

	// Отказ аутентификации не запускает переподключение
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StateError, c.State())
}

func TestClient_DeviceID_StableAcrossConnects(t *testing.T) {
	serverURL := newTestServer(t)
	c, _ := newTestClient(t, serverURL, "a")

	require.NoError(t, c.Connect(context.Background()))
	first := c.DeviceID()
	require.NotEmpty(t, first)
	c.Disconnect()

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, first, c.DeviceID(), "Device id is persisted, not regenerated")
}

func TestClient_PushPull(t *testing.T) {
	ctx := context.Background()
	serverURL := newTestServer(t)

	clientA, engA := newTestClient(t, serverURL, "a")
	clientB, engB := newTestClient(t, serverURL, "b")

	require.NoError(t, engA.Set(ctx, "notes", []byte("n1"), "title", "from A"))

	require.NoError(t, clientA.Connect(ctx))
	require.NoError(t, clientA.Push(ctx))
	clientA.Disconnect()

	// Второе устройство забирает изменения и применяет их локально
	syncCh := make(chan SyncResult, 1)
	clientB.OnSync(func(r SyncResult) { syncCh <- r })

	require.NoError(t, clientB.Connect(ctx))
	require.NoError(t, clientB.Pull(ctx))

	result := waitSync(t, syncCh)
	assert.Equal(t, 1, result.Pulled)
	assert.Equal(t, 1, result.Applied)

	val, err := engB.Get(ctx, "notes", []byte("n1"), "title")
	require.NoError(t, err)
	assert.Equal(t, "from A", val)
}

func TestClient_Push_AdvancesPointerOnlyAfterAck(t *testing.T) {
	ctx := context.Background()
	serverURL := newTestServer(t)

	c, eng := newTestClient(t, serverURL, "a")
	require.NoError(t, eng.Set(ctx, "notes", []byte("n1"), "title", "x"))

	// До подключения push невозможен и указатель не двигается
	assert.ErrorIs(t, c.Push(ctx), ErrNotConnected)

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Push(ctx))

	// Повторный push пуст: всё уже подтверждено сервером
	syncCh := make(chan SyncResult, 1)
	c.OnSync(func(r SyncResult) { syncCh <- r })
	require.NoError(t, c.Push(ctx))

	select {
	case r := <-syncCh:
		t.Fatalf("unexpected sync event for empty push: %+v", r)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestClient_Broadcast(t *testing.T) {
	ctx := context.Background()
	serverURL := newTestServer(t)

	clientA, engA := newTestClient(t, serverURL, "a")
	clientB, engB := newTestClient(t, serverURL, "b")

	require.NoError(t, clientA.Connect(ctx))
	require.NoError(t, clientB.Connect(ctx))

	syncCh := make(chan SyncResult, 1)
	clientB.OnSync(func(r SyncResult) { syncCh <- r })

	// Push первого устройства доезжает до второго без pull
	require.NoError(t, engA.Set(ctx, "notes", []byte("n1"), "title", "live update"))
	require.NoError(t, clientA.Push(ctx))

	result := waitSync(t, syncCh)
	assert.Equal(t, 1, result.Pulled)
	assert.Equal(t, 1, result.Applied)

	val, err := engB.Get(ctx, "notes", []byte("n1"), "title")
	require.NoError(t, err)
	assert.Equal(t, "live update", val)
}

func TestClient_NotifyLocalWrite_DebouncedAutoPush(t *testing.T) {
	ctx := context.Background()
	serverURL := newTestServer(t)

	clientA, engA := newTestClient(t, serverURL, "a")
	clientB, engB := newTestClient(t, serverURL, "b")

	require.NoError(t, clientA.Connect(ctx))
	require.NoError(t, clientB.Connect(ctx))

	syncCh := make(chan SyncResult, 1)
	clientB.OnSync(func(r SyncResult) { syncCh <- r })

	engA.OnChange(clientA.NotifyLocalWrite)

	// Всплеск записей коалесцируется в один push после паузы
	require.NoError(t, engA.Set(ctx, "notes", []byte("n1"), "title", "v1"))
	require.NoError(t, engA.Set(ctx, "notes", []byte("n1"), "title", "v2"))
	require.NoError(t, engA.Set(ctx, "notes", []byte("n1"), "title", "v3"))

	waitSync(t, syncCh)

	val, err := engB.Get(ctx, "notes", []byte("n1"), "title")
	require.NoError(t, err)
	assert.Equal(t, "v3", val)
}

func TestClient_Convergence_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	serverURL := newTestServer(t)

	clientA, engA := newTestClient(t, serverURL, "a")
	clientB, engB := newTestClient(t, serverURL, "b")

	// Конкурентные записи в одну колонку до какой-либо синхронизации
	require.NoError(t, engA.Set(ctx, "notes", []byte("n1"), "title", "from A"))
	require.NoError(t, engB.Set(ctx, "notes", []byte("n1"), "title", "from B"))

	require.NoError(t, clientA.Connect(ctx))
	require.NoError(t, clientB.Connect(ctx))

	syncA := make(chan SyncResult, 4)
	syncB := make(chan SyncResult, 4)
	clientA.OnSync(func(r SyncResult) { syncA <- r })
	clientB.OnSync(func(r SyncResult) { syncB <- r })

	require.NoError(t, clientA.Push(ctx))
	// B получает изменения A широковещательно
	waitSync(t, syncB)
	require.NoError(t, clientB.Push(ctx))
	// A получает изменения B широковещательно
	waitSync(t, syncA)

	valA, err := engA.Get(ctx, "notes", []byte("n1"), "title")
	require.NoError(t, err)
	valB, err := engB.Get(ctx, "notes", []byte("n1"), "title")
	require.NoError(t, err)

	assert.Equal(t, valA, valB, "Devices must converge to the same value")
}

func TestClient_Pull_ResumesFromSavedVersion(t *testing.T) {
	ctx := context.Background()
	serverURL := newTestServer(t)

	clientA, engA := newTestClient(t, serverURL, "a")
	clientB, engB := newTestClient(t, serverURL, "b")

	require.NoError(t, engA.Set(ctx, "notes", []byte("n1"), "title", "first"))
	require.NoError(t, clientA.Connect(ctx))
	require.NoError(t, clientA.Push(ctx))

	syncCh := make(chan SyncResult, 2)
	clientB.OnSync(func(r SyncResult) { syncCh <- r })

	require.NoError(t, clientB.Connect(ctx))
	require.NoError(t, clientB.Pull(ctx))
	first := waitSync(t, syncCh)
	assert.Equal(t, 1, first.Pulled)

	// После переподключения pull продолжается с сохраненной версии
	clientB.Disconnect()

	require.NoError(t, engA.Set(ctx, "notes", []byte("n2"), "title", "second"))
	require.NoError(t, clientA.Push(ctx))

	require.NoError(t, clientB.Connect(ctx))
	require.NoError(t, clientB.Pull(ctx))
	second := waitSync(t, syncCh)
	assert.Equal(t, 1, second.Pulled, "Already pulled changes are not fetched again")

	val, err := engB.Get(ctx, "notes", []byte("n2"), "title")
	require.NoError(t, err)
	assert.Equal(t, "second", val)
}

func TestClient_AutoReconnect_ResumesSync(t *testing.T) {
	ctx := context.Background()

	verifier := auth.NewStaticVerifier(map[string]string{"token-alice": "alice"})
	changeStore := store.NewMemoryStore()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()

	srv1 := server.New(verifier, changeStore, time.Second, nil)
	httpSrv1 := &http.Server{Handler: srv1.Handler()}
	go httpSrv1.Serve(listener) //nolint:errcheck

	c, eng := newTestClient(t, "ws://"+addr+"/sync", "a")

	stateCh := make(chan State, 16)
	c.OnStateChange(func(st State) { stateCh <- st })

	require.NoError(t, c.Connect(ctx))

	// Локальная запись, которую клиент еще не отправлял
	require.NoError(t, eng.Set(ctx, "notes", []byte("n1"), "title", "offline edit"))

	// Сервер падает и возвращается на том же адресе с тем же журналом
	srv1.Close()
	require.NoError(t, httpSrv1.Close())

	listener2, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	srv2 := server.New(verifier, changeStore, time.Second, nil)
	httpSrv2 := &http.Server{Handler: srv2.Handler()}
	go httpSrv2.Serve(listener2) //nolint:errcheck
	t.Cleanup(func() {
		srv2.Close()
		httpSrv2.Close()
	})

	// Клиент проходит error -> connecting -> connected без вмешательства
	sawError := false
	deadline := time.After(testWait)
	for connected := false; !connected; {
		select {
		case st := <-stateCh:
			switch st {
			case StateError:
				sawError = true
			case StateConnected:
				connected = sawError
			}
		case <-deadline:
			t.Fatal("client never reconnected on its own")
		}
	}

	// Переподключение возобновляет синхронизацию: отложенная запись
	// доезжает до сервера без явного Push
	require.Eventually(t, func() bool {
		stored, err := changeStore.GetSince(ctx, "alice", 0)
		return err == nil && len(stored) == 1
	}, testWait, 20*time.Millisecond, "Pending local write is pushed after reconnect")
}

func TestClient_ConnectionLoss_EntersErrorState(t *testing.T) {
	ctx := context.Background()

	verifier := auth.NewStaticVerifier(map[string]string{"token-alice": "alice"})
	srv := server.New(verifier, store.NewMemoryStore(), time.Second, nil)
	httpServer := httptest.NewServer(srv.Handler())
	serverURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/sync"
	t.Cleanup(httpServer.Close)

	c, _ := newTestClient(t, serverURL, "a")
	require.NoError(t, c.Connect(ctx))

	stateCh := make(chan State, 8)
	c.OnStateChange(func(st State) { stateCh <- st })

	// Обрыв всех соединений сервером имитирует сетевой сбой:
	// клиент уходит в error и планирует переподключение
	srv.Close()

	deadline := time.After(testWait)
	for {
		select {
		case st := <-stateCh:
			if st == StateError {
				return
			}
		case <-deadline:
			t.Fatal("client never reported connection loss")
		}
	}
}
