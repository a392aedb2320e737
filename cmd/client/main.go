package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cobrain-app/cobrain-sync/internal/client"
	"github.com/cobrain-app/cobrain-sync/internal/client/state/boltdb"
	"github.com/cobrain-app/cobrain-sync/internal/engine"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const usage = `Usage: cobrain-sync [flags] <command> [args]

Commands:
  set <table> <pk> <cid> <value>   записать значение колонки
  get <table> <pk> <cid>           прочитать значение колонки
  push                             отправить локальные изменения на сервер
  pull                             получить изменения с сервера
  sync                             pull, затем push
  watch                            следить за изменениями и синхронизировать
  status                           показать состояние синхронизации
  version                          показать версию

Flags:
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	serverURL := flag.String("server", "ws://localhost:8080/sync", "Sync server URL")
	dbPath := flag.String("db", "cobrain.db", "Path to local database")
	statePath := flag.String("state", "sync-state.db", "Path to sync state database")
	token := flag.String("token", "dev-token", "Device auth token")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return errors.New("command required")
	}

	if args[0] == "version" {
		fmt.Printf("CoBrain Sync Client\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Build Date: %s\n", BuildDate)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return nil
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, *dbPath, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}
	defer func() {
		eng.Finalize()
		_ = eng.Close()
	}()

	states, err := boltdb.New(ctx, *statePath)
	if err != nil {
		return fmt.Errorf("failed to open state storage: %w", err)
	}
	defer states.Close()

	app := &app{
		engine: eng,
		states: states,
		logger: logger,
		opts: client.Options{
			Logger:    logger,
			ServerURL: *serverURL,
			Token:     *token,
		},
	}

	return app.dispatch(ctx, args[0], args[1:])
}

type app struct {
	engine *engine.Engine
	states *boltdb.Storage
	logger *slog.Logger
	opts   client.Options
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "set":
		return a.cmdSet(ctx, args)
	case "get":
		return a.cmdGet(ctx, args)
	case "push":
		return a.cmdPush(ctx)
	case "pull":
		return a.cmdPull(ctx)
	case "sync":
		return a.cmdSync(ctx)
	case "watch":
		return a.cmdWatch(ctx)
	case "status":
		return a.cmdStatus(ctx)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) cmdSet(ctx context.Context, args []string) error {
	if len(args) != 4 {
		return errors.New("usage: set <table> <pk> <cid> <value>")
	}

	// Значение интерпретируется как JSON; если не парсится,
	// сохраняется как строка.
	var val any
	if err := json.Unmarshal([]byte(args[3]), &val); err != nil {
		val = args[3]
	}

	if err := a.engine.Set(ctx, args[0], []byte(args[1]), args[2], val); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}

	fmt.Println("ok")
	return nil
}

func (a *app) cmdGet(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: get <table> <pk> <cid>")
	}

	val, err := a.engine.Get(ctx, args[0], []byte(args[1]), args[2])
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return errors.New("not found")
		}
		return fmt.Errorf("failed to get value: %w", err)
	}

	out, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}

	fmt.Println(string(out))
	return nil
}

// connect открывает соединение и возвращает клиента. Вызывающий
// обязан вызвать Disconnect.
func (a *app) connect(ctx context.Context) (*client.Client, error) {
	c := client.New(a.engine, a.states, a.opts)
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return c, nil
}

func (a *app) cmdPush(ctx context.Context) error {
	c, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Disconnect()

	c.OnSync(printSyncResult)
	if err := c.Push(ctx); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	return nil
}

func (a *app) cmdPull(ctx context.Context) error {
	c, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Disconnect()

	c.OnSync(printSyncResult)
	if err := c.Pull(ctx); err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	return nil
}

func (a *app) cmdSync(ctx context.Context) error {
	c, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Disconnect()

	c.OnSync(printSyncResult)
	if err := c.Pull(ctx); err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	if err := c.Push(ctx); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	return nil
}

// cmdWatch держит соединение открытым: локальные записи отправляются
// после debounce, широковещательные изменения применяются по мере
// прихода. Завершается по SIGINT/SIGTERM.
func (a *app) cmdWatch(ctx context.Context) error {
	c, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Disconnect()

	c.OnSync(printSyncResult)
	c.OnStateChange(func(st client.State) {
		fmt.Printf("state: %s\n", st)
	})
	a.engine.OnChange(c.NotifyLocalWrite)

	// Начальная сходимость: сначала забираем чужое, потом отдаем свое
	if err := c.Pull(ctx); err != nil {
		return fmt.Errorf("initial pull failed: %w", err)
	}
	if err := c.Push(ctx); err != nil {
		return fmt.Errorf("initial push failed: %w", err)
	}

	fmt.Printf("watching as device %s, press Ctrl+C to stop\n", c.DeviceID())
	<-ctx.Done()
	return nil
}

func (a *app) cmdStatus(ctx context.Context) error {
	lastPushed, err := a.states.LastPushedVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	lastPulled, err := a.states.LastPulledVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	deviceID, err := a.states.DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if deviceID == "" {
		deviceID = "(not assigned)"
	}

	fmt.Printf("Site ID:          %s\n", a.engine.SiteIDHex())
	fmt.Printf("Device ID:        %s\n", deviceID)
	fmt.Printf("Local version:    %d\n", a.engine.CurrentVersion(ctx))
	fmt.Printf("Last pushed:      %d\n", lastPushed)
	fmt.Printf("Last pulled:      %d\n", lastPulled)
	return nil
}

func printSyncResult(res client.SyncResult) {
	fmt.Printf("pushed=%d pulled=%d applied=%d skipped=%d\n",
		res.Pushed, res.Pulled, res.Applied, res.Skipped)
}
