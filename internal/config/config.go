// Package config загружает конфигурацию сервера синхронизации из
// переменных окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Поддерживаемые бэкенды хранилища изменений.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config описывает конфигурацию сервера синхронизации.
type Config struct {
	// ListenAddr - адрес для HTTP сервера (host:port).
	ListenAddr string
	// AuthTokens - таблица статических токенов вида "user1:token1,user2:token2".
	// Пустая строка означает dev-режим с токеном по умолчанию.
	AuthTokens string
	// JWTSecret - секрет для проверки JWT токенов. Если задан,
	// используется вместо статической таблицы.
	JWTSecret string
	// StoreBackend - бэкенд журнала изменений: memory или sqlite.
	StoreBackend string
	// StorePath - путь к файлу базы данных. Обязателен для sqlite бэкенда.
	StorePath string
	// AuthTimeout - сколько ждать auth сообщение после подключения.
	AuthTimeout time.Duration
}

// Load читает конфигурацию из переменных окружения.
func Load() (*Config, error) {
	timeoutStr := getEnv("SYNC_AUTH_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_AUTH_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return nil, errors.New("SYNC_AUTH_TIMEOUT must be positive")
	}

	cfg := &Config{
		ListenAddr:   getEnv("SYNC_LISTEN_ADDR", ":8080"),
		AuthTokens:   os.Getenv("SYNC_AUTH_TOKENS"),
		JWTSecret:    os.Getenv("SYNC_JWT_SECRET"),
		StoreBackend: getEnv("SYNC_STORE_BACKEND", StoreMemory),
		StorePath:    os.Getenv("SYNC_STORE_PATH"),
		AuthTimeout:  timeout,
	}

	switch cfg.StoreBackend {
	case StoreMemory, StoreSQLite:
	default:
		return nil, fmt.Errorf("unknown SYNC_STORE_BACKEND %q (want %s or %s)",
			cfg.StoreBackend, StoreMemory, StoreSQLite)
	}

	if cfg.StoreBackend == StoreSQLite && cfg.StorePath == "" {
		return nil, errors.New("SYNC_STORE_PATH is required for sqlite backend")
	}

	return cfg, nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
