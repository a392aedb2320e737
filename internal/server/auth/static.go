package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
)

// Токен разработки, используемый при пустой таблице токенов.
// Сервер обязан логировать предупреждение при его включении.
const (
	DevFallbackToken  = "dev-token"
	DevFallbackUserID = "dev-user"
)

// StaticVerifier проверяет токены по статической таблице token → userID.
type StaticVerifier struct {
	tokens map[string]string
}

// NewStaticVerifier создает verifier по готовой таблице token → userID.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

// ParseTokenTable разбирает таблицу аутентификации из конфигурации:
// пары "userId:token", разделенные запятыми.
func ParseTokenTable(raw string) (map[string]string, error) {
	tokens := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		userID, token, ok := strings.Cut(pair, ":")
		if !ok || userID == "" || token == "" {
			return nil, fmt.Errorf("invalid auth token pair %q, expected userId:token", pair)
		}

		tokens[token] = userID
	}

	return tokens, nil
}

// Verify реализует Verifier. Сравнение токенов выполняется за
// постоянное время.
func (v *StaticVerifier) Verify(ctx context.Context, token string) (string, error) {
	for known, userID := range v.tokens {
		if len(known) == len(token) &&
			subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return userID, nil
		}
	}

	return "", ErrInvalidToken
}
