package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokenTable(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected map[string]string
		wantErr  bool
	}{
		{
			name:     "empty string yields empty table",
			raw:      "",
			expected: map[string]string{},
		},
		{
			name:     "single pair",
			raw:      "alice:secret1",
			expected: map[string]string{"secret1": "alice"},
		},
		{
			name:     "multiple pairs",
			raw:      "alice:secret1,bob:secret2",
			expected: map[string]string{"secret1": "alice", "secret2": "bob"},
		},
		{
			name:     "whitespace around pairs is trimmed",
			raw:      " alice:secret1 , bob:secret2 ",
			expected: map[string]string{"secret1": "alice", "secret2": "bob"},
		},
		{
			name:     "token may contain colons",
			raw:      "alice:sec:ret",
			expected: map[string]string{"sec:ret": "alice"},
		},
		{
			name:    "missing separator",
			raw:     "alice",
			wantErr: true,
		},
		{
			name:    "empty user id",
			raw:     ":secret",
			wantErr: true,
		},
		{
			name:    "empty token",
			raw:     "alice:",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := ParseTokenTable(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, tokens)
		})
	}
}

func TestStaticVerifier_Verify(t *testing.T) {
	ctx := context.Background()
	verifier := NewStaticVerifier(map[string]string{
		"secret1":            "alice",
		DevFallbackToken:     DevFallbackUserID,
		"another-long-token": "bob",
	})

	tests := []struct {
		name     string
		token    string
		expected string
		wantErr  bool
	}{
		{name: "known token", token: "secret1", expected: "alice"},
		{name: "dev fallback token", token: DevFallbackToken, expected: DevFallbackUserID},
		{name: "unknown token", token: "wrong", wantErr: true},
		{name: "empty token", token: "", wantErr: true},
		{name: "prefix of known token", token: "secret", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := verifier.Verify(ctx, tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, userID)
		})
	}
}

func TestStaticVerifier_EmptyTable(t *testing.T) {
	verifier := NewStaticVerifier(map[string]string{})

	_, err := verifier.Verify(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
