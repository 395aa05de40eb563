// ABOUTME: Token counting for persisted transcript messages
// ABOUTME: Uses tiktoken encodings; counting is off when the encoding cannot load

package llm

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding matches the gpt-3.5/gpt-4 family.
const DefaultEncoding = "cl100k_base"

// TokenCounter counts tokens in message content.
// A nil *TokenCounter is valid and counts nothing.
type TokenCounter struct {
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
}

// NewTokenCounter loads the named encoding. If it cannot be loaded, for
// example offline, it logs a warning and returns nil so nothing is counted.
func NewTokenCounter(encoding string, logger *slog.Logger) *TokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if logger == nil {
		logger = slog.Default()
	}
	tkm, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warn("token encoding unavailable, token counting disabled",
			"encoding", encoding,
			"error", err)
		return nil
	}
	return &TokenCounter{encoder: tkm}
}

// Count returns the token count for text and whether counting is enabled.
func (tc *TokenCounter) Count(text string) (int, bool) {
	if tc == nil || tc.encoder == nil {
		return 0, false
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.encoder.Encode(text, nil, nil)), true
}
