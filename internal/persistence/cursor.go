// Package persistence contains helpers shared by store implementations.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strings"

	"example.com/fitstreak/internal/domain"
)

const cursorPrefix = "entry|"

// EncodeCursor serialises the cursor to a string token.
func EncodeCursor(c *domain.EntryCursor) string {
	if c == nil || c.Date.IsZero() {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + c.Date.String()))
}

// DecodeCursor parses the encoded cursor token.
func DecodeCursor(token string) (*domain.EntryCursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	raw, ok := strings.CutPrefix(string(decoded), cursorPrefix)
	if !ok {
		return nil, fmt.Errorf("invalid cursor format")
	}
	date, err := domain.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	return &domain.EntryCursor{Date: date}, nil
}
