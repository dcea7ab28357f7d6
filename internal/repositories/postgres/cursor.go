package postgres

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gigmarket/api/internal/repositories"
)

// keysetCursor is the last (created_at, id) pair of a page.
type keysetCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

func encodeCursor(createdAt time.Time, id string) (string, error) {
	data, err := json.Marshal(keysetCursor{CreatedAt: createdAt.UTC(), ID: id})
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// decodeCursor returns nil values for an empty token so queries can pass them straight to SQL.
func decodeCursor(token string) (*time.Time, *string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", repositories.ErrInvalidPageToken, err)
	}
	var cursor keysetCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", repositories.ErrInvalidPageToken, err)
	}
	return &cursor.CreatedAt, &cursor.ID, nil
}
