package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

// SessionArchiver uploads a JSON session report per bot run to
// "{prefix}/{pair}/{started}_{id}.json". Reports larger than one multipart
// part go through the multipart uploader.
type SessionArchiver struct {
	writer domain.BlobWriter
	prefix string
}

// NewSessionArchiver creates a SessionArchiver. An empty prefix defaults to
// "sessions".
func NewSessionArchiver(w domain.BlobWriter, prefix string) *SessionArchiver {
	if prefix == "" {
		prefix = "sessions"
	}
	return &SessionArchiver{writer: w, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key for r.
func (a *SessionArchiver) Key(r domain.SessionReport) string {
	pair := strings.ReplaceAll(r.Pair, "/", "")
	name := fmt.Sprintf("%s_%s.json", r.StartedAt.UTC().Format("20060102T150405Z"), r.ID)
	return path.Join(a.prefix, pair, name)
}

// Archive serialises r and uploads it, returning the object key.
func (a *SessionArchiver) Archive(ctx context.Context, r domain.SessionReport) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal session %s: %w", r.ID, err)
	}

	key := a.Key(r)
	opts := domain.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"session-id": r.ID,
			"pair":       r.Pair,
			"cycles":     strconv.Itoa(len(r.Cycles)),
		},
	}
	if int64(len(data)) > MinPartSize {
		opts.PartSize = MinPartSize
	}
	if err := a.writer.Put(ctx, key, bytes.NewReader(data), opts); err != nil {
		return "", err
	}
	return key, nil
}

// Compile-time interface check.
var _ domain.SessionArchiver = (*SessionArchiver)(nil)
