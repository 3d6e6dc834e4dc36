package s3blob

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	opts    map[string]domain.PutOptions
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, opts: map[string]domain.PutOptions{}}
}

func (m *memWriter) Put(_ context.Context, key string, r io.Reader, opts domain.PutOptions) error {
	b, err := io.ReadAll(r)
	m.objects[key] = b
	m.opts[key] = opts
	return err
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
}

func TestSessionArchiver(t *testing.T) {
	w := newMemWriter()
	a := NewSessionArchiver(w, "")

	r := domain.SessionReport{
		ID:          "abc",
		Pair:        "BTC/USD",
		StartedAt:   time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
		Inventory:   decimal.RequireFromString("0.004"),
		TotalProfit: decimal.RequireFromString("2"),
	}

	key, err := a.Archive(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "sessions/BTCUSD/20250304T050607Z_abc.json", key)
	opts := w.opts[key]
	assert.Equal(t, "application/json", opts.ContentType)
	assert.Equal(t, "abc", opts.Metadata["session-id"])
	assert.Equal(t, "BTC/USD", opts.Metadata["pair"])
	assert.Equal(t, "0", opts.Metadata["cycles"])
	assert.Zero(t, opts.PartSize)

	var got domain.SessionReport
	require.NoError(t, json.Unmarshal(w.objects[key], &got))
	assert.Equal(t, "abc", got.ID)
	assert.True(t, got.Inventory.Equal(r.Inventory))
}

func TestSessionArchiverLargeReportUsesMultipart(t *testing.T) {
	w := newMemWriter()
	a := NewSessionArchiver(w, "")

	r := domain.SessionReport{ID: "big", Pair: "BTCUSD", Settings: map[string]string{}}
	// ~6 MiB of settings pushes the payload past one part.
	pad := strings.Repeat("x", 1024)
	for i := 0; i < 6*1024; i++ {
		r.Settings[strconv.Itoa(i)] = pad
	}

	key, err := a.Archive(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, MinPartSize, w.opts[key].PartSize)
	assert.Greater(t, int64(len(w.objects[key])), MinPartSize)
}

func TestSessionArchiverPrefix(t *testing.T) {
	a := NewSessionArchiver(newMemWriter(), "/bots/prod/")
	key := a.Key(domain.SessionReport{ID: "x", Pair: "ETHUSD", StartedAt: time.Unix(0, 0)})
	assert.Equal(t, "bots/prod/ETHUSD/19700101T000000Z_x.json", key)
}
