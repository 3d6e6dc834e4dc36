package redis

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

func TestPriceRoundTrip(t *testing.T) {
	ts := time.Date(2025, 2, 3, 4, 5, 6, 7, time.UTC)
	fields := encodePrice(decimal.RequireFromString("50000.12"), ts)

	vals := map[string]string{}
	for k, v := range fields {
		vals[k] = v.(string)
	}
	price, got, err := decodePrice(vals)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("50000.12")))
	assert.True(t, got.Equal(ts))
}

func TestDecodePriceMissing(t *testing.T) {
	_, _, err := decodePrice(map[string]string{})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = decodePrice(map[string]string{"price": "abc", "ts": "1"})
	require.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "price:BTCUSD", priceKey("BTCUSD"))
	assert.Equal(t, "lock:cryptobear:BTCUSD", lockKey(InstanceKey("BTCUSD")))
	assert.True(t, hasPattern("ch:*"))
	assert.False(t, hasPattern("ch:grid"))
}

func TestToStreamMessages(t *testing.T) {
	msgs := []redis.XMessage{
		{ID: "1-0", Values: map[string]any{"payload": "a"}},
		{ID: "2-0", Values: map[string]any{"other": "x"}},
		{ID: "3-0", Values: map[string]any{"payload": []byte("c")}},
		{ID: "4-0", Values: map[string]any{"payload": 5}},
	}
	out := toStreamMessages(msgs)
	require.Len(t, out, 2)
	assert.Equal(t, "1-0", out[0].ID)
	assert.Equal(t, []byte("c"), out[1].Payload)
}
