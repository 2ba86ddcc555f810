package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPublishJSONToStream_LatestFromStream(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	type event struct {
		Table string `json:"table"`
		Rows  int    `json:"rows"`
	}

	_, err := PublishJSONToStream(ctx, client, "health:test", event{Table: "a", Rows: 1})
	require.NoError(t, err)
	id, err := PublishJSONToStream(ctx, client, "health:test", event{Table: "b", Rows: 2})
	require.NoError(t, err)

	msg, err := LatestFromStream(ctx, client, "health:test")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, id, msg.ID)

	var got event
	require.NoError(t, DecodeJSONMessage(msg, &got))
	assert.Equal(t, event{Table: "b", Rows: 2}, got)
}

func TestLatestFromStream_Empty(t *testing.T) {
	msg, err := LatestFromStream(context.Background(), newTestClient(t), "health:none")
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestPublishToStream_StringifiesValues(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := PublishToStream(ctx, client, "health:values", map[string]interface{}{
		"count": 3,
		"ok":    true,
		"ratio": 0.5,
	})
	require.NoError(t, err)

	msg, err := LatestFromStream(ctx, client, "health:values")
	require.NoError(t, err)
	assert.Equal(t, "3", msg.Values["count"])
	assert.Equal(t, "true", msg.Values["ok"])
	assert.Equal(t, "0.5", msg.Values["ratio"])
}
