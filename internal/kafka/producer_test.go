package kafka

import (
	"context"
	"errors"
	"io"
	"testing"

	"ms-auction/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProducer(t *testing.T) {
	p := NewMockProducer(logger.NewTestLogger(io.Discard))

	require.NoError(t, p.Publish(context.Background(), "item-1", []byte(`{"type":"OUTBID"}`)))
	require.NoError(t, p.Publish(context.Background(), "item-2", []byte(`{"type":"WINNER"}`)))

	got := p.Published()
	require.Len(t, got, 2)
	assert.Equal(t, "item-1", string(got[0].Key))
	assert.JSONEq(t, `{"type":"WINNER"}`, string(got[1].Value))

	p.SetErr(errors.New("broker down"))
	assert.Error(t, p.Publish(context.Background(), "item-3", nil))
	assert.Len(t, p.Published(), 2)
}

func TestEnsureTopicsExist_NoBrokers(t *testing.T) {
	err := EnsureTopicsExist(nil, []string{"auction.notifications"}, logger.NewTestLogger(io.Discard))
	assert.Error(t, err)
}
