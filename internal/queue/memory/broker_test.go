package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivaleye/pricewatch/internal/queue"
)

func TestBrokerPublishAndPull(t *testing.T) {
	t.Parallel()

	broker := NewBroker(4)
	pub := broker.Publisher()

	id, err := pub.Publish(context.Background(), "jobs", queue.Message{
		Body:       []byte(`{"url":"https://example.com"}`),
		Attributes: map[string]string{queue.AttrRetryCount: "0"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, broker.Len("jobs"))

	msg, ok := broker.Pull("jobs")
	require.True(t, ok)
	assert.Equal(t, `{"url":"https://example.com"}`, string(msg.Body))
	assert.Equal(t, "0", msg.Attributes[queue.AttrRetryCount])

	_, ok = broker.Pull("jobs")
	assert.False(t, ok)
}

func TestBrokerPublishCopiesMessage(t *testing.T) {
	t.Parallel()

	broker := NewBroker(4)
	pub := broker.Publisher()

	body := []byte("original")
	attrs := map[string]string{"k": "v"}
	_, err := pub.Publish(context.Background(), "jobs", queue.Message{Body: body, Attributes: attrs})
	require.NoError(t, err)

	body[0] = 'X'
	attrs["k"] = "mutated"

	msg, ok := broker.Pull("jobs")
	require.True(t, ok)
	assert.Equal(t, "original", string(msg.Body))
	assert.Equal(t, "v", msg.Attributes["k"])
}

func TestConsumerReceivesAllMessagesAndDrains(t *testing.T) {
	t.Parallel()

	broker := NewBroker(16)
	pub := broker.Publisher()
	for i := 0; i < 5; i++ {
		_, err := pub.Publish(context.Background(), "jobs", queue.Message{Body: []byte("job")})
		require.NoError(t, err)
	}

	var handled int32
	consumer := broker.Consumer("jobs", 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- consumer.Receive(ctx, func(_ context.Context, d queue.Delivery) {
			atomic.AddInt32(&handled, 1)
			d.Ack()
		})
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&handled) == 5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, broker.Len("jobs"))
}

func TestPublishCanceledContext(t *testing.T) {
	t.Parallel()

	broker := NewBroker(1)
	pub := broker.Publisher()

	_, err := pub.Publish(context.Background(), "jobs", queue.Message{Body: []byte("fills the topic")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pub.Publish(ctx, "jobs", queue.Message{Body: []byte("blocked")})
	assert.Error(t, err)
}
