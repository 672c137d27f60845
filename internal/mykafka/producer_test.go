package mykafka

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Skotchmaster/cleanshop/internal/events"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducer_RequiresBrokers(t *testing.T) {
	t.Parallel()

	_, err := NewProducer(nil)
	assert.Error(t, err)
}

func TestEncode(t *testing.T) {
	t.Parallel()

	msg, err := encode(events.TopicUser, "7", events.UserEvent{Type: events.UserRegistered, UserID: 7, Username: "alice"})
	require.NoError(t, err)

	assert.Equal(t, events.TopicUser, msg.Topic)
	assert.Equal(t, []byte("7"), msg.Key)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "user_registered", body["type"])
	assert.Equal(t, "alice", body["username"])

	_, err = encode("t", "k", make(chan int))
	assert.Error(t, err)
}

// Runs only when KAFKA_BROKERS points at a reachable cluster.
func TestProducer_PublishEvent(t *testing.T) {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("KAFKA_BROKERS not set")
	}
	list := strings.Split(brokers, ",")

	p, err := NewProducer(list)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	conn, err := kafka.DialLeader(ctx, "tcp", list[0], events.TopicProduct, 0)
	require.NoError(t, err)
	end, err := conn.ReadLastOffset()
	require.NoError(t, err)
	_ = conn.Close()

	require.NoError(t, p.PublishEvent(ctx, events.TopicProduct, "p-1", events.ProductEvent{
		Type:      events.ProductCreated,
		ProductID: "p-1",
		SKU:       "SKU-1",
	}))

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   list,
		Topic:     events.TopicProduct,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
		MaxWait:   time.Second,
	})
	defer r.Close()
	require.NoError(t, r.SetOffset(end))

	m, err := r.ReadMessage(ctx)
	require.NoError(t, err)

	var event map[string]any
	require.NoError(t, json.Unmarshal(m.Value, &event))
	assert.Equal(t, "product_created", event["type"])
}
