package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "run-events", map[string]string{"run_id": "r1"})
	require.NoError(t, err)
	require.Equal(t, "mem-1", id1)

	id2, err := pub.Publish(context.Background(), "exports", "payload")
	require.NoError(t, err)
	require.Equal(t, "mem-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "run-events", msgs[0].Topic)
	require.Equal(t, "exports", msgs[1].Topic)

	msgs[0].Topic = "modified"
	require.NotEqual(t, "modified", pub.Messages()[0].Topic)
}

func TestPublisherFiltersByTopic(t *testing.T) {
	t.Parallel()

	pub := New()
	for i := 0; i < 3; i++ {
		_, err := pub.Publish(context.Background(), "run-events", i)
		require.NoError(t, err)
	}
	_, err := pub.Publish(context.Background(), "exports", "x")
	require.NoError(t, err)

	require.Len(t, pub.TopicMessages("run-events"), 3)
	require.Len(t, pub.TopicMessages("exports"), 1)
	require.Empty(t, pub.TopicMessages("missing"))
}

func TestPublisherDropsOldestPastCapacity(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.maxLen = 4
	for i := 0; i < 6; i++ {
		_, err := pub.Publish(context.Background(), "run-events", i)
		require.NoError(t, err)
	}

	msgs := pub.Messages()
	require.Len(t, msgs, 4)
	require.Equal(t, fmt.Sprintf("mem-%d", 3), msgs[0].ID)
	require.Equal(t, fmt.Sprintf("mem-%d", 6), msgs[3].ID)
}
