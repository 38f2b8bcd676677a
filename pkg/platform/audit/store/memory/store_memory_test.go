package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "banguard/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("subject lookup ignores case", func(t *testing.T) {
		s := NewInMemoryStore()
		require.NoError(t, s.Append(ctx, audit.Event{Subject: "Steve", Action: string(audit.EventBanCreated)}))
		require.NoError(t, s.Append(ctx, audit.Event{Subject: "Alex", Action: string(audit.EventBanCreated)}))
		require.NoError(t, s.Append(ctx, audit.Event{Subject: "steve", Action: string(audit.EventBanLifted)}))

		events, err := s.ListBySubject(ctx, "STEVE")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, string(audit.EventBanCreated), events[0].Action)
		assert.Equal(t, string(audit.EventBanLifted), events[1].Action)
	})

	t.Run("oldest events are evicted at capacity", func(t *testing.T) {
		s := NewInMemoryStore(WithCapacity(2))
		for _, name := range []string{"a", "b", "c"} {
			require.NoError(t, s.Append(ctx, audit.Event{Subject: name}))
		}

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "b", all[0].Subject)
		assert.Equal(t, "c", all[1].Subject)
	})
}
