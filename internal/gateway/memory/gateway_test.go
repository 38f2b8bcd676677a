package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banguard/internal/ban/models"
	"banguard/pkg/platform/sentinel"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	g := New()
	id := models.Identity{Name: "Steve", AccountID: "acc", Address: "10.0.0.1"}

	g.Connect(ctx, id)

	assert.True(t, g.IsConnected(ctx, "steve"))
	got, ok := g.CurrentIdentity(ctx, "STEVE")
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.Equal(t, []models.Identity{id}, g.Sessions())

	require.NoError(t, g.Disconnect(ctx, "steve", "bye"))

	assert.False(t, g.IsConnected(ctx, "Steve"))
	_, ok = g.CurrentIdentity(ctx, "Steve")
	assert.False(t, ok)
	drops := g.Disconnections()
	require.Len(t, drops, 1)
	assert.Equal(t, "Steve", drops[0].Name)
	assert.Equal(t, "bye", drops[0].Message)
}

func TestDisconnectUnknownSession(t *testing.T) {
	err := New().Disconnect(context.Background(), "ghost", "bye")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSessionsSorted(t *testing.T) {
	ctx := context.Background()
	g := New()
	g.Connect(ctx, models.Identity{Name: "zed"})
	g.Connect(ctx, models.Identity{Name: "amy"})

	sessions := g.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "amy", sessions[0].Name)
	assert.Equal(t, "zed", sessions[1].Name)
}
