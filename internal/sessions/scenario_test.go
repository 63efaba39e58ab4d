package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/ng12-assist/internal/api"
	"github.com/strrl/ng12-assist/internal/api/apitest"
	"github.com/strrl/ng12-assist/pkg/models"
)

func TestConversationAgainstBackend(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	srv.SetTranscript("s1", []string{"User: hello", "Agent: hi there"}, time.Now())
	srv.SetReply(apitest.Reply{
		Answer:    "X",
		Citations: []models.Citation{{Source: "NG12", Page: "12", Excerpt: "..."}},
	})

	client := api.NewClient(srv.URL)
	router, err := NewRouter("/chat?session_id=s1")
	require.NoError(t, err)
	resolver := NewResolver("default-session-1", router)
	syncer := NewSynchronizer(client, nil)
	ex := NewExchange(client, 0, nil)
	conv := NewConversation()
	ctx := context.Background()

	require.True(t, syncer.Sync(ctx, conv, resolver.Resolve(router.Query())))
	messages := conv.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAgent}, []models.Role{messages[0].Role, messages[1].Role})

	require.NoError(t, ex.Send(ctx, conv, "what is red flag?"))
	messages = conv.Messages()
	require.Len(t, messages, 4)
	last := messages[3]
	assert.Equal(t, models.RoleAgent, last.Role)
	assert.Len(t, last.Citations, 1)

	// a new chat starts from the greeting
	id := resolver.StartNew()
	require.True(t, syncer.Sync(ctx, conv, resolver.Resolve(router.Query())))
	assert.Equal(t, id, conv.SessionID())
	assert.Equal(t, WithGreeting(nil), conv.Messages())

	// clearing s1 wipes the backend transcript and resets the view
	resolver.Select("s1")
	require.True(t, syncer.Sync(ctx, conv, resolver.Resolve(router.Query())))
	require.Len(t, conv.Messages(), 4)
	ex.Clear(ctx, conv)
	assert.Len(t, conv.Messages(), 1)
	assert.Empty(t, srv.Transcript("s1"))
}

func TestDirectoryAgainstBackend(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	srv.SetTranscript("s1", []string{"User: a"}, time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	srv.FailNext("sessions", 1)

	d := NewDirectory(api.NewClient(srv.URL), &recordingNavigator{})
	ctx := context.Background()

	assert.Error(t, d.Refresh(ctx))
	assert.Empty(t, d.Snapshot())

	require.NoError(t, d.Refresh(ctx))
	entries := d.Entries("s1")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Active)
	assert.Equal(t, 2, srv.Calls("sessions"))
}
