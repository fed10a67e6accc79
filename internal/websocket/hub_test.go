package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planner-dashboard/backend/internal/calendar"
	"github.com/planner-dashboard/backend/internal/storage/models"
)

func runningHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	return hub
}

func connect(t *testing.T, hub *Hub, want int) *Client {
	t.Helper()
	client := NewClient(hub)
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == want }, time.Second, 5*time.Millisecond)
	return client
}

func receive(t *testing.T, client *Client) Message {
	t.Helper()
	select {
	case data, ok := <-client.Send():
		require.True(t, ok, "send channel closed")
		var raw struct {
			ID      string          `json:"id"`
			Type    MessageType     `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &raw))
		return Message{ID: raw.ID, Type: raw.Type, Payload: raw.Payload}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub := runningHub(t)
	a := connect(t, hub, 1)
	b := connect(t, hub, 2)

	broadcaster := NewEventBroadcaster(hub)
	event := models.Event{ID: 3, Title: "Review", Date: models.NewDate(2025, time.June, 1)}
	require.NoError(t, broadcaster.EventSaved(context.Background(), event, true))

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		assert.Equal(t, TypeEventCreated, msg.Type)
		assert.NotEmpty(t, msg.ID)
		assert.Contains(t, string(msg.Payload.(json.RawMessage)), `"title":"Review"`)
	}

	require.NoError(t, broadcaster.EventRemoved(context.Background(), 3))
	msg := receive(t, a)
	assert.Equal(t, TypeEventDeleted, msg.Type)
	assert.JSONEq(t, `{"event_id":3}`, string(msg.Payload.(json.RawMessage)))
}

func TestHubUnregisterClosesClient(t *testing.T) {
	hub := runningHub(t)
	client := connect(t, hub, 1)

	hub.Unregister(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-client.Send()
	assert.False(t, ok)
	assert.False(t, hub.SendTo(client, []byte("late")))
}

func TestHubSendToBuffersBeforeRegistration(t *testing.T) {
	hub := runningHub(t)
	client := NewClient(hub)

	data, err := PermissionRequestMessage().JSON()
	require.NoError(t, err)
	require.True(t, hub.SendTo(client, data))

	hub.Register(client)
	msg := receive(t, client)
	assert.Equal(t, TypePermissionRequested, msg.Type)
}

func TestHubPermissionCounts(t *testing.T) {
	hub := runningHub(t)
	a := connect(t, hub, 1)
	connect(t, hub, 2)

	assert.Equal(t, 0, hub.GrantedCount())
	hub.SetPermission(a, calendar.PermissionGranted)
	assert.Equal(t, 1, hub.GrantedCount())
	hub.SetPermission(a, calendar.PermissionDenied)
	assert.Equal(t, 0, hub.GrantedCount())
}

func TestNotifierRequiresClients(t *testing.T) {
	hub := runningHub(t)
	n := NewNotifier(hub)
	note := calendar.Notification{Title: "Reminder: Standup", Body: "Event starting in 15 minutes"}

	assert.Equal(t, models.ChannelNotification, n.Channel())
	assert.True(t, errors.Is(n.Notify(context.Background(), note), calendar.ErrChannelUnavailable))

	client := connect(t, hub, 1)
	assert.True(t, errors.Is(n.Notify(context.Background(), note), calendar.ErrPermissionDenied))

	n.RequestPermission(context.Background())
	assert.Equal(t, TypePermissionRequested, receive(t, client).Type)

	hub.SetPermission(client, calendar.PermissionGranted)
	require.NoError(t, n.Notify(context.Background(), note))

	msg := receive(t, client)
	assert.Equal(t, TypeNotification, msg.Type)
	var payload NotificationPayload
	require.NoError(t, json.Unmarshal(msg.Payload.(json.RawMessage), &payload))
	assert.Equal(t, "Reminder: Standup", payload.Title)
	assert.Equal(t, "Event starting in 15 minutes", payload.Message)
}

func TestNotifierSkipsClientsWithoutPermission(t *testing.T) {
	hub := runningHub(t)
	granted := connect(t, hub, 1)
	denied := connect(t, hub, 2)
	undecided := connect(t, hub, 3)
	hub.SetPermission(granted, calendar.PermissionGranted)
	hub.SetPermission(denied, calendar.PermissionDenied)

	n := NewNotifier(hub)
	require.NoError(t, n.Notify(context.Background(), calendar.Notification{Title: "Reminder: Standup"}))

	assert.Equal(t, TypeNotification, receive(t, granted).Type)
	for _, c := range []*Client{denied, undecided} {
		select {
		case data := <-c.Send():
			t.Fatalf("client without permission got %s", data)
		case <-time.After(50 * time.Millisecond):
		}
	}

	granted2, delivered := hub.SendToGranted([]byte(`{}`))
	assert.Equal(t, 1, granted2)
	assert.Equal(t, 1, delivered)
}

func TestNotifierHonorsCancelledContext(t *testing.T) {
	hub := runningHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewNotifier(hub).Notify(ctx, calendar.Notification{}), context.Canceled)
}

func TestBroadcastImportMessages(t *testing.T) {
	hub := runningHub(t)
	client := connect(t, hub, 1)
	b := NewEventBroadcaster(hub)

	b.BroadcastImportCompleted("upload", calendar.ImportResult{EventsFound: 2, Created: 2})
	msg := receive(t, client)
	assert.Equal(t, TypeImportCompleted, msg.Type)
	assert.JSONEq(t, `{"source":"upload","events_found":2,"created":2,"updated":0}`, string(msg.Payload.(json.RawMessage)))

	b.BroadcastImportError("https://example.com/cal.ics", errors.New("status 404"))
	msg = receive(t, client)
	assert.Equal(t, TypeNotification, msg.Type)
	assert.Contains(t, string(msg.Payload.(json.RawMessage)), "status 404")
}

func TestBroadcastFeedSynced(t *testing.T) {
	hub := runningHub(t)
	client := connect(t, hub, 1)
	b := NewEventBroadcaster(hub)

	b.BroadcastFeedSynced(models.FeedSyncResult{FeedID: "f1", FeedName: "Team", Created: 2, Removed: 1})
	msg := receive(t, client)
	assert.Equal(t, TypeFeedSynced, msg.Type)
	assert.Contains(t, string(msg.Payload.(json.RawMessage)), `"removed":1`)

	b.BroadcastFeedSynced(models.FeedSyncResult{FeedName: "Team", Error: errors.New("status 500")})
	msg = receive(t, client)
	assert.Equal(t, TypeNotification, msg.Type)
	assert.Contains(t, string(msg.Payload.(json.RawMessage)), "Team: status 500")
}
