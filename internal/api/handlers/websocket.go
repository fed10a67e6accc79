package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/planner-dashboard/backend/internal/calendar"
	ws "github.com/planner-dashboard/backend/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard may be served from a separate dev server
		return true
	},
}

// WebSocketUpgrade returns a handler that upgrades HTTP connections to WebSocket.
// Each new client is asked for its notification permission.
func WebSocketUpgrade(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}

		client := ws.NewClient(hub)
		hub.Register(client)

		go writePump(conn, client)
		go readPump(conn, client, hub)

		sendMessage(hub, client, ws.PermissionRequestMessage())
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func writePump(conn *websocket.Conn, client *ws.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send():
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the hub.
func readPump(conn *websocket.Conn, client *ws.Client, hub *ws.Hub) {
	defer func() {
		hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(65536)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		handleClientMessage(message, client, hub)
	}
}

// handleClientMessage processes incoming client commands.
func handleClientMessage(message []byte, client *ws.Client, hub *ws.Hub) {
	var in ws.IncomingMessage
	if err := json.Unmarshal(message, &in); err != nil {
		sendMessage(hub, client, ws.NewMessage(ws.TypeError, ws.ErrorPayload{
			Code:    "bad_message",
			Message: "Message is not valid JSON",
		}))
		return
	}

	switch in.Type {
	case ws.TypePing:
		sendMessage(hub, client, ws.NewMessage(ws.TypePong, struct{}{}))

	case ws.TypePermission:
		var payload struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			sendUnsupported(hub, client, in.Type, "Invalid permission payload")
			return
		}
		state, err := calendar.ParsePermission(payload.State)
		if err != nil {
			sendUnsupported(hub, client, in.Type, err.Error())
			return
		}
		hub.SetPermission(client, state)
		log.Printf("WebSocket client notification permission: %s", state)
		sendMessage(hub, client, ws.NewMessage(ws.TypePermissionAck, ws.PermissionPayload{State: state}))

	default:
		sendUnsupported(hub, client, in.Type, "Unknown message type")
	}
}

func sendUnsupported(hub *ws.Hub, client *ws.Client, t ws.MessageType, msg string) {
	sendMessage(hub, client, ws.NewMessage(ws.TypeError, ws.ErrorPayload{
		Code:         "bad_message",
		Message:      msg,
		OriginalType: string(t),
	}))
}

func sendMessage(hub *ws.Hub, client *ws.Client, msg ws.Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}
	hub.SendTo(client, data)
}
