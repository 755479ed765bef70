package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"whiteboard-server/session"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// SetupSocketIO wires the gateway protocol onto a socket.io server. Clients
// join a canvas room with join-canvas (bearer token in the connection's
// Authorization header), push full-snapshot drawing-update events and receive
// receive-drawing-update broadcasts from the rest of the room.
func SetupSocketIO(gw *Gateway) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		me := socket.Id()
		log := logrus.WithField("socket_id", me)
		log.Info("Client connected")

		socket.On("join-canvas", func(datas ...any) {
			canvasID := parseJoinRequest(datas)
			if canvasID == "" {
				_ = socket.Emit("error", map[string]any{
					"message": "Error while joining the canvas",
					"error":   "canvas id is required",
				})
				return
			}

			elements, err := gw.Join(context.Background(), canvasID, authorizationHeader(socket))
			if err != nil {
				var deny *denyError
				if errors.As(err, &deny) {
					_ = socket.Emit("unauthorized", map[string]any{"message": deny.message})
					return
				}
				log.WithFields(logrus.Fields{
					"canvas_id": canvasID,
					"error":     err,
				}).Error("Unexpected join failure")
				_ = socket.Emit("error", map[string]any{
					"message": "Error while joining the canvas",
					"error":   err.Error(),
				})
				return
			}

			enterRoom(socketRooms{socket}, gw.sessions, canvasID)
			log.WithField("canvas_id", canvasID).Info("Socket joined canvas room")

			if elements == nil {
				elements = json.RawMessage(`[]`)
			}
			_ = socket.Emit("load-canvas", elements)
		})

		socket.On("drawing-update", func(datas ...any) {
			canvasID, elements, err := parseDrawingUpdate(datas)
			if err != nil {
				log.WithError(err).Warn("Ignoring malformed drawing update")
				return
			}

			if !gw.Update(canvasID, elements, inRoom(socket, canvasID)) {
				return
			}

			log.WithFields(logrus.Fields{
				"canvas_id":   canvasID,
				"data_length": len(elements),
			}).Debug("Broadcasting drawing update")
			_ = socket.Broadcast().To(socketio.Room(canvasID)).Emit("receive-drawing-update", elements)
			gw.Persist(canvasID, elements)
		})

		socket.On("disconnecting", func(datas ...any) {
			for _, room := range canvasRooms(socket) {
				log.WithField("canvas_id", string(room)).Info("Socket leaving canvas room")
				gw.sessions.RemoveMember(string(room))
			}
		})

		socket.On("disconnect", func(datas ...any) {
			log.Info("Client disconnected")
			socket.RemoveAllListeners("")
			socket.Disconnect(true)
		})
	})

	return srv
}

// roomMembership is the slice of socket.io room state the join flow needs.
// It keeps the membership accounting testable without a live socket.
type roomMembership interface {
	Rooms() []string
	Join(room string)
	Leave(room string)
}

type socketRooms struct {
	socket *socketio.Socket
}

func (s socketRooms) Rooms() []string {
	rooms := canvasRooms(s.socket)
	names := make([]string, 0, len(rooms))
	for _, room := range rooms {
		names = append(names, string(room))
	}
	return names
}

func (s socketRooms) Join(room string)  { s.socket.Join(socketio.Room(room)) }
func (s socketRooms) Leave(room string) { s.socket.Leave(socketio.Room(room)) }

// enterRoom admits the connection to the canvas room, leaving any previous
// room (one canvas room per connection). Rejoining the current room is a
// no-op, so registry member counts stay balanced with the single decrement
// per room on disconnect.
func enterRoom(m roomMembership, sessions *session.Registry, canvasID string) {
	already := false
	for _, room := range m.Rooms() {
		if room == canvasID {
			already = true
			continue
		}
		m.Leave(room)
		sessions.RemoveMember(room)
	}
	if already {
		return
	}
	m.Join(canvasID)
	sessions.AddMember(canvasID)
}

// authorizationHeader reads the Authorization header captured during the
// socket.io handshake.
func authorizationHeader(socket *socketio.Socket) string {
	handshake := socket.Handshake()
	if handshake == nil {
		return ""
	}
	for key, values := range handshake.Headers {
		if strings.EqualFold(key, "Authorization") && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// canvasRooms returns the canvas rooms the socket is in, excluding the
// private room socket.io keys by the socket's own id.
func canvasRooms(socket *socketio.Socket) []socketio.Room {
	own := socketio.Room(socket.Id())
	rooms := make([]socketio.Room, 0, 1)
	for _, room := range socket.Rooms().Keys() {
		if room != own {
			rooms = append(rooms, room)
		}
	}
	return rooms
}

func inRoom(socket *socketio.Socket, canvasID string) bool {
	for _, room := range canvasRooms(socket) {
		if string(room) == canvasID {
			return true
		}
	}
	return false
}

func parseJoinRequest(datas []any) string {
	if len(datas) == 0 {
		return ""
	}
	payload, ok := datas[0].(map[string]any)
	if !ok {
		return ""
	}
	canvasID, _ := payload["canvasId"].(string)
	return canvasID
}

func parseDrawingUpdate(datas []any) (string, json.RawMessage, error) {
	if len(datas) == 0 {
		return "", nil, errors.New("missing payload")
	}
	payload, ok := datas[0].(map[string]any)
	if !ok {
		return "", nil, errors.New("payload must be an object")
	}

	canvasID, _ := payload["canvasId"].(string)
	if canvasID == "" {
		return "", nil, errors.New("canvas id is required")
	}

	elements, err := json.Marshal(payload["elements"])
	if err != nil {
		return "", nil, err
	}
	return canvasID, elements, nil
}
