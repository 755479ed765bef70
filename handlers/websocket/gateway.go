package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"whiteboard-server/auth"
	"whiteboard-server/core"
	"whiteboard-server/session"

	"github.com/sirupsen/logrus"
)

const bearerPrefix = "Bearer "

// denyError is a join failure the client is told about on the unauthorized
// channel. Missing token, invalid token, missing canvas and forbidden access
// all share that channel; the message is the only distinction.
type denyError struct {
	message string
	cause   error
}

func (e *denyError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *denyError) Unwrap() error { return e.cause }

// Gateway implements the per-connection protocol: join authorization,
// snapshot handoff, update fan-in and lazy persistence. Room membership
// itself lives in the socket.io layer; the gateway mirrors member counts
// into the session registry.
type Gateway struct {
	store     core.CanvasStore
	sessions  *session.Registry
	persister *session.Persister
}

func NewGateway(store core.CanvasStore, sessions *session.Registry, persister *session.Persister) *Gateway {
	return &Gateway{
		store:     store,
		sessions:  sessions,
		persister: persister,
	}
}

// Join authorizes a connection for a canvas and returns the elements a newly
// joined client should see: the registry snapshot when one exists, else the
// persisted elements. A *denyError means the client gets an unauthorized
// notification; any other error is an unexpected join failure.
func (g *Gateway) Join(ctx context.Context, canvasID, authHeader string) (json.RawMessage, error) {
	log := logrus.WithField("canvas_id", canvasID)

	if !strings.HasPrefix(authHeader, bearerPrefix) {
		log.Warn("Join rejected: no bearer token")
		return nil, &denyError{message: "Access Denied: No Token"}
	}

	claims, err := auth.ParseToken(strings.TrimPrefix(authHeader, bearerPrefix))
	if err != nil {
		log.WithError(err).Warn("Join rejected: token verification failed")
		return nil, &denyError{message: "Access Denied: Invalid Token", cause: err}
	}

	canvas, err := g.store.FindID(ctx, canvasID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			log.Warn("Join rejected: canvas does not exist")
			return nil, &denyError{message: "Canvas does not exist.", cause: err}
		}
		return nil, err
	}

	if !canvas.CanAccess(claims.UserID) {
		log.WithField("user_id", claims.UserID).Warn("Join rejected: user not owner or shared")
		return nil, &denyError{message: "Not authorized to join this canvas."}
	}

	log.WithField("user_id", claims.UserID).Info("Join authorized")
	if snapshot, ok := g.sessions.Snapshot(canvasID); ok {
		return snapshot, nil
	}
	return canvas.Elements, nil
}

// Update applies a drawing update from a current room member: the registry
// snapshot is overwritten (last-write-wins). Updates from connections that
// are not in the room are dropped. Returns whether the update was accepted
// and should be broadcast; accepted updates are handed to Persist after the
// broadcast goes out.
func (g *Gateway) Update(canvasID string, elements json.RawMessage, member bool) bool {
	if !member {
		logrus.WithField("canvas_id", canvasID).Warn("Dropping drawing update from non-member connection")
		return false
	}

	g.sessions.SetSnapshot(canvasID, elements)
	return true
}

// Persist schedules a background write of the canvas snapshot, serialized
// per canvas. Called once the update has been broadcast to the room.
func (g *Gateway) Persist(canvasID string, elements json.RawMessage) {
	g.persister.Enqueue(canvasID, elements)
}
