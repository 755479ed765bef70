package canvases

import (
	"encoding/json"
	"errors"
	"net/http"
	"whiteboard-server/auth"
	"whiteboard-server/core"
	"whiteboard-server/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	CreateCanvasRequest struct {
		Shared   []string        `json:"shared,omitempty"`
		Elements json.RawMessage `json:"elements,omitempty"`
	}

	CreateCanvasResponse struct {
		ID string `json:"id"`
	}

	ShareCanvasRequest struct {
		UserID string `json:"userId"`
	}
)

func claimsFrom(r *http.Request) (*auth.AppClaims, bool) {
	claims, ok := r.Context().Value(middleware.ClaimsContextKey).(*auth.AppClaims)
	return claims, ok
}

// HandleCreate creates a canvas owned by the caller.
func HandleCreate(store core.CanvasStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		var req CreateCanvasRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}

		elements := req.Elements
		if elements == nil {
			elements = json.RawMessage(`[]`)
		}

		id, err := store.Create(r.Context(), &core.Canvas{
			Owner:    claims.UserID,
			Shared:   req.Shared,
			Elements: elements,
		})
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":  err,
				"userID": claims.UserID,
			}).Error("Failed to create canvas")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to create canvas"})
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, CreateCanvasResponse{ID: id})
	}
}

// HandleList returns metadata for every canvas the caller owns or is shared on.
func HandleList(store core.CanvasStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		canvases, err := store.List(r.Context(), claims.UserID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":  err,
				"userID": claims.UserID,
			}).Error("Failed to list canvases")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to list canvases"})
			return
		}

		if canvases == nil {
			canvases = []*core.Canvas{}
		}
		render.JSON(w, r, canvases)
	}
}

// HandleGet fetches a single canvas; the caller must be its owner or shared.
func HandleGet(store core.CanvasStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		id := chi.URLParam(r, "id")
		canvas, err := store.FindID(r.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			message := "Failed to get canvas"
			if errors.Is(err, core.ErrNotFound) {
				status = http.StatusNotFound
				message = "Canvas not found"
			}
			logrus.WithFields(logrus.Fields{
				"error":     err,
				"canvas_id": id,
			}).Warn("Failed to get canvas")
			render.Status(r, status)
			render.JSON(w, r, map[string]string{"error": message})
			return
		}

		if !canvas.CanAccess(claims.UserID) {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, map[string]string{"error": "Not authorized to access this canvas"})
			return
		}

		render.JSON(w, r, canvas)
	}
}

// HandleShare adds a user to the canvas's shared set. Owner only; adding an
// already-shared user is a no-op.
func HandleShare(store core.CanvasStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		var req ShareCanvasRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "userId is required"})
			return
		}

		id := chi.URLParam(r, "id")
		canvas, err := store.FindID(r.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			message := "Failed to get canvas"
			if errors.Is(err, core.ErrNotFound) {
				status = http.StatusNotFound
				message = "Canvas not found"
			}
			render.Status(r, status)
			render.JSON(w, r, map[string]string{"error": message})
			return
		}

		if canvas.Owner != claims.UserID {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, map[string]string{"error": "Only the owner can share a canvas"})
			return
		}

		if req.UserID != canvas.Owner && !canvas.CanAccess(req.UserID) {
			canvas.Shared = append(canvas.Shared, req.UserID)
			if err := store.Save(r.Context(), canvas); err != nil {
				logrus.WithFields(logrus.Fields{
					"error":     err,
					"canvas_id": id,
				}).Error("Failed to share canvas")
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, map[string]string{"error": "Failed to share canvas"})
				return
			}
		}

		render.JSON(w, r, canvas)
	}
}

// HandleDelete removes a canvas. Owner only.
func HandleDelete(store core.CanvasStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		id := chi.URLParam(r, "id")
		if err := store.Delete(r.Context(), claims.UserID, id); err != nil {
			status := http.StatusInternalServerError
			message := "Failed to delete canvas"
			if errors.Is(err, core.ErrNotFound) {
				status = http.StatusNotFound
				message = "Canvas not found"
			}
			logrus.WithFields(logrus.Fields{
				"error":     err,
				"userID":    claims.UserID,
				"canvas_id": id,
			}).Error("Failed to delete canvas")
			render.Status(r, status)
			render.JSON(w, r, map[string]string{"error": message})
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]string{"status": "deleted"})
	}
}
