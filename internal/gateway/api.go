// ABOUTME: HTTP API handlers for task rooms, transcripts and the caller's identity
// ABOUTME: Provides POST /api/tasks, room details, synchronous runs and message history

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/hercules-gateway/internal/auth"
	"github.com/2389/hercules-gateway/internal/conversation"
	"github.com/2389/hercules-gateway/internal/room"
	"github.com/2389/hercules-gateway/internal/store"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

// TaskRequest is the JSON request body for POST /api/tasks and
// POST /api/rooms/{id}/run.
type TaskRequest struct {
	Prompt string `json:"prompt"`
}

// RoomResponse is the JSON response for room details.
type RoomResponse struct {
	RoomID     string `json:"room_id"`
	UserID     string `json:"user_id"`
	TaskPrompt string `json:"task_prompt"`
	CreatedAt  string `json:"created_at"`
	Status     string `json:"status"`
	FolderPath string `json:"folder_path,omitempty"`
}

// CreateTaskResponse is the JSON response for POST /api/tasks.
type CreateTaskResponse struct {
	RoomID  string       `json:"room_id"`
	Message string       `json:"message"`
	Details RoomResponse `json:"details"`
}

// RunResponse is the JSON response for POST /api/rooms/{id}/run.
type RunResponse struct {
	RoomID string  `json:"room_id"`
	State  string  `json:"state"`
	Reply  *string `json:"reply"`
	Error  string  `json:"error,omitempty"`
}

// MessageResponse is one transcript entry.
type MessageResponse struct {
	ID         string          `json:"id"`
	AgentName  string          `json:"agent_name"`
	Content    string          `json:"content"`
	ModelUsed  *string         `json:"model_used,omitempty"`
	ToolCalls  json.RawMessage `json:"tool_calls,omitempty"`
	TokenCount *int            `json:"token_count,omitempty"`
	CustomType *string         `json:"custom_type,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

// RoomMessagesResponse is the JSON response for GET /api/rooms/{id}/messages.
type RoomMessagesResponse struct {
	RoomID   string            `json:"room_id"`
	Messages []MessageResponse `json:"messages"`
}

// UserResponse is the JSON response for GET /api/users/me.
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	Anonymous bool   `json:"anonymous"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleHealth reports whether the store is reachable.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("health check: store unreachable", "error", err)
		g.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "degraded",
			Message: "Healthy, but transcript store NOT REACHABLE: " + err.Error(),
		})
		return
	}
	g.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Message: "Healthy, transcript store reachable."})
}

// handlePublicInfo handles GET /api/public_info.
func (g *Gateway) handlePublicInfo(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{"message": "This endpoint is public."})
}

// handleUsersMe handles GET /api/users/me.
func (g *Gateway) handleUsersMe(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	g.writeJSON(w, http.StatusOK, UserResponse{
		ID:        caller.UserID,
		Email:     caller.Email,
		Role:      caller.Role,
		Anonymous: caller.Anonymous,
	})
}

// handleCreateTask handles POST /api/tasks. It creates a room and starts its
// session in the background. A repeated Idempotency-Key from the same user
// returns the first room instead of creating another.
func (g *Gateway) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	req, err := parseTaskRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	create := func() (string, error) {
		rm, err := g.rooms.Create(r.Context(), caller.UserID, req.Prompt)
		if err != nil {
			return "", err
		}
		g.startSession(rm.ID, req.Prompt)
		return rm.ID, nil
	}

	var roomID string
	var repeated bool
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		roomID, repeated, err = g.dedupe.Do(caller.UserID+"\x00"+key, create)
	} else {
		roomID, err = create()
	}
	if errors.Is(err, room.ErrEmptyPrompt) {
		g.sendJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if err != nil {
		g.logger.Error("failed to create task room", "user_id", caller.UserID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to create task room")
		return
	}

	rm, err := g.store.GetRoom(r.Context(), roomID, caller.UserID)
	if err != nil {
		g.logger.Error("failed to load created room", "room_id", roomID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusCreated
	if repeated {
		status = http.StatusOK
	}
	g.logger.Info("task room created", "room_id", roomID, "user_id", caller.UserID, "repeated", repeated)
	g.writeJSON(w, status, CreateTaskResponse{
		RoomID:  roomID,
		Message: "Task room created and metadata stored successfully.",
		Details: roomResponse(rm),
	})
}

// handleRoomDetails handles GET /api/rooms/{id}.
func (g *Gateway) handleRoomDetails(w http.ResponseWriter, r *http.Request) {
	rm, ok := g.ownedRoom(w, r)
	if !ok {
		return
	}
	g.writeJSON(w, http.StatusOK, roomResponse(rm))
}

// handleRunRoom handles POST /api/rooms/{id}/run. It runs a session to
// completion before responding. An empty prompt reruns the room's task.
func (g *Gateway) handleRunRoom(w http.ResponseWriter, r *http.Request) {
	rm, ok := g.ownedRoom(w, r)
	if !ok {
		return
	}

	req, err := parseTaskRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	prompt := req.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = rm.TaskPrompt
	}

	res, err := g.runSession(r.Context(), rm.ID, prompt)
	if errors.Is(err, errSessionActive) {
		g.sendJSONError(w, http.StatusConflict, err.Error())
		return
	}

	resp := RunResponse{RoomID: res.RoomID, State: string(res.State), Reply: res.Reply}
	if res.State == conversation.StateFailed && res.Err != nil {
		resp.Error = res.Err.Error()
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleRoomMessages handles GET /api/rooms/{id}/messages.
// Supports an optional ?limit=N (max 1000).
func (g *Gateway) handleRoomMessages(w http.ResponseWriter, r *http.Request) {
	rm, ok := g.ownedRoom(w, r)
	if !ok {
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, 1000)
	}

	messages, err := g.store.ListMessages(r.Context(), rm.ID, limit)
	if err != nil {
		g.logger.Error("failed to list messages", "room_id", rm.ID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := RoomMessagesResponse{
		RoomID:   rm.ID,
		Messages: make([]MessageResponse, len(messages)),
	}
	for i, msg := range messages {
		resp.Messages[i] = MessageResponse{
			ID:         msg.ID,
			AgentName:  msg.AgentName,
			Content:    msg.Content,
			ModelUsed:  msg.ModelUsed,
			ToolCalls:  msg.ToolCalls,
			TokenCount: msg.TokenCount,
			CustomType: msg.CustomType,
			CreatedAt:  msg.CreatedAt.Format(time.RFC3339Nano),
		}
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// ownedRoom loads {id} for the caller, writing the error response itself
// when it returns false.
func (g *Gateway) ownedRoom(w http.ResponseWriter, r *http.Request) (*store.Room, bool) {
	caller := auth.MustFromContext(r.Context())
	roomID := r.PathValue("id")

	rm, err := g.store.GetRoom(r.Context(), roomID, caller.UserID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "room not found or access denied")
		return nil, false
	}
	if err != nil {
		g.logger.Error("failed to get room", "room_id", roomID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return rm, true
}

func roomResponse(rm *store.Room) RoomResponse {
	return RoomResponse{
		RoomID:     rm.ID,
		UserID:     rm.UserID,
		TaskPrompt: rm.TaskPrompt,
		CreatedAt:  rm.CreatedAt.UTC().Format(time.RFC3339Nano),
		Status:     string(rm.Status),
		FolderPath: rm.FolderPath,
	}
}

// parseTaskRequest decodes a TaskRequest. An empty body is an empty request.
func parseTaskRequest(body io.Reader) (*TaskRequest, error) {
	var req TaskRequest
	err := json.NewDecoder(io.LimitReader(body, maxRequestBody)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid JSON body")
	}
	return &req, nil
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}
