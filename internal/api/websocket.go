package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/filedrop/uploader/internal/format"
	"github.com/filedrop/uploader/internal/logging"
	"github.com/filedrop/uploader/internal/models"
	"github.com/filedrop/uploader/internal/storage"
)

// uploadSession tracks an in-progress upload on one connection
type uploadSession struct {
	ID          string
	FileName    string
	TotalChunks int
	TotalSize   int64
	CreatedAt   time.Time
}

// WebSocketHandlerImpl serves the upload:init / upload:chunk / upload:complete
// protocol. Chunks are staged in the store under the session id.
type WebSocketHandlerImpl struct {
	store    storage.Store
	log      logging.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket upload handler
func NewWebSocketHandler(store storage.Store, log logging.Logger) WebSocketHandler {
	return &WebSocketHandlerImpl{
		store: store,
		log:   log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

// wsConn is the per-connection protocol state. Sessions belong to the
// connection that opened them and are discarded when it goes away.
type wsConn struct {
	h        *WebSocketHandlerImpl
	ws       *websocket.Conn
	sessions map[string]*uploadSession
}

// HandleWebSocket upgrades the HTTP connection and runs the upload protocol
func (wsh *WebSocketHandlerImpl) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	conn := &wsConn{h: wsh, ws: ws, sessions: make(map[string]*uploadSession)}
	defer conn.abandon()

	wsh.log.Debugf("[WebSocket] Client connected from %s", c.RealIP())
	conn.send(models.MsgTypeConnected, "", nil)

	for {
		var msg models.WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.log.Warnf("[WebSocket] Connection error: %v", err)
			}
			break
		}

		switch msg.Type {
		case models.MsgTypePing:
			conn.send(models.MsgTypePong, msg.ID, nil)
		case models.MsgTypeUploadInit:
			conn.handleInit(msg)
		case models.MsgTypeUploadChunk:
			conn.handleChunk(msg)
		case models.MsgTypeUploadComplete:
			conn.handleComplete(msg)
		default:
			conn.sendError("Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}

	wsh.log.Debugf("[WebSocket] Client disconnected")
	return nil
}

// handleInit opens a new upload session
func (c *wsConn) handleInit(msg models.WSMessage) {
	var payload models.UploadInitPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.sendError("Invalid init payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}
	if payload.FileName == "" {
		c.sendError("fileName is required", "INVALID_PAYLOAD")
		return
	}
	if payload.TotalChunks < 0 {
		c.sendError(fmt.Sprintf("invalid totalChunks %d", payload.TotalChunks), "INVALID_PAYLOAD")
		return
	}

	session := &uploadSession{
		ID:          uuid.New().String(),
		FileName:    payload.FileName,
		TotalChunks: payload.TotalChunks,
		TotalSize:   payload.TotalSize,
		CreatedAt:   time.Now(),
	}
	c.sessions[session.ID] = session

	c.send(models.MsgTypeAck, session.ID, nil)
	c.h.log.Infof("[WebSocket] Upload initialized: %s %s (%d chunks, %s)",
		session.ID[:8], session.FileName, session.TotalChunks, format.FormatFileSize(session.TotalSize))
}

// handleChunk stages one chunk and reports how many have arrived
func (c *wsConn) handleChunk(msg models.WSMessage) {
	var payload models.UploadChunkPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.sendError("Invalid chunk payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	session, ok := c.sessions[payload.UploadID]
	if !ok {
		c.sendError("Upload session not found: "+payload.UploadID, "SESSION_NOT_FOUND")
		return
	}
	if payload.ChunkIndex < 0 || payload.ChunkIndex >= session.TotalChunks {
		c.sendError(fmt.Sprintf("Chunk index %d out of range", payload.ChunkIndex), "INVALID_CHUNK")
		return
	}

	data, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		c.sendError("Invalid base64 data: "+err.Error(), "INVALID_DATA")
		return
	}

	if err := c.h.store.SaveChunk(session.ID, payload.ChunkIndex, bytes.NewReader(data)); err != nil {
		c.sendError("Failed to save chunk: "+err.Error(), "SAVE_ERROR")
		return
	}

	received, err := c.h.store.ChunkCount(session.ID)
	if err != nil {
		c.sendError("Failed to count chunks: "+err.Error(), "SAVE_ERROR")
		return
	}

	c.send(models.MsgTypeProgress, session.ID, models.WSProgressResponse{
		Type:     models.MsgTypeProgress,
		UploadID: session.ID,
		Progress: float64(received) / float64(session.TotalChunks) * 100,
		Stage:    "uploading",
		Message:  fmt.Sprintf("Received chunk %d/%d", received, session.TotalChunks),
	})
}

// handleComplete assembles the staged chunks into a stored file
func (c *wsConn) handleComplete(msg models.WSMessage) {
	var payload models.UploadCompletePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.sendError("Invalid complete payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	session, ok := c.sessions[payload.UploadID]
	if !ok {
		c.sendError("Upload session not found: "+payload.UploadID, "SESSION_NOT_FOUND")
		return
	}

	received, err := c.h.store.ChunkCount(session.ID)
	if err != nil || received != session.TotalChunks {
		c.sendError(fmt.Sprintf("Missing chunks: got %d, expected %d", received, session.TotalChunks), "INCOMPLETE_UPLOAD")
		return
	}

	c.send(models.MsgTypeProcessing, session.ID, models.WSProgressResponse{
		Type:     models.MsgTypeProcessing,
		UploadID: session.ID,
		Progress: 50,
		Stage:    "assembling",
		Message:  "Assembling file chunks...",
	})

	info, err := c.h.store.CompleteChunkedUpload(session.ID, session.FileName, session.TotalChunks)
	if err != nil {
		c.sendError("Failed to save file: "+err.Error(), "SAVE_ERROR")
		return
	}
	delete(c.sessions, session.ID)

	if session.TotalSize > 0 && info.Size != session.TotalSize {
		c.h.log.Warnf("[WebSocket] %s: expected %d bytes, assembled %d", info.ID, session.TotalSize, info.Size)
	}

	c.send(models.MsgTypeComplete, session.ID, models.WSCompleteResponse{
		Type:     models.MsgTypeComplete,
		UploadID: session.ID,
		FileInfo: info,
	})

	c.h.log.Infof("[WebSocket] Upload complete: %s %s (%s)", info.ID, info.Name, format.FormatFileSize(info.Size))
}

// abandon discards the chunks of sessions that never completed
func (c *wsConn) abandon() {
	for id := range c.sessions {
		if err := c.h.store.AbortChunkedUpload(id); err != nil {
			c.h.log.Warnf("[WebSocket] Failed to discard session %s: %v", id, err)
		}
		delete(c.sessions, id)
	}
}

// Helper methods

func (c *wsConn) send(msgType, id string, payload interface{}) {
	msg := models.WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		msg.Payload = mustJSON(payload)
	}
	if err := c.ws.WriteJSON(msg); err != nil {
		c.h.log.Warnf("[WebSocket] Failed to send message: %v", err)
	}
}

func (c *wsConn) sendError(message, code string) {
	c.h.log.Debugf("[WebSocket] %s: %s", code, message)
	c.send(models.MsgTypeError, "", models.WSErrorResponse{
		Type:    models.MsgTypeError,
		Message: message,
		Code:    code,
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
