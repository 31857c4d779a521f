package strategy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"

	"github.com/filedrop/uploader/internal/logging"
	"github.com/filedrop/uploader/internal/models"
)

// WebSocket streams a file over one websocket connection using the
// upload:init / upload:chunk / upload:complete protocol. Chunks are sent
// sequentially and each one is acknowledged before the next is sent.
type WebSocket struct {
	endpoint  string
	chunkSize int64
	dialer    *websocket.Dialer
	log       logging.Logger
}

// NewWebSocket creates a WebSocket strategy. A non-positive chunkSize selects
// DefaultChunkSize.
func NewWebSocket(endpoint string, chunkSize int64, dialer *websocket.Dialer, log logging.Logger) *WebSocket {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WebSocket{
		endpoint:  endpoint,
		chunkSize: chunkSize,
		dialer:    dialer,
		log:       orDiscard(log),
	}
}

// Endpoint returns the websocket URL.
func (w *WebSocket) Endpoint() string { return w.endpoint }

// Upload implements Strategy.
func (w *WebSocket) Upload(ctx context.Context, file models.RawFile, events chan<- Event) {
	fileID, err := w.send(ctx, file, events)
	if err != nil {
		w.log.Debugf("[WebSocket] %s failed: %v", file.Name, err)
		events <- Failed(err)
		return
	}
	w.log.Debugf("[WebSocket] %s uploaded as %s", file.Name, fileID)
	events <- Succeeded(fileID)
}

func (w *WebSocket) send(ctx context.Context, file models.RawFile, events chan<- Event) (string, error) {
	conn, _, err := w.dialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return "", transportError(ctx, err)
	}
	defer conn.Close()

	// Closing the connection unblocks any pending read or write.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	fail := func(err error) (string, error) {
		if ctx.Err() != nil {
			return "", ErrAborted
		}
		return "", err
	}

	if _, err := expect(conn, models.MsgTypeConnected); err != nil {
		return fail(err)
	}

	total := TotalChunks(file.Size, w.chunkSize)
	if err := write(conn, models.MsgTypeUploadInit, "", models.UploadInitPayload{
		FileName:    file.Name,
		TotalChunks: total,
		TotalSize:   file.Size,
	}); err != nil {
		return fail(err)
	}

	ack, err := expect(conn, models.MsgTypeAck)
	if err != nil {
		return fail(err)
	}
	uploadID := ack.ID

	buf := make([]byte, min(w.chunkSize, max(file.Size, 1)))
	for i := 0; i < total; i++ {
		start := int64(i) * w.chunkSize
		n := min(w.chunkSize, file.Size-start)

		if _, err := io.ReadFull(file.Section(start, n), buf[:n]); err != nil {
			return fail(fmt.Errorf("reading chunk %d: %w", i, err))
		}

		if err := write(conn, models.MsgTypeUploadChunk, uploadID, models.UploadChunkPayload{
			UploadID:   uploadID,
			ChunkIndex: i,
			Data:       base64.StdEncoding.EncodeToString(buf[:n]),
			IsLast:     i == total-1,
		}); err != nil {
			return fail(err)
		}

		if _, err := expect(conn, models.MsgTypeProgress); err != nil {
			return fail(err)
		}
		events <- Progress(float64(i+1) / float64(total) * 100)
	}

	if err := write(conn, models.MsgTypeUploadComplete, uploadID, models.UploadCompletePayload{
		UploadID:     uploadID,
		FileName:     file.Name,
		TotalChunks:  total,
		OriginalSize: file.Size,
	}); err != nil {
		return fail(err)
	}

	done, err := expect(conn, models.MsgTypeComplete)
	if err != nil {
		return fail(err)
	}

	var complete models.WSCompleteResponse
	if err := json.Unmarshal(done.Payload, &complete); err != nil {
		return fail(malformed(err))
	}
	if complete.FileInfo == nil || complete.FileInfo.ID == "" {
		return file.Name, nil
	}
	return complete.FileInfo.ID, nil
}

func write(conn *websocket.Conn, msgType, id string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msgType, err)
	}
	msg := models.WSMessage{
		Type:      msgType,
		ID:        id,
		Payload:   data,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("network error during upload: %w", err)
	}
	return nil
}

// expect reads until a message of type want arrives. Server errors are
// returned as errors; processing and keepalive messages are skipped.
func expect(conn *websocket.Conn, want string) (models.WSMessage, error) {
	for {
		var msg models.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				return msg, malformed(err)
			}
			return msg, fmt.Errorf("network error during upload: %w", err)
		}

		switch msg.Type {
		case want:
			return msg, nil
		case models.MsgTypeError:
			var e models.WSErrorResponse
			if err := json.Unmarshal(msg.Payload, &e); err != nil || e.Message == "" {
				return msg, errors.New("upload rejected by server")
			}
			return msg, errors.New(e.Message)
		case models.MsgTypeProcessing, models.MsgTypePong, models.MsgTypeConnected:
			continue
		default:
			return msg, fmt.Errorf("unexpected %q message while waiting for %q", msg.Type, want)
		}
	}
}
