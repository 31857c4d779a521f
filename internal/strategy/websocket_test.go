package strategy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filedrop/uploader/internal/models"
)

// fakeReceiver speaks the server side of the websocket protocol and keeps
// the chunks it was sent. rejectInit makes it answer upload:init with an error.
type fakeReceiver struct {
	t          *testing.T
	rejectInit bool
	received   chan []byte
}

func (f *fakeReceiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	ws, err := up.Upgrade(w, r, nil)
	if !assert.NoError(f.t, err) {
		return
	}
	defer ws.Close()

	send := func(msgType, id string, payload interface{}) {
		data, _ := json.Marshal(payload)
		ws.WriteJSON(models.WSMessage{Type: msgType, ID: id, Payload: data})
	}

	send(models.MsgTypeConnected, "", nil)

	var assembled []byte
	for {
		var msg models.WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case models.MsgTypeUploadInit:
			if f.rejectInit {
				send(models.MsgTypeError, "", models.WSErrorResponse{Type: models.MsgTypeError, Message: "quota exceeded", Code: "QUOTA"})
				continue
			}
			send(models.MsgTypeAck, "session-1", nil)
		case models.MsgTypeUploadChunk:
			var p models.UploadChunkPayload
			json.Unmarshal(msg.Payload, &p)
			data, _ := base64.StdEncoding.DecodeString(p.Data)
			assembled = append(assembled, data...)
			send(models.MsgTypeProgress, p.UploadID, models.WSProgressResponse{Type: models.MsgTypeProgress})
		case models.MsgTypeUploadComplete:
			send(models.MsgTypeProcessing, msg.ID, models.WSProgressResponse{Type: models.MsgTypeProcessing, Stage: "assembling"})
			send(models.MsgTypeComplete, msg.ID, models.WSCompleteResponse{
				Type:     models.MsgTypeComplete,
				FileInfo: &models.FileInfo{ID: "stored-1"},
			})
			f.received <- assembled
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocket_Success(t *testing.T) {
	fake := &fakeReceiver{t: t, received: make(chan []byte, 1)}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	content := []byte(strings.Repeat("0123456789", 30))
	events := run(context.Background(), NewWebSocket(wsURL(srv), 128, nil, nil), models.NewRawFile("log.txt", "text/plain", content))
	terminal := assertContract(t, events)

	require.Equal(t, EventSuccess, terminal.Type)
	assert.Equal(t, "stored-1", terminal.FileID)
	assert.Len(t, events, 4) // three chunks, one terminal
	assert.Equal(t, content, <-fake.received)
}

func TestWebSocket_ServerError(t *testing.T) {
	fake := &fakeReceiver{t: t, rejectInit: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	events := run(context.Background(), NewWebSocket(wsURL(srv), 128, nil, nil), models.NewRawFile("log.txt", "", []byte("x")))
	terminal := assertContract(t, events)

	require.Equal(t, EventError, terminal.Type)
	assert.EqualError(t, terminal.Err, "quota exceeded")
}

func TestWebSocket_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	events := run(context.Background(), NewWebSocket(url, 128, nil, nil), models.NewRawFile("log.txt", "", []byte("x")))
	terminal := assertContract(t, events)

	require.Equal(t, EventError, terminal.Type)
	assert.Contains(t, terminal.Err.Error(), "network error during upload")
}
