package strategy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filedrop/uploader/internal/models"
)

func TestStandard_Success(t *testing.T) {
	var gotName, gotType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotName = hdr.Filename
		gotType = hdr.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"message":"Success","fileId":"test-id"}`)
	}))
	defer srv.Close()

	content := make([]byte, 256*1024)
	for i := range content {
		content[i] = byte(i)
	}
	file := models.NewRawFile("photo.png", "image/png", content)

	events := run(context.Background(), NewStandard(srv.URL, nil, nil), file)
	terminal := assertContract(t, events)

	assert.Equal(t, EventSuccess, terminal.Type)
	assert.Equal(t, "test-id", terminal.FileID)
	assert.Equal(t, "photo.png", gotName)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, content, gotBody)

	require.Greater(t, len(events), 1, "expected progress events")
	assert.InDelta(t, 100, events[len(events)-2].Progress, 0.001)
}

func TestStandard_FallsBackToFileName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":"Success"}`)
	}))
	defer srv.Close()

	events := run(context.Background(), NewStandard(srv.URL, nil, nil), models.NewRawFile("test.txt", "text/plain", []byte("test")))
	terminal := assertContract(t, events)

	assert.Equal(t, EventSuccess, terminal.Type)
	assert.Equal(t, "test.txt", terminal.FileID)
}

func TestStandard_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantMsg string
		wantIs  error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantMsg: "upload failed with status 500",
		},
		{
			name: "redirect is not success",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotModified)
			},
			wantMsg: "upload failed with status 304",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `<html>ok</html>`)
			},
			wantIs: ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			events := run(context.Background(), NewStandard(srv.URL, nil, nil), models.NewRawFile("test.txt", "text/plain", []byte("test")))
			terminal := assertContract(t, events)

			require.Equal(t, EventError, terminal.Type)
			if tt.wantMsg != "" {
				assert.EqualError(t, terminal.Err, tt.wantMsg)
				var se *StatusError
				assert.ErrorAs(t, terminal.Err, &se)
			}
			if tt.wantIs != nil {
				assert.ErrorIs(t, terminal.Err, tt.wantIs)
			}
		})
	}
}

func TestStandard_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	events := run(context.Background(), NewStandard(url, nil, nil), models.NewRawFile("test.txt", "", []byte("test")))
	terminal := assertContract(t, events)

	require.Equal(t, EventError, terminal.Type)
	assert.Contains(t, terminal.Err.Error(), "network error during upload")
}

func TestStandard_Aborted(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	events := run(ctx, NewStandard(srv.URL, nil, nil), models.NewRawFile("test.txt", "", []byte("test")))
	terminal := assertContract(t, events)

	require.Equal(t, EventError, terminal.Type)
	assert.True(t, errors.Is(terminal.Err, ErrAborted))
	assert.EqualError(t, terminal.Err, "upload aborted")
}
