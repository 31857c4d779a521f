package models

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// RawFile is an immutable handle on a file selected for upload.
type RawFile struct {
	Name string      `json:"name"`
	Size int64       `json:"size"`
	Type string      `json:"type"` // MIME type, may be empty
	Data io.ReaderAt `json:"-"`
}

// NewRawFile wraps in-memory content.
func NewRawFile(name, mimeType string, data []byte) RawFile {
	return RawFile{
		Name: name,
		Size: int64(len(data)),
		Type: mimeType,
		Data: bytes.NewReader(data),
	}
}

// OpenRawFile opens the file at path. The returned closer releases the
// underlying descriptor and must be called once the upload has finished.
func OpenRawFile(path string) (RawFile, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return RawFile{}, nil, fmt.Errorf("opening file: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return RawFile{}, nil, fmt.Errorf("stat file: %w", err)
	}
	if st.IsDir() {
		f.Close()
		return RawFile{}, nil, fmt.Errorf("%s is a directory", path)
	}

	raw := RawFile{
		Name: filepath.Base(path),
		Size: st.Size(),
		Data: f,
	}
	raw.Type = detectType(raw)

	return raw, f, nil
}

// Reader returns a reader over the whole content.
func (f RawFile) Reader() io.Reader {
	return f.Section(0, f.Size)
}

// Section returns a reader over n bytes starting at off.
func (f RawFile) Section(off, n int64) io.Reader {
	if f.Data == nil {
		return bytes.NewReader(nil)
	}
	return io.NewSectionReader(f.Data, off, n)
}

// detectType resolves the MIME type from the extension first, then by
// sniffing the first 512 bytes.
func detectType(f RawFile) string {
	if t := mime.TypeByExtension(filepath.Ext(f.Name)); t != "" {
		return t
	}
	if f.Size == 0 {
		return ""
	}

	head := make([]byte, 512)
	n, err := f.Data.ReadAt(head, 0)
	if n == 0 && err != nil {
		return ""
	}
	return http.DetectContentType(head[:n])
}
