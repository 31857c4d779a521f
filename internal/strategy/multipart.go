package strategy

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/filedrop/uploader/internal/models"
)

// maxResponseBody bounds how much of a response body is read.
const maxResponseBody = 1 << 20

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// writeFilePart writes r as a form file field named field, keeping the
// file's own content type.
func writeFilePart(mw *multipart.Writer, field, fileName, contentType string, r io.Reader) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(fileName)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating form part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("writing form part: %w", err)
	}
	return nil
}

func successful(code int) bool {
	return code >= 200 && code < 300
}

// readBody reads at most maxResponseBody bytes of the response.
func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
}

// decodeUploadResponse parses a 2xx body.
func decodeUploadResponse(body []byte) (models.UploadResponse, error) {
	var out models.UploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return out, malformed(err)
	}
	return out, nil
}

// errorText extracts the server's message from an error body, if any.
func errorText(body []byte) string {
	var er models.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return ""
	}
	return er.Text()
}
