// Package format holds display helpers shared by the CLI and the coordinator.
package format

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatFileSize renders bytes with up to two decimals, e.g. "1.5 MB".
func FormatFileSize(bytes int64) string {
	return FormatFileSizeDecimals(bytes, 2)
}

// FormatFileSizeDecimals renders bytes rounded to at most decimals places.
// Trailing zeros are dropped, so 1536 bytes is "1.5 KB" and not "1.50 KB".
func FormatFileSizeDecimals(bytes int64, decimals int) string {
	if bytes == 0 {
		return "0 Bytes"
	}
	if bytes < 0 {
		return fmt.Sprintf("%d Bytes", bytes)
	}
	if decimals < 0 {
		decimals = 0
	}

	i, div := 0, int64(1)
	for i < len(sizeUnits)-1 && bytes/div >= 1024 {
		div *= 1024
		i++
	}

	scale := math.Pow(10, float64(decimals))
	v := math.Round(float64(bytes)/float64(div)*scale) / scale

	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// FormatMegabytes renders a byte count as megabytes without a unit, using
// the shortest decimal form ("10", "1.5").
func FormatMegabytes(bytes int64) string {
	return strconv.FormatFloat(float64(bytes)/1024/1024, 'f', -1, 64)
}

// GenerateFileID returns a new unique identifier for a tracked file.
func GenerateFileID() string {
	return uuid.New().String()
}

// FormatDate renders t as a medium date with a short time, e.g.
// "Jan 2, 2006, 3:04 PM".
func FormatDate(t time.Time) string {
	return t.Format("Jan 2, 2006, 3:04 PM")
}
