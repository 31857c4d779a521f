package strategy

import "io"

// progressReader reports whole-percent progress while the wrapped reader is
// consumed. A report is made only when the percentage grows.
type progressReader struct {
	reader   io.Reader
	size     int64
	read     int64
	reported int
	report   func(pct float64)
}

func newProgressReader(r io.Reader, size int64, report func(pct float64)) *progressReader {
	return &progressReader{reader: r, size: size, reported: -1, report: report}
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 && r.size > 0 {
		r.read += int64(n)
		pct := int(r.read * 100 / r.size)
		if pct > 100 {
			pct = 100
		}
		if pct > r.reported {
			r.reported = pct
			r.report(float64(r.read) / float64(r.size) * 100)
		}
	}
	return n, err
}
