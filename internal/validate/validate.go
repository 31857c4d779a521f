// Package validate partitions candidate files into accepted and rejected
// according to a size limit, an accept pattern and the single-selection flag.
package validate

import (
	"errors"

	"github.com/filedrop/uploader/internal/format"
	"github.com/filedrop/uploader/internal/models"
)

// Constraints configures Validate.
type Constraints struct {
	// MaxFileSize is the largest accepted size in bytes. Zero disables the check.
	MaxFileSize int64 `yaml:"maxFileSize" json:"maxFileSize"`

	// Accept is a comma-separated list of ".ext", "category/*" or exact
	// MIME type tokens. Empty accepts every type.
	Accept string `yaml:"accept" json:"accept"`

	// Single limits a selection to one file. The zero value accepts many.
	Single bool `yaml:"single" json:"single"`
}

// Result is the outcome of Validate.
type Result struct {
	Accepted   []models.RawFile
	Rejections []Rejection
}

// Err joins every rejection into one error, or returns nil.
func (r Result) Err() error {
	if len(r.Rejections) == 0 {
		return nil
	}
	errs := make([]error, len(r.Rejections))
	for i := range r.Rejections {
		errs[i] = r.Rejections[i]
	}
	return errors.Join(errs...)
}

// Validate checks every candidate against c. Size is checked before type and
// only the first failing reason is reported per file.
func Validate(candidates []models.RawFile, c Constraints) Result {
	var res Result
	patterns := ParseAccept(c.Accept)

	for i, f := range candidates {
		if c.Single && i > 0 {
			res.Rejections = append(res.Rejections, newRejection(f.Name, KindCount, reasonSingle))
			continue
		}

		if c.MaxFileSize > 0 && f.Size > c.MaxFileSize {
			reason := "exceeds maximum file size of " + format.FormatMegabytes(c.MaxFileSize) + "MB"
			res.Rejections = append(res.Rejections, newRejection(f.Name, KindSize, reason))
			continue
		}

		if len(patterns) > 0 && !patterns.Match(f) {
			res.Rejections = append(res.Rejections, newRejection(f.Name, KindType, reasonType))
			continue
		}

		res.Accepted = append(res.Accepted, f)
	}

	return res
}
