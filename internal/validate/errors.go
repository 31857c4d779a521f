package validate

// Kind categorizes a rejection.
type Kind string

const (
	KindSize  Kind = "size"
	KindType  Kind = "type"
	KindCount Kind = "count"
)

const (
	reasonType   = "is not an accepted file type"
	reasonSingle = "only one file may be selected at a time"
)

// Rejection names a file that failed validation and why.
type Rejection struct {
	Name   string
	Reason string
	Kind   Kind
}

func newRejection(name string, kind Kind, reason string) Rejection {
	return Rejection{Name: name, Reason: reason, Kind: kind}
}

// Error implements the error interface, e.g. "big.iso exceeds maximum file size of 10MB".
func (r Rejection) Error() string {
	return r.Name + " " + r.Reason
}
