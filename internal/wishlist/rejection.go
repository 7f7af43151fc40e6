package wishlist

import (
	"errors"
	"fmt"
)

// Kind classifies an expected domain rejection.
type Kind string

const (
	InvalidIntent     Kind = "InvalidIntent"
	ProductNotFound   Kind = "ProductNotFound"
	InsufficientStock Kind = "InsufficientStock"
	UnsupportedAction Kind = "UnsupportedAction"
)

// Rejection is returned when an intent is refused. No state has changed when
// a Rejection is returned. Message is safe to show to users.
type Rejection struct {
	Kind    Kind
	Message string
}

func (r *Rejection) Error() string { return r.Message }

// AsRejection returns the Rejection in err's chain, if any.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

func reject(kind Kind, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
