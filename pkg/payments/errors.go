package payments

import "github.com/pkg/errors"

// ErrTransient wraps a provider failure that is expected to clear on retry,
// such as a network error or a 5xx response. Pollers retry these briefly
// without failing the job.
type ErrTransient struct {
	Err error
}

func NewErrTransient(err error) ErrTransient {
	return ErrTransient{Err: err}
}

func (e ErrTransient) Error() string {
	return "transient payment provider error: " + e.Err.Error()
}

func (e ErrTransient) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error is a transient provider failure.
func IsTransient(err error) bool {
	var transient ErrTransient
	return errors.As(err, &transient)
}

// ErrUnknownReference is returned when a payment reference is not known to
// the provider.
type ErrUnknownReference struct {
	PaymentReference string
}

func NewErrUnknownReference(reference string) ErrUnknownReference {
	return ErrUnknownReference{PaymentReference: reference}
}

func (e ErrUnknownReference) Error() string {
	return "unknown payment reference: " + e.PaymentReference
}
