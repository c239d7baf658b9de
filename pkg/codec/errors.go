package codec

import "fmt"

// ErrMissingCorrelation is returned when building or parsing a protocol event
// without the correlation tag. Every feedback and result event must reference
// the originating request id, or the counterparty's subscription filters will
// silently discard it.
type ErrMissingCorrelation struct {
	Kind int
}

func NewErrMissingCorrelation(kind int) ErrMissingCorrelation {
	return ErrMissingCorrelation{Kind: kind}
}

func (e ErrMissingCorrelation) Error() string {
	return fmt.Sprintf("event of kind %d has no job correlation tag", e.Kind)
}

// ErrUnexpectedKind is returned when parsing an event whose kind does not
// match the expected protocol kind.
type ErrUnexpectedKind struct {
	Expected string
	Kind     int
}

func NewErrUnexpectedKind(expected string, kind int) ErrUnexpectedKind {
	return ErrUnexpectedKind{Expected: expected, Kind: kind}
}

func (e ErrUnexpectedKind) Error() string {
	return fmt.Sprintf("expected %s event, got kind %d", e.Expected, e.Kind)
}

// ErrInvalidStatus is returned when a feedback event carries an unknown or
// missing status tag.
type ErrInvalidStatus struct {
	Status string
}

func NewErrInvalidStatus(status string) ErrInvalidStatus {
	return ErrInvalidStatus{Status: status}
}

func (e ErrInvalidStatus) Error() string {
	return "invalid feedback status: " + e.Status
}
