package model

import "errors"

// Status of an agreement. Signed and Cancelled are terminal.
type Status int

const (
	StatusDraft Status = iota
	StatusPending
	StatusSigned
	StatusCancelled
)

var ErrUnknownStatus = errors.New("unknown agreement status")

var statusNames = map[Status]string{
	StatusDraft:     "Draft",
	StatusPending:   "Pending",
	StatusSigned:    "Signed",
	StatusCancelled: "Cancelled",
}

func (status Status) String() string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return "Unknown"
}

func (status Status) IsValid() bool {
	_, ok := statusNames[status]
	return ok
}

func (status Status) IsTerminal() bool {
	return status == StatusSigned || status == StatusCancelled
}

// CanTransition checks the static transition table; the signature-count guard for
// Pending -> Signed is enforced by Agreement.Transition.
func (status Status) CanTransition(to Status) bool {
	switch status {
	case StatusDraft:
		return to == StatusPending || to == StatusCancelled
	case StatusPending:
		return to == StatusSigned || to == StatusCancelled
	default:
		return false
	}
}

func ParseStatus(name string) (Status, error) {
	for status, n := range statusNames {
		if n == name {
			return status, nil
		}
	}
	return StatusDraft, errors.New(ErrUnknownStatus.Error() + ": " + name)
}

func (status Status) MarshalText() ([]byte, error) {
	if !status.IsValid() {
		return nil, ErrUnknownStatus
	}
	return []byte(status.String()), nil
}

func (status *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*status = parsed
	return nil
}
