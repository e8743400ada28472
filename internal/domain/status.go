package domain

// Status is the sender-side delivery lifecycle of a message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"

	// StatusFailed sits outside the monotonic chain: the persistence call
	// failed after the optimistic insert.
	StatusFailed Status = "failed"
)

var statusRank = map[Status]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Rank returns the position of s in the sending < sent < delivered < read
// chain, and false for failed or unknown values.
func (s Status) Rank() (int, bool) {
	r, ok := statusRank[s]
	return r, ok
}

// Max returns the higher-ranked of the two statuses.
func (s Status) Max(other Status) Status {
	a, okA := s.Rank()
	b, okB := other.Rank()
	if !okA {
		return s
	}
	if !okB || b <= a {
		return s
	}
	return other
}
