package types

// Event is the broadcastable form of a ledger event. Sequence is assigned by
// the journal that persisted it and is zero for events that were never
// journaled.
type Event struct {
	Sequence   uint64            `json:"sequence,omitempty"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the named attribute or an empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
