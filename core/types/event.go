package types

// Event is the broadcast form of a committed notification: a dotted type name,
// the height it was committed at, and string attributes.
type Event struct {
	Type       string            `json:"type"`
	Height     uint64            `json:"height"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the named attribute or the empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
