package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/bits"
	"time"
)

// Event is the unit of exchange on the gossip transport. Events are immutable
// once published: the ID is derived from the event content, so any change to
// the payload (including raising the proof-of-work nonce) produces a new ID.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
}

func NewEvent(pubKey string, kind int, content string) *Event {
	return &Event{
		PubKey:    pubKey,
		CreatedAt: time.Now().UTC().Unix(),
		Kind:      kind,
		Content:   content,
	}
}

// AppendTag adds a tag without checking for duplicates.
func (e *Event) AppendTag(name string, values ...string) {
	e.Tags = append(e.Tags, append([]string{name}, values...))
}

// Tag returns the first value of the first tag with the given name.
func (e *Event) Tag(name string) (string, bool) {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1], true
		}
	}
	return "", false
}

// TagValues returns all values (beyond the name) of the first matching tag.
func (e *Event) TagValues(name string) []string {
	for _, tag := range e.Tags {
		if len(tag) >= 1 && tag[0] == name {
			return tag[1:]
		}
	}
	return nil
}

// CorrelationID returns the job correlation tag, if present.
func (e *Event) CorrelationID() (string, bool) {
	return e.Tag(TagCorrelation)
}

// Seal computes and assigns the content-derived event ID. It must be called
// after the last mutation of the event payload.
func (e *Event) Seal() string {
	e.ID = e.computeID()
	return e.ID
}

// Verify reports whether the event ID matches its content.
func (e *Event) Verify() bool {
	return e.ID != "" && e.ID == e.computeID()
}

func (e *Event) computeID() string {
	tags := e.Tags
	if tags == nil {
		tags = [][]string{}
	}
	serialized, err := json.Marshal([]interface{}{
		0, e.PubKey, e.CreatedAt, e.Kind, tags, e.Content,
	})
	if err != nil {
		// the serialized fields are all plain data, this cannot fail
		panic(err)
	}
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:])
}

// Difficulty returns the number of leading zero bits in the event ID,
// which is the event's proof-of-work value.
func (e *Event) Difficulty() int {
	raw, err := hex.DecodeString(e.ID)
	if err != nil {
		return 0
	}
	difficulty := 0
	for _, b := range raw {
		if b == 0 {
			difficulty += 8
			continue
		}
		difficulty += bits.LeadingZeros8(b)
		break
	}
	return difficulty
}
