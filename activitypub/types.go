package activitypub

import (
	"encoding/json"
)

const ActivityStreamsContext = "https://www.w3.org/ns/activitystreams"

// StringList accepts either a single JSON string or an array of strings,
// which ActivityPub uses interchangeably for addressing fields.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// Activity is the generic inbound envelope. Object stays raw until the
// activity is classified into a concrete payload.
type Activity struct {
	Context   interface{}     `json:"@context,omitempty"`
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     string          `json:"actor"`
	Published string          `json:"published,omitempty"`
	To        StringList      `json:"to,omitempty"`
	Cc        StringList      `json:"cc,omitempty"`
	Object    json.RawMessage `json:"object,omitempty"`
}

// Valid reports whether the envelope carries the fields every activity must
// have before it can be routed.
func (a *Activity) Valid() bool {
	return a.ID != "" && a.Type != "" && a.Actor != ""
}

// Recipients merges the to and cc addressing fields.
func (a *Activity) Recipients() []string {
	out := make([]string, 0, len(a.To)+len(a.Cc))
	out = append(out, a.To...)
	return append(out, a.Cc...)
}

// FollowActivity is a Follow whose object is the URL of the followed actor.
type FollowActivity struct {
	Context   interface{} `json:"@context,omitempty"`
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Actor     string      `json:"actor"`
	Object    string      `json:"object"`
	Published string      `json:"published,omitempty"`
}

// AcceptActivity wraps the Follow it accepts.
type AcceptActivity struct {
	Context   interface{}    `json:"@context"`
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Actor     string         `json:"actor"`
	Object    FollowActivity `json:"object"`
	Published string         `json:"published"`
}

// Note is the object of a Create activity carrying a chat message.
type Note struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	AttributedTo string     `json:"attributedTo"`
	Content      string     `json:"content"`
	Published    string     `json:"published,omitempty"`
	To           StringList `json:"to,omitempty"`
	Cc           StringList `json:"cc,omitempty"`
}

// CreateNoteActivity is a Create whose object is a Note.
type CreateNoteActivity struct {
	Context   interface{} `json:"@context"`
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Actor     string      `json:"actor"`
	Object    Note        `json:"object"`
	To        StringList  `json:"to,omitempty"`
	Cc        StringList  `json:"cc,omitempty"`
	Published string      `json:"published"`
}

// AsFollow classifies the envelope as a Follow. A Follow must have a plain
// string object naming the followed actor.
func (a *Activity) AsFollow() (*FollowActivity, bool) {
	if a.Type != "Follow" {
		return nil, false
	}
	var object string
	if err := json.Unmarshal(a.Object, &object); err != nil || object == "" {
		return nil, false
	}
	return &FollowActivity{
		ID:        a.ID,
		Type:      a.Type,
		Actor:     a.Actor,
		Object:    object,
		Published: a.Published,
	}, true
}

// AsCreateNote classifies the envelope as a Create carrying a Note.
func (a *Activity) AsCreateNote() (*CreateNoteActivity, bool) {
	if a.Type != "Create" {
		return nil, false
	}
	var note Note
	if err := json.Unmarshal(a.Object, &note); err != nil || note.Type != "Note" {
		return nil, false
	}
	return &CreateNoteActivity{
		ID:        a.ID,
		Type:      a.Type,
		Actor:     a.Actor,
		Object:    note,
		To:        a.To,
		Cc:        a.Cc,
		Published: a.Published,
	}, true
}

// AsAccept classifies the envelope as an Accept of a Follow.
func (a *Activity) AsAccept() (*AcceptActivity, bool) {
	if a.Type != "Accept" {
		return nil, false
	}
	var follow FollowActivity
	if err := json.Unmarshal(a.Object, &follow); err != nil || follow.Type != "Follow" {
		return nil, false
	}
	return &AcceptActivity{
		ID:        a.ID,
		Type:      a.Type,
		Actor:     a.Actor,
		Object:    follow,
		Published: a.Published,
	}, true
}

// ActorResponse is the shape of a remote actor document.
type ActorResponse struct {
	Context           interface{} `json:"@context"`
	ID                string      `json:"id"`
	Type              string      `json:"type"`
	PreferredUsername string      `json:"preferredUsername"`
	Name              string      `json:"name"`
	Summary           string      `json:"summary"`
	Inbox             string      `json:"inbox"`
	Outbox            string      `json:"outbox"`
	Followers         string      `json:"followers"`
	Following         string      `json:"following"`
	PublicKey         struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
	Endpoints struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
}
