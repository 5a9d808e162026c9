package activitypub

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// newActivityURI mints a fresh activity id under the acting actor's URL.
func newActivityURI(actorURL string) string {
	return fmt.Sprintf("%s/activities/%s", actorURL, uuid.New().String())
}

// NewFollowActivity builds a Follow from a local actor to a remote one.
func NewFollowActivity(actorURL string, targetActorURL string) *FollowActivity {
	return &FollowActivity{
		Context:   ActivityStreamsContext,
		ID:        newActivityURI(actorURL),
		Type:      "Follow",
		Actor:     actorURL,
		Object:    targetActorURL,
		Published: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewAcceptActivity builds an Accept embedding the Follow it answers.
func NewAcceptActivity(actorURL string, follow *FollowActivity) *AcceptActivity {
	return &AcceptActivity{
		Context:   ActivityStreamsContext,
		ID:        newActivityURI(actorURL),
		Type:      "Accept",
		Actor:     actorURL,
		Object:    *follow,
		Published: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewCreateNoteActivity wraps a chat message in a Create with a Note object.
// The note id is derived from the message id so replays are detectable.
func NewCreateNoteActivity(actorURL string, messageId uuid.UUID, content string, audienceURL string) *CreateNoteActivity {
	published := time.Now().UTC().Format(time.RFC3339)
	audience := StringList{audienceURL}
	return &CreateNoteActivity{
		Context:   ActivityStreamsContext,
		ID:        newActivityURI(actorURL),
		Type:      "Create",
		Actor:     actorURL,
		To:        audience,
		Published: published,
		Object: Note{
			ID:           fmt.Sprintf("%s/notes/%s", actorURL, messageId.String()),
			Type:         "Note",
			AttributedTo: actorURL,
			Content:      content,
			Published:    published,
			To:           audience,
		},
	}
}
