package web

import (
	"log"
	"time"

	"github.com/aurabloom/aurabloom/activitypub"
	"github.com/aurabloom/aurabloom/db"
	"github.com/aurabloom/aurabloom/domain"
	"github.com/aurabloom/aurabloom/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// actorContext is the JSON-LD context served on every actor document.
var actorContext = []string{
	activitypub.ActivityStreamsContext,
	"https://w3id.org/security/v1",
}

// PublicKeyDoc publishes an actor's signing key. Only the public half ever
// leaves the actors table.
type PublicKeyDoc struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// ActorDoc is the dereferenceable actor document for local users and
// communities.
type ActorDoc struct {
	Context           interface{}  `json:"@context"`
	ID                string       `json:"id"`
	Type              string       `json:"type"`
	PreferredUsername string       `json:"preferredUsername"`
	Name              string       `json:"name,omitempty"`
	Summary           string       `json:"summary,omitempty"`
	Published         string       `json:"published,omitempty"`
	Inbox             string       `json:"inbox"`
	Outbox            string       `json:"outbox"`
	Followers         string       `json:"followers"`
	Following         string       `json:"following"`
	PublicKey         PublicKeyDoc `json:"publicKey"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
}

func actorDoc(actor *domain.Actor, actorType string, preferredUsername string) ActorDoc {
	doc := ActorDoc{
		Context:           actorContext,
		ID:                actor.ActorURL,
		Type:              actorType,
		PreferredUsername: preferredUsername,
		Inbox:             actor.Inbox,
		Outbox:            actor.Outbox,
		Followers:         actor.Followers,
		Following:         actor.Following,
		PublicKey: PublicKeyDoc{
			ID:           actor.ActorURL + "#main-key",
			Owner:        actor.ActorURL,
			PublicKeyPem: actor.PublicKeyPem,
		},
	}
	doc.Endpoints.SharedInbox = actor.SharedInbox
	return doc
}

// HandleUserActor serves a local user's Person document, creating the
// backing actor on first dereference.
func HandleUserActor(c *gin.Context, database *db.DB, conf *util.AppConfig) {
	err, user := database.ReadUserByUsername(c.Param("username"))
	if err != nil {
		c.JSON(404, gin.H{"error": "User not found"})
		return
	}

	actor, err := activitypub.EnsureUserActor(database, user.Id, requestBaseURL(c, conf))
	if err != nil {
		log.Printf("Actor: failed to ensure actor for %s: %v", user.Username, err)
		c.JSON(500, gin.H{"error": "Internal server error"})
		return
	}

	doc := actorDoc(actor, "Person", user.Username)
	doc.Name = user.DisplayName
	doc.Summary = user.AboutMe
	doc.Published = user.CreatedAt.UTC().Format(time.RFC3339)

	c.Header("Content-Type", "application/activity+json; charset=utf-8")
	c.JSON(200, doc)
}

// HandleCommunityActor serves a public community's Group document. Private
// communities do not federate and answer 403.
func HandleCommunityActor(c *gin.Context, database *db.DB, conf *util.AppConfig) {
	communityId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(404, gin.H{"error": "Community not found"})
		return
	}

	err, community := database.ReadCommunityById(communityId)
	if err != nil {
		c.JSON(404, gin.H{"error": "Community not found"})
		return
	}

	if !community.IsPublic {
		c.JSON(403, gin.H{"error": "Community is not public"})
		return
	}

	actor, err := activitypub.EnsureCommunityActor(database, community.Id, requestBaseURL(c, conf))
	if err != nil {
		log.Printf("Actor: failed to ensure actor for community %s: %v", community.Id, err)
		c.JSON(500, gin.H{"error": "Internal server error"})
		return
	}

	doc := actorDoc(actor, "Group", community.Name)
	doc.Name = community.Name
	doc.Summary = community.Description
	doc.Published = community.CreatedAt.UTC().Format(time.RFC3339)

	c.Header("Content-Type", "application/activity+json; charset=utf-8")
	c.JSON(200, doc)
}
