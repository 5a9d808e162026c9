package web

import (
	"encoding/json"
	"log"
	"time"

	"github.com/aurabloom/aurabloom/activitypub"
	"github.com/aurabloom/aurabloom/db"
	"github.com/aurabloom/aurabloom/domain"
	"github.com/aurabloom/aurabloom/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const outboxPageSize = 20

// OutboxCollection is the unpaged outbox summary.
type OutboxCollection struct {
	Context    string `json:"@context"`
	ID         string `json:"id"`
	Type       string `json:"type"`
	TotalItems int    `json:"totalItems"`
	First      string `json:"first"`
	Last       string `json:"last"`
}

// OutboxPage carries the newest activities, most recent first.
type OutboxPage struct {
	Context      string       `json:"@context"`
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	PartOf       string       `json:"partOf"`
	OrderedItems []OutboxItem `json:"orderedItems"`
}

// OutboxItem is one published activity with its object inlined.
type OutboxItem struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     string          `json:"actor"`
	Published string          `json:"published"`
	Object    json.RawMessage `json:"object"`
}

// HandleUserOutbox serves a local user's outbox.
func HandleUserOutbox(c *gin.Context, database *db.DB, conf *util.AppConfig) {
	err, user := database.ReadUserByUsername(c.Param("username"))
	if err != nil {
		c.JSON(404, gin.H{"error": "User not found"})
		return
	}

	err, actor := database.ReadActorForUser(user.Id)
	if err != nil {
		// No actor yet means nothing was ever published.
		renderEmptyOutbox(c, activitypub.UserActorURL(requestBaseURL(c, conf), user.Username))
		return
	}

	renderOutbox(c, database, actor)
}

// HandleCommunityOutbox serves a public community's outbox.
func HandleCommunityOutbox(c *gin.Context, database *db.DB, conf *util.AppConfig) {
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

	err, actor := database.ReadActorForCommunity(community.Id)
	if err != nil {
		renderEmptyOutbox(c, activitypub.CommunityActorURL(requestBaseURL(c, conf), community.Id))
		return
	}

	renderOutbox(c, database, actor)
}

func renderOutbox(c *gin.Context, database *db.DB, actor *domain.Actor) {
	c.Header("Content-Type", "application/activity+json; charset=utf-8")

	outboxURL := actor.Outbox
	if c.Query("page") != "true" {
		err, total := database.CountActivitiesByActor(actor.Id)
		if err != nil {
			log.Printf("Outbox: failed to count activities for %s: %v", actor.ActorURL, err)
			c.JSON(500, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(200, OutboxCollection{
			Context:    activitypub.ActivityStreamsContext,
			ID:         outboxURL,
			Type:       "OrderedCollection",
			TotalItems: total,
			First:      outboxURL + "?page=true",
			Last:       outboxURL + "?page=true&before=0",
		})
		return
	}

	err, activities := database.ReadActivitiesByActor(actor.Id, outboxPageSize)
	if err != nil {
		log.Printf("Outbox: failed to read activities for %s: %v", actor.ActorURL, err)
		c.JSON(500, gin.H{"error": "Internal server error"})
		return
	}

	items := make([]OutboxItem, 0, len(*activities))
	for _, activity := range *activities {
		object := json.RawMessage(activity.Object)
		if !json.Valid(object) {
			object = json.RawMessage("null")
		}
		items = append(items, OutboxItem{
			ID:        activity.ActivityURI,
			Type:      activity.ActivityType,
			Actor:     actor.ActorURL,
			Published: activity.Published.UTC().Format(time.RFC3339),
			Object:    object,
		})
	}

	c.JSON(200, OutboxPage{
		Context:      activitypub.ActivityStreamsContext,
		ID:           outboxURL + "?page=true",
		Type:         "OrderedCollectionPage",
		PartOf:       outboxURL,
		OrderedItems: items,
	})
}

func renderEmptyOutbox(c *gin.Context, actorURL string) {
	c.Header("Content-Type", "application/activity+json; charset=utf-8")
	outboxURL := actorURL + "/outbox"

	if c.Query("page") == "true" {
		c.JSON(200, OutboxPage{
			Context:      activitypub.ActivityStreamsContext,
			ID:           outboxURL + "?page=true",
			Type:         "OrderedCollectionPage",
			PartOf:       outboxURL,
			OrderedItems: []OutboxItem{},
		})
		return
	}

	c.JSON(200, OutboxCollection{
		Context:    activitypub.ActivityStreamsContext,
		ID:         outboxURL,
		Type:       "OrderedCollection",
		TotalItems: 0,
		First:      outboxURL + "?page=true",
		Last:       outboxURL + "?page=true&before=0",
	})
}
