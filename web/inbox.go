package web

import (
	"encoding/json"
	"log"

	"github.com/aurabloom/aurabloom/activitypub"
	"github.com/aurabloom/aurabloom/db"
	"github.com/aurabloom/aurabloom/domain"
	"github.com/aurabloom/aurabloom/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HandleUserInbox receives activities addressed to a local user.
func HandleUserInbox(c *gin.Context, database *db.DB, conf *util.AppConfig) {
	err, user := database.ReadUserByUsername(c.Param("username"))
	if err != nil {
		c.JSON(404, gin.H{"error": "User not found"})
		return
	}

	err, target := database.ReadActorForUser(user.Id)
	if err != nil {
		c.JSON(404, gin.H{"error": "Actor not found"})
		return
	}

	receiveActivity(c, database, conf, target)
}

// HandleCommunityInbox receives activities addressed to a local community.
// Private communities refuse federation outright.
func HandleCommunityInbox(c *gin.Context, database *db.DB, conf *util.AppConfig) {
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

	err, target := database.ReadActorForCommunity(community.Id)
	if err != nil {
		c.JSON(404, gin.H{"error": "Actor not found"})
		return
	}

	receiveActivity(c, database, conf, target)
}

// HandleSharedInbox receives batched activities and fans them out to every
// local recipient in the addressing fields.
func HandleSharedInbox(c *gin.Context, database *db.DB, conf *util.AppConfig) {
	activity, sender, done := authenticate(c, database, conf)
	if done {
		return
	}

	// The sender is acknowledged once authentication passes. Routing and
	// handler failures are ours to log, not theirs to retry.
	c.Status(202)
	activitypub.DispatchShared(database, activity, sender)
}

// receiveActivity runs the shared inbound pipeline for a single target.
func receiveActivity(c *gin.Context, database *db.DB, conf *util.AppConfig, target *domain.Actor) {
	activity, sender, done := authenticate(c, database, conf)
	if done {
		return
	}

	c.Status(202)
	activitypub.Dispatch(database, activity, sender, target)
}

// authenticate parses the envelope and verifies the signature. Responds and
// reports done on any failure.
func authenticate(c *gin.Context, database *db.DB, conf *util.AppConfig) (*activitypub.Activity, *domain.Actor, bool) {
	body, err := c.GetRawData()
	if err != nil {
		log.Printf("Inbox: failed to read body: %v", err)
		c.JSON(400, gin.H{"error": "Invalid request body"})
		return nil, nil, true
	}

	var activity activitypub.Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		log.Printf("Inbox: failed to parse activity: %v", err)
		c.JSON(400, gin.H{"error": "Invalid activity"})
		return nil, nil, true
	}

	if !activity.Valid() {
		c.JSON(400, gin.H{"error": "Activity is missing id, type or actor"})
		return nil, nil, true
	}

	sender, err := activitypub.AuthenticateRequest(database, c.Request, &activity, conf.Conf.Domain)
	if err != nil {
		log.Printf("Inbox: rejected %s from %s: %v", activity.Type, activity.Actor, err)
		c.JSON(401, gin.H{"error": "Signature verification failed"})
		return nil, nil, true
	}

	return &activity, sender, false
}
