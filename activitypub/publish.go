package activitypub

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aurabloom/aurabloom/db"
	"github.com/aurabloom/aurabloom/domain"
	"github.com/google/uuid"
)

// PublishMessage federates a chat message posted to a public community: it
// records a Create activity for the author's actor and enqueues delivery to
// every accepted follower of the community, preferring shared inboxes.
func PublishMessage(database *db.DB, userId int64, community *domain.Community, message *domain.Message, baseURL string) error {
	if !community.IsPublic {
		return nil
	}

	actor, err := EnsureUserActor(database, userId, baseURL)
	if err != nil {
		return fmt.Errorf("failed to ensure actor: %w", err)
	}

	communityActor, err := EnsureCommunityActor(database, community.Id, baseURL)
	if err != nil {
		return fmt.Errorf("failed to ensure community actor: %w", err)
	}

	create := NewCreateNoteActivity(actor.ActorURL, message.Id, message.Content, communityActor.ActorURL)
	createJSON, err := json.Marshal(create)
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}

	objectJSON, err := json.Marshal(create.Object)
	if err != nil {
		return fmt.Errorf("failed to encode note: %w", err)
	}

	record := &domain.Activity{
		Id:           uuid.New(),
		MessageId:    &message.Id,
		ActivityURI:  create.ID,
		ActivityType: "Create",
		ActorId:      actor.Id,
		Object:       string(objectJSON),
		Published:    time.Now(),
		IsLocal:      true,
	}
	if err := database.CreateActivity(record); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			log.Printf("Publish: activity %s already recorded", create.ID)
			return nil
		}
		return fmt.Errorf("failed to record activity: %w", err)
	}

	return fanOut(database, actor, communityActor, string(createJSON))
}

// fanOut enqueues one delivery per distinct follower inbox.
func fanOut(database *db.DB, sender *domain.Actor, communityActor *domain.Actor, activityJSON string) error {
	err, follows := database.ReadFollowersOfActor(communityActor.Id)
	if err != nil {
		return fmt.Errorf("failed to read followers: %w", err)
	}

	inboxes := map[string]bool{}
	for _, follow := range *follows {
		err, follower := database.ReadActorById(follow.FollowerId)
		if err != nil || follower.IsLocal() {
			continue
		}
		inbox := follower.SharedInbox
		if inbox == "" {
			inbox = follower.Inbox
		}
		if inbox == "" || inboxes[inbox] {
			continue
		}
		inboxes[inbox] = true

		item := &domain.DeliveryQueueItem{
			Id:           uuid.New(),
			ActorId:      sender.Id,
			InboxURI:     inbox,
			ActivityJSON: activityJSON,
			Attempts:     0,
			NextRetryAt:  time.Now(),
			CreatedAt:    time.Now(),
		}
		if err := database.EnqueueDelivery(item); err != nil {
			log.Printf("Publish: failed to enqueue delivery to %s: %v", inbox, err)
		}
	}

	log.Printf("Publish: queued %d deliveries for %s", len(inboxes), communityActor.ActorURL)
	return nil
}

// SendFollow records a pending follow of a remote actor and delivers the
// Follow activity to its inbox. The follow stays pending until the remote
// side answers with an Accept.
func SendFollow(database *db.DB, userId int64, remoteActorURL string, baseURL string) error {
	actor, err := EnsureUserActor(database, userId, baseURL)
	if err != nil {
		return fmt.Errorf("failed to ensure actor: %w", err)
	}

	remote, err := GetOrFetchActor(database, remoteActorURL)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", remoteActorURL, err)
	}

	follow := NewFollowActivity(actor.ActorURL, remote.ActorURL)
	record := &domain.Follow{
		Id:         uuid.New(),
		FollowerId: actor.Id,
		FollowedId: remote.Id,
		URI:        follow.ID,
		Accepted:   false,
		CreatedAt:  time.Now(),
	}
	if err := database.CreateFollow(record); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			log.Printf("Publish: already following %s", remote.ActorURL)
			return nil
		}
		return fmt.Errorf("failed to record follow: %w", err)
	}

	objectJSON, err := json.Marshal(follow.Object)
	if err != nil {
		return fmt.Errorf("failed to encode follow: %w", err)
	}
	activityRecord := &domain.Activity{
		Id:           uuid.New(),
		ActivityURI:  follow.ID,
		ActivityType: "Follow",
		ActorId:      actor.Id,
		Object:       string(objectJSON),
		Published:    time.Now(),
		IsLocal:      true,
	}
	if err := database.CreateActivity(activityRecord); err != nil && !errors.Is(err, db.ErrDuplicate) {
		log.Printf("Publish: failed to record follow activity %s: %v", follow.ID, err)
	}

	if !Deliver(follow, remote.Inbox, actor.PrivateKeyPem, actor.ActorURL+"#main-key") {
		log.Printf("Publish: failed to deliver Follow to %s", remote.Inbox)
	}
	return nil
}
