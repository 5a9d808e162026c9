package activitypub

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/aurabloom/aurabloom/db"
	"github.com/aurabloom/aurabloom/domain"
	"github.com/aurabloom/aurabloom/util"
	"github.com/google/uuid"
)

// AuthenticateRequest verifies an inbound activity: the sending actor named
// in the envelope is resolved (fetching and caching it if unknown) and the
// request's HTTP signature is checked against that actor's public key. The
// request's Host header must name localDomain, the host this server
// federates as. Returns the sender on success.
func AuthenticateRequest(database *db.DB, r *http.Request, activity *Activity, localDomain string) (*domain.Actor, error) {
	remote, err := GetOrFetchActor(database, activity.Actor)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve actor %s: %w", activity.Actor, err)
	}

	if remote.PublicKeyPem == "" {
		return nil, fmt.Errorf("actor %s has no public key", remote.ActorURL)
	}

	if !VerifyRequest(r, remote.PublicKeyPem, localDomain) {
		return nil, fmt.Errorf("signature verification failed for %s", remote.ActorURL)
	}

	return remote, nil
}

// Dispatch routes an authenticated activity to the handler for its type and
// the target actor's kind. Handler failures are logged, never surfaced: the
// sender has already been acknowledged.
func Dispatch(database *db.DB, activity *Activity, sender *domain.Actor, target *domain.Actor) {
	if follow, ok := activity.AsFollow(); ok {
		if err := handleFollow(database, follow, sender, target); err != nil {
			log.Printf("Inbox: failed to handle Follow %s: %v", follow.ID, err)
		}
		return
	}

	if create, ok := activity.AsCreateNote(); ok {
		var err error
		switch target.ActorType {
		case domain.ActorTypeCommunity:
			err = handleCommunityNote(database, create, sender, target)
		default:
			err = handleUserNote(database, create, sender, target)
		}
		if err != nil {
			log.Printf("Inbox: failed to handle Create %s: %v", create.ID, err)
		}
		return
	}

	if accept, ok := activity.AsAccept(); ok {
		if err := handleAccept(database, accept, sender); err != nil {
			log.Printf("Inbox: failed to handle Accept %s: %v", accept.ID, err)
		}
		return
	}

	log.Printf("Inbox: ignoring unsupported activity type %s from %s", activity.Type, sender.ActorURL)
}

// DispatchShared fans a shared-inbox activity out to every local recipient
// named in its addressing fields. Unknown recipients are skipped silently.
func DispatchShared(database *db.DB, activity *Activity, sender *domain.Actor) {
	for _, address := range activity.Recipients() {
		err, target := database.ReadActorByURL(address)
		if err != nil || !target.IsLocal() {
			continue
		}
		Dispatch(database, activity, sender, target)
	}
}

// handleFollow records the follow and answers with an Accept. The follow row
// is written first so a crash before delivery leaves the relationship intact;
// a duplicate follow is acknowledged without a second Accept.
func handleFollow(database *db.DB, follow *FollowActivity, sender *domain.Actor, target *domain.Actor) error {
	record := &domain.Follow{
		Id:         uuid.New(),
		FollowerId: sender.Id,
		FollowedId: target.Id,
		URI:        follow.ID,
		Accepted:   true,
		CreatedAt:  time.Now(),
	}
	if err := database.CreateFollow(record); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			log.Printf("Inbox: follow %s -> %s already recorded", sender.ActorURL, target.ActorURL)
			return nil
		}
		return fmt.Errorf("failed to record follow: %w", err)
	}

	log.Printf("Inbox: %s now follows %s", sender.ActorURL, target.ActorURL)

	if target.PrivateKeyPem == "" {
		return fmt.Errorf("actor %s has no private key, cannot send Accept", target.ActorURL)
	}

	accept := NewAcceptActivity(target.ActorURL, follow)
	objectJSON, err := json.Marshal(accept.Object)
	if err != nil {
		return fmt.Errorf("failed to encode Accept: %w", err)
	}

	activityRecord := &domain.Activity{
		Id:           uuid.New(),
		ActivityURI:  accept.ID,
		ActivityType: "Accept",
		ActorId:      target.Id,
		Object:       string(objectJSON),
		Published:    time.Now(),
		IsLocal:      true,
	}
	if err := database.CreateActivity(activityRecord); err != nil {
		log.Printf("Inbox: failed to record Accept %s: %v", accept.ID, err)
	}

	if !Deliver(accept, sender.Inbox, target.PrivateKeyPem, target.ActorURL+"#main-key") {
		log.Printf("Inbox: failed to deliver Accept to %s", sender.Inbox)
	}
	return nil
}

// handleUserNote stores a note addressed to a local user. The note is kept as
// an activity only; direct messages have no chat surface yet.
func handleUserNote(database *db.DB, create *CreateNoteActivity, sender *domain.Actor, target *domain.Actor) error {
	err, _ := database.ReadActivityByURI(create.ID)
	if err == nil {
		log.Printf("Inbox: activity %s already stored", create.ID)
		return nil
	}

	record := remoteActivityRecord(create, sender, nil)
	if err := database.CreateActivity(record); err != nil && !errors.Is(err, db.ErrDuplicate) {
		return fmt.Errorf("failed to store activity: %w", err)
	}

	log.Printf("Inbox: stored note %s for user actor %s", create.Object.ID, target.ActorURL)
	return nil
}

// handleCommunityNote materializes a remote note as a chat message in the
// community's federation channel, authored by the system federation user and
// prefixed with the origin actor's URL.
func handleCommunityNote(database *db.DB, create *CreateNoteActivity, sender *domain.Actor, target *domain.Actor) error {
	err, _ := database.ReadActivityByURI(create.ID)
	if err == nil {
		log.Printf("Inbox: activity %s already stored", create.ID)
		return nil
	}

	if target.CommunityId == nil {
		return fmt.Errorf("community actor %s has no community", target.ActorURL)
	}

	err, channel := database.ReadChannelByName(*target.CommunityId, domain.FederationChannelName)
	if err != nil {
		log.Printf("Inbox: community %s has no %s channel, dropping note %s",
			target.CommunityId, domain.FederationChannelName, create.Object.ID)
		return nil
	}

	err, fedUser := database.ReadUserByUsername(domain.FederationUsername)
	if err != nil {
		return fmt.Errorf("federation user missing: %w", err)
	}

	message := &domain.Message{
		Id:        uuid.New(),
		ChannelId: channel.Id,
		UserId:    fedUser.Id,
		Content:   fmt.Sprintf("[%s] %s", sender.ActorURL, util.NormalizeInput(create.Object.Content)),
		CreatedAt: time.Now(),
	}
	if err := database.CreateMessage(message); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}

	record := remoteActivityRecord(create, sender, &message.Id)
	if err := database.CreateActivity(record); err != nil && !errors.Is(err, db.ErrDuplicate) {
		return fmt.Errorf("failed to store activity: %w", err)
	}

	log.Printf("Inbox: note %s posted to community %s", create.Object.ID, target.CommunityId)
	return nil
}

// handleAccept marks an outbound follow as accepted.
func handleAccept(database *db.DB, accept *AcceptActivity, sender *domain.Actor) error {
	if err := database.AcceptFollowByURI(accept.Object.ID); err != nil {
		return fmt.Errorf("failed to accept follow %s: %w", accept.Object.ID, err)
	}
	log.Printf("Inbox: %s accepted follow %s", sender.ActorURL, accept.Object.ID)
	return nil
}

func remoteActivityRecord(create *CreateNoteActivity, sender *domain.Actor, messageId *uuid.UUID) *domain.Activity {
	object, err := json.Marshal(create.Object)
	if err != nil {
		object = []byte("{}")
	}

	published, err := time.Parse(time.RFC3339, create.Published)
	if err != nil {
		published = time.Now()
	}

	return &domain.Activity{
		Id:           uuid.New(),
		MessageId:    messageId,
		ActivityURI:  create.ID,
		ActivityType: create.Type,
		ActorId:      sender.Id,
		Object:       string(object),
		Published:    published,
		IsLocal:      false,
	}
}
