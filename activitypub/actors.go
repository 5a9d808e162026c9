package activitypub

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/aurabloom/aurabloom/db"
	"github.com/aurabloom/aurabloom/domain"
	"github.com/google/uuid"
)

const fetchTimeout = 10 * time.Second

// UserActorURL is the canonical actor URL for a local user.
func UserActorURL(baseURL string, username string) string {
	return fmt.Sprintf("%s/ap/users/%s", baseURL, username)
}

// CommunityActorURL is the canonical actor URL for a local community.
func CommunityActorURL(baseURL string, communityId uuid.UUID) string {
	return fmt.Sprintf("%s/ap/communities/%s", baseURL, communityId.String())
}

// SharedInboxURL is the instance-wide inbox for batched deliveries.
func SharedInboxURL(baseURL string) string {
	return fmt.Sprintf("%s/ap/shared/inbox", baseURL)
}

// EnsureUserActor returns the federation actor backing a local user, creating
// it with a fresh key pair on first use. Concurrent callers racing on the
// first creation all converge on the same row.
func EnsureUserActor(database *db.DB, userId int64, baseURL string) (*domain.Actor, error) {
	err, existing := database.ReadActorForUser(userId)
	if err == nil {
		return existing, nil
	}

	err, user := database.ReadUserById(userId)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userId, err)
	}

	actorURL := UserActorURL(baseURL, user.Username)
	actor, err := newLocalActor(actorURL, baseURL, domain.ActorTypeUser)
	if err != nil {
		return nil, err
	}
	actor.UserId = &user.Id

	return persistLocalActor(database, actor, func() (error, *domain.Actor) {
		return database.ReadActorForUser(userId)
	})
}

// EnsureCommunityActor returns the federation actor backing a local
// community, creating it on first use.
func EnsureCommunityActor(database *db.DB, communityId uuid.UUID, baseURL string) (*domain.Actor, error) {
	err, existing := database.ReadActorForCommunity(communityId)
	if err == nil {
		return existing, nil
	}

	err, community := database.ReadCommunityById(communityId)
	if err != nil {
		return nil, fmt.Errorf("failed to load community %s: %w", communityId, err)
	}

	actorURL := CommunityActorURL(baseURL, community.Id)
	actor, err := newLocalActor(actorURL, baseURL, domain.ActorTypeCommunity)
	if err != nil {
		return nil, err
	}
	actor.CommunityId = &community.Id

	return persistLocalActor(database, actor, func() (error, *domain.Actor) {
		return database.ReadActorForCommunity(communityId)
	})
}

func newLocalActor(actorURL string, baseURL string, actorType domain.ActorType) (*domain.Actor, error) {
	pubPem, privPem, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	return &domain.Actor{
		Id:            uuid.New(),
		ActorType:     actorType,
		ActorURL:      actorURL,
		Inbox:         actorURL + "/inbox",
		Outbox:        actorURL + "/outbox",
		Followers:     actorURL + "/followers",
		Following:     actorURL + "/following",
		SharedInbox:   SharedInboxURL(baseURL),
		PublicKeyPem:  pubPem,
		PrivateKeyPem: privPem,
	}, nil
}

// persistLocalActor inserts the actor, treating a unique-constraint hit as a
// lost race and re-reading the winner's row.
func persistLocalActor(database *db.DB, actor *domain.Actor, reRead func() (error, *domain.Actor)) (*domain.Actor, error) {
	if err := database.CreateActor(actor); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			err, winner := reRead()
			if err != nil {
				return nil, fmt.Errorf("failed to re-read actor after duplicate: %w", err)
			}
			return winner, nil
		}
		return nil, fmt.Errorf("failed to create actor: %w", err)
	}
	return actor, nil
}

// GetOrFetchActor resolves an actor URL to a cached row, fetching and caching
// the remote document on a miss. A cached actor is never overwritten.
func GetOrFetchActor(database *db.DB, actorURL string) (*domain.Actor, error) {
	err, cached := database.ReadActorByURL(actorURL)
	if err == nil {
		return cached, nil
	}

	remote, err := FetchRemoteActor(actorURL)
	if err != nil {
		return nil, err
	}

	actorType := domain.ActorTypeUser
	if remote.Type == "Group" {
		actorType = domain.ActorTypeCommunity
	}

	actor := &domain.Actor{
		Id:           uuid.New(),
		ActorType:    actorType,
		ActorURL:     remote.ID,
		Inbox:        remote.Inbox,
		Outbox:       remote.Outbox,
		Followers:    remote.Followers,
		Following:    remote.Following,
		SharedInbox:  remote.Endpoints.SharedInbox,
		PublicKeyPem: remote.PublicKey.PublicKeyPem,
	}

	if err := database.CreateActor(actor); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			err, winner := database.ReadActorByURL(actorURL)
			if err != nil {
				return nil, fmt.Errorf("failed to re-read actor after duplicate: %w", err)
			}
			return winner, nil
		}
		return nil, fmt.Errorf("failed to cache actor %s: %w", actorURL, err)
	}

	log.Printf("Actors: cached remote actor %s (%s)", actor.ActorURL, actor.ActorType)
	return actor, nil
}

// FetchRemoteActor dereferences an actor URL over HTTP.
func FetchRemoteActor(actorURL string) (*ActorResponse, error) {
	req, err := http.NewRequest("GET", actorURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build actor request: %w", err)
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "aurabloom/1.0 ActivityPub")

	client := &http.Client{Timeout: fetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch actor %s: %w", actorURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch actor %s: status %d", actorURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read actor %s: %w", actorURL, err)
	}

	var remote ActorResponse
	if err := json.Unmarshal(body, &remote); err != nil {
		return nil, fmt.Errorf("failed to parse actor %s: %w", actorURL, err)
	}

	if remote.ID == "" || remote.Inbox == "" {
		return nil, fmt.Errorf("actor %s is missing id or inbox", actorURL)
	}

	return &remote, nil
}
