package domain

import (
	"time"

	"github.com/google/uuid"
)

type ActorType string

const (
	ActorTypeUser      ActorType = "user"
	ActorTypeCommunity ActorType = "community"
)

// Actor is a federated identity, either owned by this server (exactly one of
// UserId/CommunityId set, private key present) or a cached remote profile
// (both owner references nil, no private key).
type Actor struct {
	Id            uuid.UUID
	UserId        *int64
	CommunityId   *uuid.UUID
	ActorType     ActorType
	ActorURL      string
	Inbox         string
	Outbox        string
	Followers     string
	Following     string
	PublicKeyPem  string
	PrivateKeyPem string
	SharedInbox   string
}

// IsLocal reports whether this server owns the actor and can sign for it.
func (a *Actor) IsLocal() bool {
	return a.UserId != nil || a.CommunityId != nil
}

// Activity is the append-only record of a sent or received activity. Object
// holds the activity's raw JSON and is opaque to storage.
type Activity struct {
	Id           uuid.UUID
	MessageId    *uuid.UUID
	ActivityURI  string
	ActivityType string
	ActorId      uuid.UUID
	Object       string
	Published    time.Time
	IsLocal      bool
}

// Follow relates a follower actor to a followed actor. At most one row per
// (FollowerId, FollowedId) pair exists, enforced by the storage layer.
type Follow struct {
	Id         uuid.UUID
	FollowerId uuid.UUID
	FollowedId uuid.UUID
	URI        string
	Accepted   bool
	CreatedAt  time.Time
}

// DeliveryQueueItem is a pending outbound delivery with retry bookkeeping.
// ActorId references the local sending actor; its private key is looked up
// at delivery time and never copied into the queue.
type DeliveryQueueItem struct {
	Id           uuid.UUID
	ActorId      uuid.UUID
	InboxURI     string
	ActivityJSON string
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}
