package domain

import (
	"time"

	"github.com/google/uuid"
)

// FederationChannelName is the conventionally-named channel inside a
// community that receives remote notes as visible chat messages.
const FederationChannelName = "federation"

type Community struct {
	Id          uuid.UUID
	Name        string
	Description string
	Icon        string
	CreatedBy   int64
	IsPublic    bool
	CreatedAt   time.Time
}

type Channel struct {
	Id          uuid.UUID
	CommunityId uuid.UUID
	Name        string
	Description string
	CreatedBy   int64
	CreatedAt   time.Time
}

type Message struct {
	Id        uuid.UUID
	ChannelId uuid.UUID
	UserId    int64
	Content   string
	CreatedAt time.Time
}
