package domain

import (
	"time"
)

// FederationUsername is the reserved system account that authors chat
// messages materialized from remote Create-Note activities.
const FederationUsername = "federation"

type User struct {
	Id          int64
	Username    string
	DisplayName string
	AboutMe     string
	CreatedAt   time.Time
}
