package db

import (
	"database/sql"
	"time"

	"github.com/aurabloom/aurabloom/domain"
	"github.com/google/uuid"
)

// Actor queries
const (
	sqlInsertActor = `INSERT INTO federated_actors(id, user_id, community_id, actor_type, actor_url, inbox, outbox, followers, following, public_key_pem, private_key_pem, shared_inbox) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlSelectActorColumns = `id, user_id, community_id, actor_type, actor_url, inbox, outbox, followers, following, public_key_pem, private_key_pem, shared_inbox`

	sqlSelectActorById           = `SELECT ` + sqlSelectActorColumns + ` FROM federated_actors WHERE id = ?`
	sqlSelectActorByURL          = `SELECT ` + sqlSelectActorColumns + ` FROM federated_actors WHERE actor_url = ?`
	sqlSelectActorForUser        = `SELECT ` + sqlSelectActorColumns + ` FROM federated_actors WHERE user_id = ? AND actor_type = 'user'`
	sqlSelectActorForCommunity   = `SELECT ` + sqlSelectActorColumns + ` FROM federated_actors WHERE community_id = ? AND actor_type = 'community'`
)

func (db *DB) CreateActor(a *domain.Actor) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var userId interface{}
		if a.UserId != nil {
			userId = *a.UserId
		}
		var communityId interface{}
		if a.CommunityId != nil {
			communityId = a.CommunityId.String()
		}
		_, err := tx.Exec(sqlInsertActor,
			a.Id.String(),
			userId,
			communityId,
			string(a.ActorType),
			a.ActorURL,
			a.Inbox,
			a.Outbox,
			a.Followers,
			a.Following,
			nullable(a.PublicKeyPem),
			nullable(a.PrivateKeyPem),
			nullable(a.SharedInbox),
		)
		if err != nil && isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	})
}

func (db *DB) ReadActorById(id uuid.UUID) (error, *domain.Actor) {
	return db.scanActor(db.db.QueryRow(sqlSelectActorById, id.String()))
}

func (db *DB) ReadActorByURL(actorURL string) (error, *domain.Actor) {
	return db.scanActor(db.db.QueryRow(sqlSelectActorByURL, actorURL))
}

func (db *DB) ReadActorForUser(userId int64) (error, *domain.Actor) {
	return db.scanActor(db.db.QueryRow(sqlSelectActorForUser, userId))
}

func (db *DB) ReadActorForCommunity(communityId uuid.UUID) (error, *domain.Actor) {
	return db.scanActor(db.db.QueryRow(sqlSelectActorForCommunity, communityId.String()))
}

func (db *DB) scanActor(row *sql.Row) (error, *domain.Actor) {
	var a domain.Actor
	var idStr string
	var userId sql.NullInt64
	var communityId, outbox, followers, following, publicKey, privateKey, sharedInbox sql.NullString
	var actorType string
	err := row.Scan(
		&idStr,
		&userId,
		&communityId,
		&actorType,
		&a.ActorURL,
		&a.Inbox,
		&outbox,
		&followers,
		&following,
		&publicKey,
		&privateKey,
		&sharedInbox,
	)
	if err != nil {
		return err, nil
	}
	a.Id, _ = uuid.Parse(idStr)
	if userId.Valid {
		v := userId.Int64
		a.UserId = &v
	}
	if communityId.Valid {
		v, perr := uuid.Parse(communityId.String)
		if perr == nil {
			a.CommunityId = &v
		}
	}
	a.ActorType = domain.ActorType(actorType)
	a.Outbox = outbox.String
	a.Followers = followers.String
	a.Following = following.String
	a.PublicKeyPem = publicKey.String
	a.PrivateKeyPem = privateKey.String
	a.SharedInbox = sharedInbox.String
	return nil, &a
}

// Activity queries
const (
	sqlInsertActivity        = `INSERT INTO federated_activities(id, message_id, activity_uri, activity_type, actor_id, object, published, is_local) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectActivityByURI   = `SELECT id, message_id, activity_uri, activity_type, actor_id, object, published, is_local FROM federated_activities WHERE activity_uri = ?`
	sqlSelectActivitiesByActor = `SELECT id, message_id, activity_uri, activity_type, actor_id, object, published, is_local FROM federated_activities WHERE actor_id = ? ORDER BY published DESC LIMIT ?`
	sqlCountActivitiesByActor  = `SELECT COUNT(*) FROM federated_activities WHERE actor_id = ?`
)

func (db *DB) CreateActivity(act *domain.Activity) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var messageId interface{}
		if act.MessageId != nil {
			messageId = act.MessageId.String()
		}
		_, err := tx.Exec(sqlInsertActivity,
			act.Id.String(),
			messageId,
			act.ActivityURI,
			act.ActivityType,
			act.ActorId.String(),
			act.Object,
			act.Published,
			act.IsLocal,
		)
		if err != nil && isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	})
}

func (db *DB) ReadActivityByURI(uri string) (error, *domain.Activity) {
	row := db.db.QueryRow(sqlSelectActivityByURI, uri)
	return scanActivity(row.Scan)
}

func (db *DB) ReadActivitiesByActor(actorId uuid.UUID, limit int) (error, *[]domain.Activity) {
	rows, err := db.db.Query(sqlSelectActivitiesByActor, actorId.String(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var activities []domain.Activity
	for rows.Next() {
		err, act := scanActivity(rows.Scan)
		if err != nil {
			return err, &activities
		}
		activities = append(activities, *act)
	}
	if err = rows.Err(); err != nil {
		return err, &activities
	}
	return nil, &activities
}

func (db *DB) CountActivitiesByActor(actorId uuid.UUID) (error, int) {
	var count int
	err := db.db.QueryRow(sqlCountActivitiesByActor, actorId.String()).Scan(&count)
	return err, count
}

func scanActivity(scan func(dest ...any) error) (error, *domain.Activity) {
	var act domain.Activity
	var idStr, actorIdStr string
	var messageId sql.NullString
	err := scan(
		&idStr,
		&messageId,
		&act.ActivityURI,
		&act.ActivityType,
		&actorIdStr,
		&act.Object,
		&act.Published,
		&act.IsLocal,
	)
	if err != nil {
		return err, nil
	}
	act.Id, _ = uuid.Parse(idStr)
	act.ActorId, _ = uuid.Parse(actorIdStr)
	if messageId.Valid {
		v, perr := uuid.Parse(messageId.String)
		if perr == nil {
			act.MessageId = &v
		}
	}
	return nil, &act
}

// Follow queries
const (
	sqlInsertFollow          = `INSERT INTO federated_follows(id, follower_id, followed_id, uri, accepted, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectFollowByPair    = `SELECT id, follower_id, followed_id, uri, accepted, created_at FROM federated_follows WHERE follower_id = ? AND followed_id = ?`
	sqlSelectFollowersOfActor = `SELECT id, follower_id, followed_id, uri, accepted, created_at FROM federated_follows WHERE followed_id = ? AND accepted = 1`
	sqlAcceptFollowByURI     = `UPDATE federated_follows SET accepted = 1 WHERE uri = ?`
)

func (db *DB) CreateFollow(follow *domain.Follow) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollow,
			follow.Id.String(),
			follow.FollowerId.String(),
			follow.FollowedId.String(),
			follow.URI,
			follow.Accepted,
			follow.CreatedAt,
		)
		if err != nil && isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	})
}

func (db *DB) ReadFollow(followerId uuid.UUID, followedId uuid.UUID) (error, *domain.Follow) {
	row := db.db.QueryRow(sqlSelectFollowByPair, followerId.String(), followedId.String())
	return scanFollow(row.Scan)
}

func (db *DB) ReadFollowersOfActor(actorId uuid.UUID) (error, *[]domain.Follow) {
	rows, err := db.db.Query(sqlSelectFollowersOfActor, actorId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var followers []domain.Follow
	for rows.Next() {
		err, follow := scanFollow(rows.Scan)
		if err != nil {
			return err, &followers
		}
		followers = append(followers, *follow)
	}
	if err = rows.Err(); err != nil {
		return err, &followers
	}
	return nil, &followers
}

func (db *DB) AcceptFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlAcceptFollowByURI, uri)
		return err
	})
}

func scanFollow(scan func(dest ...any) error) (error, *domain.Follow) {
	var follow domain.Follow
	var idStr, followerIdStr, followedIdStr string
	var uri sql.NullString
	err := scan(
		&idStr,
		&followerIdStr,
		&followedIdStr,
		&uri,
		&follow.Accepted,
		&follow.CreatedAt,
	)
	if err != nil {
		return err, nil
	}
	follow.Id, _ = uuid.Parse(idStr)
	follow.FollowerId, _ = uuid.Parse(followerIdStr)
	follow.FollowedId, _ = uuid.Parse(followedIdStr)
	follow.URI = uri.String
	return nil, &follow
}

// Delivery queue queries
const (
	sqlInsertDeliveryQueue     = `INSERT INTO delivery_queue(id, actor_id, inbox_uri, activity_json, attempts, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPendingDeliveries = `SELECT id, actor_id, inbox_uri, activity_json, attempts, next_retry_at, created_at FROM delivery_queue WHERE next_retry_at <= ? ORDER BY created_at ASC LIMIT ?`
	sqlUpdateDeliveryAttempt   = `UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteDelivery          = `DELETE FROM delivery_queue WHERE id = ?`
)

func (db *DB) EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertDeliveryQueue,
			item.Id.String(),
			item.ActorId.String(),
			item.InboxURI,
			item.ActivityJSON,
			item.Attempts,
			item.NextRetryAt,
			item.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem) {
	rows, err := db.db.Query(sqlSelectPendingDeliveries, time.Now(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		var item domain.DeliveryQueueItem
		var idStr, actorIdStr string
		if err := rows.Scan(&idStr, &actorIdStr, &item.InboxURI, &item.ActivityJSON, &item.Attempts, &item.NextRetryAt, &item.CreatedAt); err != nil {
			return err, &items
		}
		item.Id, _ = uuid.Parse(idStr)
		item.ActorId, _ = uuid.Parse(actorIdStr)
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return err, &items
	}
	return nil, &items
}

func (db *DB) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateDeliveryAttempt, attempts, nextRetry, id.String())
		return err
	})
}

func (db *DB) DeleteDelivery(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteDelivery, id.String())
		return err
	})
}

// nullable maps the empty string to NULL so optional text columns stay NULL
// instead of holding empty strings.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
