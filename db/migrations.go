package db

import (
	"database/sql"
	"log"
)

const (
	sqlCreateUsersTable = `CREATE TABLE IF NOT EXISTS users(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username varchar(48) UNIQUE NOT NULL,
		display_name varchar(48) NOT NULL,
		about_me varchar(500),
		created_at timestamp default current_timestamp
	)`

	sqlCreateCommunitiesTable = `CREATE TABLE IF NOT EXISTS communities(
		id uuid NOT NULL PRIMARY KEY,
		name varchar(100) NOT NULL,
		description varchar(500),
		icon text,
		created_by INTEGER NOT NULL,
		is_public INTEGER NOT NULL DEFAULT 1,
		created_at timestamp default current_timestamp
	)`

	sqlCreateChannelsTable = `CREATE TABLE IF NOT EXISTS channels(
		id uuid NOT NULL PRIMARY KEY,
		community_id uuid NOT NULL,
		name varchar(100) NOT NULL,
		description varchar(500),
		created_by INTEGER NOT NULL,
		created_at timestamp default current_timestamp,
		UNIQUE(community_id, name)
	)`

	sqlCreateMessagesTable = `CREATE TABLE IF NOT EXISTS messages(
		id uuid NOT NULL PRIMARY KEY,
		channel_id uuid NOT NULL,
		user_id INTEGER NOT NULL,
		content text NOT NULL,
		created_at timestamp default current_timestamp
	)`

	sqlCreateMessagesIndices = `
		CREATE INDEX IF NOT EXISTS idx_messages_channel_id ON messages(channel_id);
		CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at DESC);
	`

	// Actors owned by this server reference exactly one of user_id or
	// community_id; cached remote actors reference neither. The partial
	// unique indexes close the lazy-creation race: concurrent inserts for
	// the same owner collapse into a constraint violation, which callers
	// treat as the idempotent success path.
	sqlCreateActorsTable = `CREATE TABLE IF NOT EXISTS federated_actors(
		id uuid NOT NULL PRIMARY KEY,
		user_id INTEGER,
		community_id uuid,
		actor_type varchar(20) NOT NULL,
		actor_url varchar(500) UNIQUE NOT NULL,
		inbox varchar(500) NOT NULL,
		outbox varchar(500),
		followers varchar(500),
		following varchar(500),
		public_key_pem text,
		private_key_pem text,
		shared_inbox varchar(500)
	)`

	sqlCreateActorsIndices = `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_actors_owner_user ON federated_actors(user_id, actor_type) WHERE user_id IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_actors_owner_community ON federated_actors(community_id, actor_type) WHERE community_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_actors_actor_url ON federated_actors(actor_url);
	`

	// Append-only log of sent and received activities, also the outbox
	// source. activity_uri uniqueness makes inbound replays no-ops.
	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS federated_activities(
		id uuid NOT NULL PRIMARY KEY,
		message_id uuid,
		activity_uri varchar(500) UNIQUE NOT NULL,
		activity_type varchar(50) NOT NULL,
		actor_id uuid NOT NULL,
		object text NOT NULL,
		published timestamp default current_timestamp,
		is_local INTEGER NOT NULL DEFAULT 0
	)`

	sqlCreateActivitiesIndices = `
		CREATE INDEX IF NOT EXISTS idx_activities_actor_id ON federated_activities(actor_id);
		CREATE INDEX IF NOT EXISTS idx_activities_published ON federated_activities(published DESC);
	`

	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS federated_follows(
		id uuid NOT NULL PRIMARY KEY,
		follower_id uuid NOT NULL,
		followed_id uuid NOT NULL,
		uri varchar(500),
		accepted INTEGER NOT NULL DEFAULT 0,
		created_at timestamp default current_timestamp,
		UNIQUE(follower_id, followed_id)
	)`

	sqlCreateFollowsIndices = `
		CREATE INDEX IF NOT EXISTS idx_follows_followed_id ON federated_follows(followed_id);
		CREATE INDEX IF NOT EXISTS idx_follows_uri ON federated_follows(uri);
	`

	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue(
		id uuid NOT NULL PRIMARY KEY,
		actor_id uuid NOT NULL,
		inbox_uri varchar(500) NOT NULL,
		activity_json text NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_retry_at timestamp default current_timestamp,
		created_at timestamp default current_timestamp
	)`

	sqlCreateDeliveryQueueIndices = `
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_next_retry ON delivery_queue(next_retry_at);
	`

	sqlSeedFederationUser = `INSERT OR IGNORE INTO users(username, display_name, about_me)
		VALUES('federation', 'Federation', 'system account for federated messages')`
)

// CreateDB creates all tables, indexes and seed rows.
func (db *DB) CreateDB() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		tables := []string{
			sqlCreateUsersTable,
			sqlCreateCommunitiesTable,
			sqlCreateChannelsTable,
			sqlCreateMessagesTable,
			sqlCreateActorsTable,
			sqlCreateActivitiesTable,
			sqlCreateFollowsTable,
			sqlCreateDeliveryQueueTable,
		}
		for _, stmt := range tables {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}

		indices := []string{
			sqlCreateMessagesIndices,
			sqlCreateActorsIndices,
			sqlCreateActivitiesIndices,
			sqlCreateFollowsIndices,
			sqlCreateDeliveryQueueIndices,
		}
		for _, stmt := range indices {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(sqlSeedFederationUser); err != nil {
			return err
		}

		log.Println("Database schema is up to date")
		return nil
	})
}
