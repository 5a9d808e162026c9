package db

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/aurabloom/aurabloom/domain"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

// ErrDuplicate signals a unique-constraint violation on insert. Callers that
// create actors or follows treat it as the idempotent success path and
// re-read the existing row.
var ErrDuplicate = errors.New("duplicate row")

const (
	//Users
	sqlInsertUser           = `INSERT INTO users(username, display_name, about_me) VALUES (?, ?, ?)`
	sqlSelectUserById       = `SELECT id, username, display_name, about_me, created_at FROM users WHERE id = ?`
	sqlSelectUserByUsername = `SELECT id, username, display_name, about_me, created_at FROM users WHERE username = ?`

	//Communities
	sqlInsertCommunity     = `INSERT INTO communities(id, name, description, icon, created_by, is_public, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectCommunityById = `SELECT id, name, description, icon, created_by, is_public, created_at FROM communities WHERE id = ?`

	//Channels
	sqlInsertChannel       = `INSERT INTO channels(id, community_id, name, description, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectChannelByName = `SELECT id, community_id, name, description, created_by, created_at FROM channels WHERE community_id = ? AND name = ?`

	//Messages
	sqlInsertMessage     = `INSERT INTO messages(id, channel_id, user_id, content, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlSelectMessageById = `SELECT id, channel_id, user_id, content, created_at FROM messages WHERE id = ?`
)

func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Configure connection pool for concurrent access
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	var journalMode string
	if err := sqlDB.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		log.Printf("Warning: Failed to enable WAL mode: %v", err)
	} else {
		log.Printf("Database journal mode: %s", journalMode)
	}

	// Tuned for the concurrent federation workload
	sqlDB.Exec("PRAGMA synchronous = NORMAL")
	sqlDB.Exec("PRAGMA cache_size = -64000")
	sqlDB.Exec("PRAGMA temp_store = MEMORY")
	sqlDB.Exec("PRAGMA busy_timeout = 5000")
	sqlDB.Exec("PRAGMA foreign_keys = ON")

	db := &DB{db: sqlDB}
	if err := db.CreateDB(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr := &sqlite.Error{}
			if errors.As(err, &serr) && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}

// isUniqueViolation reports whether err is a sqlite unique/primary-key
// constraint failure.
func isUniqueViolation(err error) bool {
	serr := &sqlite.Error{}
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT
}

func (db *DB) CreateUser(username string, displayName string, aboutMe string) (error, *domain.User) {
	res, err := db.db.Exec(sqlInsertUser, username, displayName, aboutMe)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate, nil
		}
		return err, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err, nil
	}
	return db.ReadUserById(id)
}

func (db *DB) ReadUserById(id int64) (error, *domain.User) {
	row := db.db.QueryRow(sqlSelectUserById, id)
	var user domain.User
	var aboutMe sql.NullString
	err := row.Scan(&user.Id, &user.Username, &user.DisplayName, &aboutMe, &user.CreatedAt)
	if err != nil {
		return err, nil
	}
	user.AboutMe = aboutMe.String
	return nil, &user
}

func (db *DB) ReadUserByUsername(username string) (error, *domain.User) {
	row := db.db.QueryRow(sqlSelectUserByUsername, username)
	var user domain.User
	var aboutMe sql.NullString
	err := row.Scan(&user.Id, &user.Username, &user.DisplayName, &aboutMe, &user.CreatedAt)
	if err != nil {
		return err, nil
	}
	user.AboutMe = aboutMe.String
	return nil, &user
}

func (db *DB) CreateCommunity(c *domain.Community) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertCommunity,
			c.Id.String(),
			c.Name,
			c.Description,
			c.Icon,
			c.CreatedBy,
			c.IsPublic,
			c.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadCommunityById(id uuid.UUID) (error, *domain.Community) {
	row := db.db.QueryRow(sqlSelectCommunityById, id.String())
	var c domain.Community
	var idStr string
	var description, icon sql.NullString
	err := row.Scan(&idStr, &c.Name, &description, &icon, &c.CreatedBy, &c.IsPublic, &c.CreatedAt)
	if err != nil {
		return err, nil
	}
	c.Id, _ = uuid.Parse(idStr)
	c.Description = description.String
	c.Icon = icon.String
	return nil, &c
}

func (db *DB) CreateChannel(ch *domain.Channel) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertChannel,
			ch.Id.String(),
			ch.CommunityId.String(),
			ch.Name,
			ch.Description,
			ch.CreatedBy,
			ch.CreatedAt,
		)
		if err != nil && isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	})
}

func (db *DB) ReadChannelByName(communityId uuid.UUID, name string) (error, *domain.Channel) {
	row := db.db.QueryRow(sqlSelectChannelByName, communityId.String(), name)
	var ch domain.Channel
	var idStr, communityIdStr string
	var description sql.NullString
	err := row.Scan(&idStr, &communityIdStr, &ch.Name, &description, &ch.CreatedBy, &ch.CreatedAt)
	if err != nil {
		return err, nil
	}
	ch.Id, _ = uuid.Parse(idStr)
	ch.CommunityId, _ = uuid.Parse(communityIdStr)
	ch.Description = description.String
	return nil, &ch
}

func (db *DB) CreateMessage(m *domain.Message) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertMessage,
			m.Id.String(),
			m.ChannelId.String(),
			m.UserId,
			m.Content,
			m.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadMessageById(id uuid.UUID) (error, *domain.Message) {
	row := db.db.QueryRow(sqlSelectMessageById, id.String())
	var m domain.Message
	var idStr, channelIdStr string
	err := row.Scan(&idStr, &channelIdStr, &m.UserId, &m.Content, &m.CreatedAt)
	if err != nil {
		return err, nil
	}
	m.Id, _ = uuid.Parse(idStr)
	m.ChannelId, _ = uuid.Parse(channelIdStr)
	return nil, &m
}
