package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aurabloom/aurabloom/domain"
	"github.com/google/uuid"
)

// setupTestDB opens a throwaway database with all migrations applied.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database
}

func mustCreateUser(t *testing.T, database *DB, username string) *domain.User {
	t.Helper()

	err, user := database.CreateUser(username, username, "")
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}

func mustCreateCommunity(t *testing.T, database *DB, name string, createdBy int64, isPublic bool) *domain.Community {
	t.Helper()

	community := &domain.Community{
		Id:          uuid.New(),
		Name:        name,
		Description: "test community",
		CreatedBy:   createdBy,
		IsPublic:    isPublic,
		CreatedAt:   time.Now(),
	}
	if err := database.CreateCommunity(community); err != nil {
		t.Fatalf("Failed to create community %s: %v", name, err)
	}
	return community
}

func TestCreateAndReadUser(t *testing.T) {
	database := setupTestDB(t)

	created := mustCreateUser(t, database, "alice")
	if created.Id == 0 {
		t.Error("Created user should have a non-zero id")
	}

	err, byId := database.ReadUserById(created.Id)
	if err != nil {
		t.Fatalf("Failed to read user by id: %v", err)
	}
	if byId.Username != "alice" {
		t.Errorf("Expected username alice, got %s", byId.Username)
	}

	err, byName := database.ReadUserByUsername("alice")
	if err != nil {
		t.Fatalf("Failed to read user by username: %v", err)
	}
	if byName.Id != created.Id {
		t.Errorf("Expected id %d, got %d", created.Id, byName.Id)
	}
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	database := setupTestDB(t)

	mustCreateUser(t, database, "alice")

	err, _ := database.CreateUser("alice", "Alice Again", "")
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
}

func TestFederationUserIsSeeded(t *testing.T) {
	database := setupTestDB(t)

	err, user := database.ReadUserByUsername(domain.FederationUsername)
	if err != nil {
		t.Fatalf("Federation user should exist after migrations: %v", err)
	}
	if user.Username != domain.FederationUsername {
		t.Errorf("Expected username %s, got %s", domain.FederationUsername, user.Username)
	}
}

func TestCreateCommunityAndChannel(t *testing.T) {
	database := setupTestDB(t)

	user := mustCreateUser(t, database, "alice")
	community := mustCreateCommunity(t, database, "gardening", user.Id, true)

	err, read := database.ReadCommunityById(community.Id)
	if err != nil {
		t.Fatalf("Failed to read community: %v", err)
	}
	if !read.IsPublic {
		t.Error("Community should be public")
	}

	channel := &domain.Channel{
		Id:          uuid.New(),
		CommunityId: community.Id,
		Name:        domain.FederationChannelName,
		CreatedBy:   user.Id,
		CreatedAt:   time.Now(),
	}
	if err := database.CreateChannel(channel); err != nil {
		t.Fatalf("Failed to create channel: %v", err)
	}

	err, found := database.ReadChannelByName(community.Id, domain.FederationChannelName)
	if err != nil {
		t.Fatalf("Failed to read channel by name: %v", err)
	}
	if found.Id != channel.Id {
		t.Errorf("Expected channel %s, got %s", channel.Id, found.Id)
	}
}

func TestCreateChannelDuplicateName(t *testing.T) {
	database := setupTestDB(t)

	user := mustCreateUser(t, database, "alice")
	community := mustCreateCommunity(t, database, "gardening", user.Id, true)

	first := &domain.Channel{
		Id:          uuid.New(),
		CommunityId: community.Id,
		Name:        "general",
		CreatedBy:   user.Id,
		CreatedAt:   time.Now(),
	}
	if err := database.CreateChannel(first); err != nil {
		t.Fatalf("Failed to create channel: %v", err)
	}

	second := &domain.Channel{
		Id:          uuid.New(),
		CommunityId: community.Id,
		Name:        "general",
		CreatedBy:   user.Id,
		CreatedAt:   time.Now(),
	}
	if err := database.CreateChannel(second); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
}

func TestCreateAndReadMessage(t *testing.T) {
	database := setupTestDB(t)

	user := mustCreateUser(t, database, "alice")
	community := mustCreateCommunity(t, database, "gardening", user.Id, true)

	channel := &domain.Channel{
		Id:          uuid.New(),
		CommunityId: community.Id,
		Name:        "general",
		CreatedBy:   user.Id,
		CreatedAt:   time.Now(),
	}
	if err := database.CreateChannel(channel); err != nil {
		t.Fatalf("Failed to create channel: %v", err)
	}

	message := &domain.Message{
		Id:        uuid.New(),
		ChannelId: channel.Id,
		UserId:    user.Id,
		Content:   "hello world",
		CreatedAt: time.Now(),
	}
	if err := database.CreateMessage(message); err != nil {
		t.Fatalf("Failed to create message: %v", err)
	}

	err, read := database.ReadMessageById(message.Id)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	if read.Content != "hello world" {
		t.Errorf("Expected content to round-trip, got %q", read.Content)
	}
}
