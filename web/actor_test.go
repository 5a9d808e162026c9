package web

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aurabloom/aurabloom/db"
	"github.com/aurabloom/aurabloom/domain"
	"github.com/google/uuid"
)

func mustCreateCommunity(t *testing.T, database *db.DB, name string, createdBy int64, isPublic bool) *domain.Community {
	t.Helper()

	community := &domain.Community{
		Id:        uuid.New(),
		Name:      name,
		CreatedBy: createdBy,
		IsPublic:  isPublic,
		CreatedAt: time.Now(),
	}
	if err := database.CreateCommunity(community); err != nil {
		t.Fatalf("Failed to create community %s: %v", name, err)
	}
	return community
}

func TestUserActorDocument(t *testing.T) {
	database, router := setupWebTest(t)
	mustCreateUser(t, database, "alice")

	req := httptest.NewRequest("GET", "http://"+testHost+"/ap/users/alice", nil)
	w := perform(router, req)

	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "application/activity+json") {
		t.Errorf("Unexpected content type %s", w.Header().Get("Content-Type"))
	}

	var doc ActorDoc
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to parse actor document: %v", err)
	}

	actorURL := "http://" + testHost + "/ap/users/alice"
	if doc.ID != actorURL || doc.Type != "Person" {
		t.Errorf("Unexpected id/type: %s %s", doc.ID, doc.Type)
	}
	if doc.PreferredUsername != "alice" {
		t.Errorf("Unexpected preferredUsername %s", doc.PreferredUsername)
	}
	if doc.Inbox != actorURL+"/inbox" || doc.Outbox != actorURL+"/outbox" {
		t.Errorf("Unexpected inbox/outbox: %s %s", doc.Inbox, doc.Outbox)
	}
	if doc.Endpoints.SharedInbox != "http://"+testHost+"/ap/shared/inbox" {
		t.Errorf("Unexpected shared inbox %s", doc.Endpoints.SharedInbox)
	}
	if doc.PublicKey.ID != actorURL+"#main-key" {
		t.Errorf("Unexpected key id %s", doc.PublicKey.ID)
	}
	if !strings.Contains(doc.PublicKey.PublicKeyPem, "BEGIN PUBLIC KEY") {
		t.Error("Document should publish the PEM public key")
	}
	if strings.Contains(w.Body.String(), "PRIVATE") {
		t.Error("Document must never leak private key material")
	}
}

func TestUserActorIsCreatedLazilyOnce(t *testing.T) {
	database, router := setupWebTest(t)
	user := mustCreateUser(t, database, "alice")

	// No actor exists until the document is first dereferenced.
	if err, _ := database.ReadActorForUser(user.Id); err == nil {
		t.Fatal("Expected no actor before the first dereference")
	}

	perform(router, httptest.NewRequest("GET", "http://"+testHost+"/ap/users/alice", nil))

	err, first := database.ReadActorForUser(user.Id)
	if err != nil {
		t.Fatalf("Expected an actor after dereference: %v", err)
	}

	perform(router, httptest.NewRequest("GET", "http://"+testHost+"/ap/users/alice", nil))

	err, second := database.ReadActorForUser(user.Id)
	if err != nil {
		t.Fatalf("Failed to re-read actor: %v", err)
	}
	if first.Id != second.Id {
		t.Error("Repeated dereferences must reuse the same actor")
	}
}

func TestUserActorNotFound(t *testing.T) {
	_, router := setupWebTest(t)

	req := httptest.NewRequest("GET", "http://"+testHost+"/ap/users/ghost", nil)
	if w := perform(router, req); w.Code != 404 {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestCommunityActorDocument(t *testing.T) {
	database, router := setupWebTest(t)
	user := mustCreateUser(t, database, "alice")
	community := mustCreateCommunity(t, database, "gardening", user.Id, true)

	req := httptest.NewRequest("GET", "http://"+testHost+"/ap/communities/"+community.Id.String(), nil)
	w := perform(router, req)

	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var doc ActorDoc
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to parse actor document: %v", err)
	}
	if doc.Type != "Group" {
		t.Errorf("Communities should publish as Group, got %s", doc.Type)
	}
	if doc.Name != "gardening" {
		t.Errorf("Unexpected name %s", doc.Name)
	}
}

func TestPrivateCommunityActorForbidden(t *testing.T) {
	database, router := setupWebTest(t)
	user := mustCreateUser(t, database, "alice")
	community := mustCreateCommunity(t, database, "secret", user.Id, false)

	req := httptest.NewRequest("GET", "http://"+testHost+"/ap/communities/"+community.Id.String(), nil)
	if w := perform(router, req); w.Code != 403 {
		t.Errorf("Expected 403 for a private community, got %d", w.Code)
	}
}

func TestCommunityActorBadId(t *testing.T) {
	_, router := setupWebTest(t)

	req := httptest.NewRequest("GET", "http://"+testHost+"/ap/communities/not-a-uuid", nil)
	if w := perform(router, req); w.Code != 404 {
		t.Errorf("Expected 404 for a malformed id, got %d", w.Code)
	}
}
