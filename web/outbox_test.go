package web

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aurabloom/aurabloom/activitypub"
	"github.com/aurabloom/aurabloom/db"
	"github.com/aurabloom/aurabloom/domain"
	"github.com/google/uuid"
)

func seedActivities(t *testing.T, database *db.DB, actor *domain.Actor, n int) {
	t.Helper()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		activity := &domain.Activity{
			Id:           uuid.New(),
			ActivityURI:  fmt.Sprintf("%s/activities/%d", actor.ActorURL, i),
			ActivityType: "Create",
			ActorId:      actor.Id,
			Object:       fmt.Sprintf(`{"type":"Note","content":"post %d"}`, i),
			Published:    base.Add(time.Duration(i) * time.Minute),
			IsLocal:      true,
		}
		if err := database.CreateActivity(activity); err != nil {
			t.Fatalf("Failed to seed activity %d: %v", i, err)
		}
	}
}

func TestOutboxSummary(t *testing.T) {
	database, router := setupWebTest(t)
	user := mustCreateUser(t, database, "alice")

	actor, err := activitypub.EnsureUserActor(database, user.Id, "http://"+testHost)
	if err != nil {
		t.Fatalf("Failed to ensure actor: %v", err)
	}
	seedActivities(t, database, actor, 25)

	req := httptest.NewRequest("GET", "http://"+testHost+"/ap/users/alice/outbox", nil)
	w := perform(router, req)

	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var collection OutboxCollection
	if err := json.Unmarshal(w.Body.Bytes(), &collection); err != nil {
		t.Fatalf("Failed to parse collection: %v", err)
	}

	if collection.Type != "OrderedCollection" {
		t.Errorf("Unexpected type %s", collection.Type)
	}
	if collection.TotalItems != 25 {
		t.Errorf("Expected 25 total items, got %d", collection.TotalItems)
	}
	if collection.First != actor.Outbox+"?page=true" {
		t.Errorf("Unexpected first page %s", collection.First)
	}
	if collection.Last != actor.Outbox+"?page=true&before=0" {
		t.Errorf("Unexpected last page %s", collection.Last)
	}
}

func TestOutboxPageIsCappedAndNewestFirst(t *testing.T) {
	database, router := setupWebTest(t)
	user := mustCreateUser(t, database, "alice")

	actor, err := activitypub.EnsureUserActor(database, user.Id, "http://"+testHost)
	if err != nil {
		t.Fatalf("Failed to ensure actor: %v", err)
	}
	seedActivities(t, database, actor, 25)

	req := httptest.NewRequest("GET", "http://"+testHost+"/ap/users/alice/outbox?page=true", nil)
	w := perform(router, req)

	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var page OutboxPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("Failed to parse page: %v", err)
	}

	if page.Type != "OrderedCollectionPage" || page.PartOf != actor.Outbox {
		t.Errorf("Unexpected page envelope: %s %s", page.Type, page.PartOf)
	}
	if len(page.OrderedItems) != 20 {
		t.Fatalf("Expected 20 items, got %d", len(page.OrderedItems))
	}

	newest := page.OrderedItems[0]
	if newest.ID != fmt.Sprintf("%s/activities/24", actor.ActorURL) {
		t.Errorf("Expected newest activity first, got %s", newest.ID)
	}

	var note map[string]interface{}
	if err := json.Unmarshal(newest.Object, &note); err != nil {
		t.Fatalf("Object should round-trip as JSON: %v", err)
	}
	if note["content"] != "post 24" {
		t.Errorf("Unexpected object content %v", note["content"])
	}
}

func TestOutboxForUserWithoutActor(t *testing.T) {
	database, router := setupWebTest(t)
	mustCreateUser(t, database, "alice")

	req := httptest.NewRequest("GET", "http://"+testHost+"/ap/users/alice/outbox", nil)
	w := perform(router, req)

	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var collection OutboxCollection
	if err := json.Unmarshal(w.Body.Bytes(), &collection); err != nil {
		t.Fatalf("Failed to parse collection: %v", err)
	}
	if collection.TotalItems != 0 {
		t.Errorf("Expected an empty outbox, got %d items", collection.TotalItems)
	}
}

func TestCommunityOutboxPrivateForbidden(t *testing.T) {
	database, router := setupWebTest(t)
	user := mustCreateUser(t, database, "alice")
	community := mustCreateCommunity(t, database, "secret", user.Id, false)

	req := httptest.NewRequest("GET", "http://"+testHost+"/ap/communities/"+community.Id.String()+"/outbox", nil)
	if w := perform(router, req); w.Code != 403 {
		t.Errorf("Expected 403, got %d", w.Code)
	}
}

func TestOutboxUnknownUser(t *testing.T) {
	_, router := setupWebTest(t)

	req := httptest.NewRequest("GET", "http://"+testHost+"/ap/users/ghost/outbox", nil)
	if w := perform(router, req); w.Code != 404 {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
