package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/aurabloom/aurabloom/db"
	"github.com/aurabloom/aurabloom/domain"
	"github.com/aurabloom/aurabloom/util"
	"github.com/gin-gonic/gin"
)

const testHost = "local.example"

// setupWebTest wires a router against a throwaway database.
func setupWebTest(t *testing.T) (*db.DB, *gin.Engine) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	conf := &util.AppConfig{}
	conf.Conf.Domain = testHost
	conf.Conf.WithFederation = true

	return database, NewRouter(database, conf)
}

func perform(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func mustCreateUser(t *testing.T, database *db.DB, username string) *domain.User {
	t.Helper()

	err, user := database.CreateUser(username, username, "")
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}

func TestWebfingerResolvesLocalUser(t *testing.T) {
	database, router := setupWebTest(t)
	mustCreateUser(t, database, "alice")

	req := httptest.NewRequest("GET", "http://"+testHost+"/.well-known/webfinger?resource=acct:alice@"+testHost, nil)
	w := perform(router, req)

	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp WebfingerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp.Subject != "acct:alice@"+testHost {
		t.Errorf("Unexpected subject %s", resp.Subject)
	}
	if len(resp.Links) != 2 {
		t.Fatalf("Expected 2 links, got %d", len(resp.Links))
	}

	self := resp.Links[0]
	if self.Rel != "self" || self.Type != "application/activity+json" {
		t.Errorf("Unexpected self link %+v", self)
	}
	if self.Href != "http://"+testHost+"/ap/users/alice" {
		t.Errorf("Unexpected self href %s", self.Href)
	}

	profile := resp.Links[1]
	if profile.Rel != "http://webfinger.net/rel/profile-page" || profile.Type != "text/html" {
		t.Errorf("Unexpected profile link %+v", profile)
	}
}

func TestWebfingerMissingResource(t *testing.T) {
	_, router := setupWebTest(t)

	req := httptest.NewRequest("GET", "http://"+testHost+"/.well-known/webfinger", nil)
	if w := perform(router, req); w.Code != 400 {
		t.Errorf("Expected 400 without a resource, got %d", w.Code)
	}
}

func TestWebfingerMalformedResource(t *testing.T) {
	_, router := setupWebTest(t)

	req := httptest.NewRequest("GET", "http://"+testHost+"/.well-known/webfinger?resource=alice", nil)
	if w := perform(router, req); w.Code != 400 {
		t.Errorf("Expected 400 for a non-acct resource, got %d", w.Code)
	}
}

func TestWebfingerForeignDomain(t *testing.T) {
	database, router := setupWebTest(t)
	mustCreateUser(t, database, "alice")

	req := httptest.NewRequest("GET", "http://"+testHost+"/.well-known/webfinger?resource=acct:alice@elsewhere.example", nil)
	if w := perform(router, req); w.Code != 404 {
		t.Errorf("Expected 404 for a foreign domain, got %d", w.Code)
	}
}

func TestWebfingerUnknownUser(t *testing.T) {
	_, router := setupWebTest(t)

	req := httptest.NewRequest("GET", "http://"+testHost+"/.well-known/webfinger?resource=acct:ghost@"+testHost, nil)
	if w := perform(router, req); w.Code != 404 {
		t.Errorf("Expected 404 for an unknown user, got %d", w.Code)
	}
}
