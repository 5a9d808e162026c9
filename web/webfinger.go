package web

import (
	"fmt"
	"regexp"

	"github.com/aurabloom/aurabloom/db"
	"github.com/aurabloom/aurabloom/util"
	"github.com/gin-gonic/gin"
)

var acctPattern = regexp.MustCompile(`^acct:([^@]+)@(.+)$`)

// WebfingerLink is one entry of a webfinger response.
type WebfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

// WebfingerResponse maps an acct: resource to the actor behind it.
type WebfingerResponse struct {
	Subject string          `json:"subject"`
	Links   []WebfingerLink `json:"links"`
}

// HandleWebfinger resolves acct:user@domain resources for local users.
// Lookups for foreign domains and unknown users yield 404.
func HandleWebfinger(c *gin.Context, database *db.DB, conf *util.AppConfig) {
	resource := c.Query("resource")
	if resource == "" {
		c.JSON(400, gin.H{"error": "Missing resource parameter"})
		return
	}

	match := acctPattern.FindStringSubmatch(resource)
	if match == nil {
		c.JSON(400, gin.H{"error": "Invalid resource format"})
		return
	}
	username, domain := match[1], match[2]

	if domain != c.Request.Host {
		c.JSON(404, gin.H{"error": "Not Found"})
		return
	}

	err, user := database.ReadUserByUsername(username)
	if err != nil {
		c.JSON(404, gin.H{"error": "Not Found"})
		return
	}

	baseURL := requestBaseURL(c, conf)
	c.Header("Content-Type", "application/jrd+json; charset=utf-8")
	c.JSON(200, WebfingerResponse{
		Subject: fmt.Sprintf("acct:%s@%s", user.Username, domain),
		Links: []WebfingerLink{
			{
				Rel:  "self",
				Type: "application/activity+json",
				Href: fmt.Sprintf("%s/ap/users/%s", baseURL, user.Username),
			},
			{
				Rel:  "http://webfinger.net/rel/profile-page",
				Type: "text/html",
				Href: fmt.Sprintf("%s/users/%s", baseURL, user.Username),
			},
		},
	})
}
