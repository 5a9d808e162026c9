package activitypub

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/aurabloom/aurabloom/db"
	"github.com/aurabloom/aurabloom/domain"
)

const deliveryTimeout = 30 * time.Second

// Retry schedule in minutes, indexed by attempts already made.
var retryBackoff = []int{1, 5, 15, 60, 240, 1440}

const maxDeliveryAttempts = 10

// Deliver signs and POSTs an activity to a remote inbox. Returns true only
// for a 2xx response; there is no retry at this level.
func Deliver(activity interface{}, inboxURL string, privateKeyPem string, keyId string) bool {
	activityJSON, err := json.Marshal(activity)
	if err != nil {
		log.Printf("Delivery: failed to encode activity: %v", err)
		return false
	}

	if err := deliverRaw(activityJSON, inboxURL, privateKeyPem, keyId); err != nil {
		log.Printf("Delivery: %v", err)
		return false
	}
	return true
}

func deliverRaw(activityJSON []byte, inboxURL string, privateKeyPem string, keyId string) error {
	privateKey, err := ParsePrivateKey(privateKeyPem)
	if err != nil {
		return fmt.Errorf("failed to parse signing key: %w", err)
	}

	req, err := http.NewRequest("POST", inboxURL, bytes.NewReader(activityJSON))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", inboxURL, err)
	}

	hash := sha256.Sum256(activityJSON)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req.Host = req.URL.Host
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "aurabloom/1.0 ActivityPub")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	if err := SignRequest(req, privateKey, keyId); err != nil {
		return fmt.Errorf("failed to sign request for %s: %w", inboxURL, err)
	}

	client := &http.Client{Timeout: deliveryTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver to %s: %w", inboxURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delivery to %s rejected with status %d", inboxURL, resp.StatusCode)
	}

	log.Printf("Delivery: delivered to %s (%d)", inboxURL, resp.StatusCode)
	return nil
}

// StartDeliveryWorker drains the delivery queue on a fixed cadence.
func StartDeliveryWorker(database *db.DB) {
	ticker := time.NewTicker(10 * time.Second)
	go func() {
		for range ticker.C {
			ProcessDeliveryQueue(database)
		}
	}()
	log.Println("Delivery: queue worker started")
}

// ProcessDeliveryQueue attempts every due delivery once. Failed items are
// rescheduled with exponential backoff and dropped after the attempt cap.
func ProcessDeliveryQueue(database *db.DB) {
	err, items := database.ReadPendingDeliveries(50)
	if err != nil {
		log.Printf("Delivery: failed to read queue: %v", err)
		return
	}

	for i := range *items {
		item := &(*items)[i]
		if err := deliverQueued(database, item); err != nil {
			log.Printf("Delivery: attempt %d for %s failed: %v", item.Attempts+1, item.InboxURI, err)
			retryLater(database, item)
			continue
		}
		if err := database.DeleteDelivery(item.Id); err != nil {
			log.Printf("Delivery: failed to dequeue %s: %v", item.Id, err)
		}
	}
}

func deliverQueued(database *db.DB, item *domain.DeliveryQueueItem) error {
	err, actor := database.ReadActorById(item.ActorId)
	if err != nil {
		return fmt.Errorf("failed to load sending actor %s: %w", item.ActorId, err)
	}
	if actor.PrivateKeyPem == "" {
		return fmt.Errorf("actor %s has no private key", actor.ActorURL)
	}
	return deliverRaw([]byte(item.ActivityJSON), item.InboxURI, actor.PrivateKeyPem, actor.ActorURL+"#main-key")
}

func retryLater(database *db.DB, item *domain.DeliveryQueueItem) {
	item.Attempts++
	if item.Attempts >= maxDeliveryAttempts {
		log.Printf("Delivery: giving up on %s after %d attempts", item.InboxURI, item.Attempts)
		if err := database.DeleteDelivery(item.Id); err != nil {
			log.Printf("Delivery: failed to drop %s: %v", item.Id, err)
		}
		return
	}

	backoff := retryBackoff[min(item.Attempts-1, len(retryBackoff)-1)]
	nextRetry := time.Now().Add(time.Duration(backoff) * time.Minute)
	if err := database.UpdateDeliveryAttempt(item.Id, item.Attempts, nextRetry); err != nil {
		log.Printf("Delivery: failed to reschedule %s: %v", item.Id, err)
	}
}
