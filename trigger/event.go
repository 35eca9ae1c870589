// Package trigger turns storage-change notifications into feed source
// locations.
//
// Both AWS S3 and MinIO bucket notifications use the same record layout:
// the object key is URL-encoded, with '+' standing for a space.
package trigger

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Event is a storage-change notification.
type Event struct {
	Records []Record `json:"Records"`
}

// Record is one entry of an Event.
type Record struct {
	EventName string    `json:"eventName"`
	S3        *S3Entity `json:"s3,omitempty"`
}

// S3Entity names the changed object.
type S3Entity struct {
	Bucket struct {
		Name string `json:"name"`
	} `json:"bucket"`
	Object struct {
		Key string `json:"key"`
	} `json:"object"`
}

// ParseEvent decodes a notification payload.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("parsing storage event: %w", err)
	}
	return ev, nil
}

// SourceURL returns the s3:// location of the first record's object, or ""
// when the event carries no storage record.
func (e Event) SourceURL() (string, error) {
	if len(e.Records) == 0 || e.Records[0].S3 == nil {
		return "", nil
	}
	s3 := e.Records[0].S3
	key, err := url.QueryUnescape(s3.Object.Key)
	if err != nil {
		return "", fmt.Errorf("decoding object key %q: %w", s3.Object.Key, err)
	}
	if s3.Bucket.Name == "" || key == "" {
		return "", fmt.Errorf("storage event has no bucket or key")
	}
	return "s3://" + s3.Bucket.Name + "/" + key, nil
}

// ResolveSource prefers the event's object and falls back to the configured
// source location.
func ResolveSource(ev Event, fallback string) (string, error) {
	src, err := ev.SourceURL()
	if err != nil {
		return "", err
	}
	if src == "" {
		src = fallback
	}
	if src == "" {
		return "", fmt.Errorf("no source URL provided via configuration or event")
	}
	return src, nil
}
