// Package events decodes storage notifications into TriggerEvents. Three
// deliveries are understood: CloudEvents (binary or structured mode), Pub/Sub
// push envelopes carrying a GCS notification, and a bare GCS object resource.
package events

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const maxBodyBytes = 1 << 20

// ErrMalformed is returned when the body is not a recognizable notification.
var ErrMalformed = errors.New("malformed storage event")

// TriggerEvent is the inbound notification about one storage object.
type TriggerEvent struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"type,omitempty"`
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Exists      bool   `json:"exists"`
}

// objectData is the subset of the GCS object resource we read.
type objectData struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	Size        string `json:"size"`
	ContentType string `json:"contentType"`
	TimeDeleted string `json:"timeDeleted"`
}

type structuredEvent struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	SpecVersion string          `json:"specversion"`
	Data        json.RawMessage `json:"data"`
}

type pushEnvelope struct {
	Message *struct {
		Data       string            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Decode reads r's body and returns the event it carries.
func Decode(r *http.Request) (TriggerEvent, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return TriggerEvent{}, fmt.Errorf("failed to read event body: %w", err)
	}

	if ceType := r.Header.Get("Ce-Type"); ceType != "" {
		return fromObject(r.Header.Get("Ce-Id"), ceType, body)
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/cloudevents+json") {
		var ev structuredEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return TriggerEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return fromObject(ev.ID, ev.Type, ev.Data)
	}
	return DecodeBytes(body)
}

// DecodeBytes decodes a Pub/Sub push envelope or a bare object resource.
func DecodeBytes(body []byte) (TriggerEvent, error) {
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return TriggerEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Message == nil {
		return fromObject("", "", body)
	}

	attrs := env.Message.Attributes
	data, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return TriggerEvent{}, fmt.Errorf("%w: message data: %v", ErrMalformed, err)
	}
	if len(data) == 0 {
		// Notifications with payload format NONE only carry attributes.
		ev := TriggerEvent{
			ID:     env.Message.MessageID,
			Type:   attrs["eventType"],
			Bucket: attrs["bucketId"],
			Name:   attrs["objectId"],
		}
		ev.Exists = ev.Name != "" && !isRemoval(ev.Type)
		return ev, nil
	}

	ev, err := fromObject(env.Message.MessageID, attrs["eventType"], data)
	if err != nil {
		return TriggerEvent{}, err
	}
	if ev.Bucket == "" {
		ev.Bucket = attrs["bucketId"]
	}
	return ev, nil
}

func fromObject(id, eventType string, data []byte) (TriggerEvent, error) {
	if len(data) == 0 {
		return TriggerEvent{}, fmt.Errorf("%w: empty object data", ErrMalformed)
	}
	var obj objectData
	if err := json.Unmarshal(data, &obj); err != nil {
		return TriggerEvent{}, fmt.Errorf("%w: object data: %v", ErrMalformed, err)
	}

	ev := TriggerEvent{
		ID:          id,
		Type:        eventType,
		Bucket:      obj.Bucket,
		Name:        obj.Name,
		ContentType: obj.ContentType,
	}
	if obj.Size != "" {
		if n, err := strconv.ParseInt(obj.Size, 10, 64); err == nil {
			ev.Size = n
		}
	}
	ev.Exists = ev.Name != "" && obj.TimeDeleted == "" && !isRemoval(eventType)
	return ev, nil
}

func isRemoval(eventType string) bool {
	t := strings.ToLower(eventType)
	return strings.HasSuffix(t, ".deleted") || strings.HasSuffix(t, ".archived") ||
		t == "object_delete" || t == "object_archive"
}
