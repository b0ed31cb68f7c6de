package events

import (
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const objectJSON = `{"kind":"storage#object","bucket":"revo-media","name":"Revoland/PropertyVideos/xyz_9.mp4","size":"10485760","contentType":"video/mp4"}`

func TestDecodeBinaryCloudEvent(t *testing.T) {
	req := httptest.NewRequest("POST", "/events", strings.NewReader(objectJSON))
	req.Header.Set("Ce-Type", "google.cloud.storage.object.v1.finalized")
	req.Header.Set("Ce-Id", "evt-1")
	req.Header.Set("Content-Type", "application/json")

	ev, err := Decode(req)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := TriggerEvent{
		ID:          "evt-1",
		Type:        "google.cloud.storage.object.v1.finalized",
		Bucket:      "revo-media",
		Name:        "Revoland/PropertyVideos/xyz_9.mp4",
		Size:        10485760,
		ContentType: "video/mp4",
		Exists:      true,
	}
	if diff := cmp.Diff(want, ev); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeStructuredCloudEvent(t *testing.T) {
	body := `{"specversion":"1.0","id":"evt-2","type":"google.cloud.storage.object.v1.deleted","data":` + objectJSON + `}`
	req := httptest.NewRequest("POST", "/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/cloudevents+json; charset=utf-8")

	ev, err := Decode(req)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.ID != "evt-2" || ev.Name != "Revoland/PropertyVideos/xyz_9.mp4" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Exists {
		t.Error("deleted objects must not be marked as existing")
	}
}

func TestDecodePubSubPush(t *testing.T) {
	body := `{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte(objectJSON)) +
		`","attributes":{"eventType":"OBJECT_FINALIZE","bucketId":"revo-media"},"messageId":"m-1"},"subscription":"projects/p/subscriptions/s"}`
	req := httptest.NewRequest("POST", "/events", strings.NewReader(body))

	ev, err := Decode(req)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.ID != "m-1" || ev.Type != "OBJECT_FINALIZE" || ev.Bucket != "revo-media" || !ev.Exists {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestDecodePubSubAttributesOnly(t *testing.T) {
	body := `{"message":{"data":"","attributes":{"eventType":"OBJECT_DELETE","bucketId":"b","objectId":"Revoland/PropertyVideos/a.mp4"},"messageId":"m-2"}}`
	ev, err := DecodeBytes([]byte(body))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if ev.Bucket != "b" || ev.Name != "Revoland/PropertyVideos/a.mp4" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Exists {
		t.Error("OBJECT_DELETE must not be marked as existing")
	}
}

func TestDecodeBareObject(t *testing.T) {
	ev, err := DecodeBytes([]byte(objectJSON))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if ev.Bucket != "revo-media" || !ev.Exists || ev.Size != 10485760 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestDecodeMissingName(t *testing.T) {
	ev, err := DecodeBytes([]byte(`{"bucket":"b"}`))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if ev.Exists {
		t.Error("an event without an object name must not be marked as existing")
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, body := range []string{`not json`, `{"message":{"data":"%%%"}}`} {
		if _, err := DecodeBytes([]byte(body)); !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeBytes(%q): expected ErrMalformed, got %v", body, err)
		}
	}

	req := httptest.NewRequest("POST", "/events", strings.NewReader(""))
	req.Header.Set("Ce-Type", "google.cloud.storage.object.v1.finalized")
	if _, err := Decode(req); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for empty binary event, got %v", err)
	}
}
