package propertyclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
)

func TestUpdatePropertySendsPatch(t *testing.T) {
	propertyID := uuid.New()
	var got domain.PropertyUpdate
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Fatalf("expected PATCH, got %s", r.Method)
		}
		if r.URL.Path != "/internal/properties/"+propertyID.String() {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Internal-API-Key") != "secret" {
			t.Fatalf("missing internal api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "secret")
	err := client.UpdateProperty(context.Background(), propertyID, domain.PropertyUpdate{Status: domain.PropertyStatusLeased, LeaseTakenOver: true})
	if err != nil {
		t.Fatalf("UpdateProperty returned error: %v", err)
	}
	if got.Status != domain.PropertyStatusLeased || !got.LeaseTakenOver {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestUpdatePropertyReturnsErrorOnFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	if err := client.UpdateProperty(context.Background(), uuid.New(), domain.PropertyUpdate{Status: domain.PropertyStatusInactive}); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestUpdatePropertyRequiresBaseURL(t *testing.T) {
	if err := NewClient("", "").UpdateProperty(context.Background(), uuid.New(), domain.PropertyUpdate{}); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
