package boundary

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gridassign/gridassign/internal/subplanner"
)

func TestCatalogue_CountFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/count-files" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req countFilesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		_ = json.NewEncoder(w).Encode(countFilesResponse{Count: len(req.LFNs)})
	}))
	defer srv.Close()

	cat := NewCatalogue(srv.URL)
	n, err := cat.CountFiles(t.Context(), srv.URL, []string{"a", "b", "c"}, []string{"1", "2", "3"}, []string{"se1"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
}

func TestCatalogue_ListFileReplicasBySites_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cat := NewCatalogue(srv.URL)
	err := cat.ListFileReplicasBySites(t.Context(), "dataset1", []string{"siteA"})
	if err != ErrUnknownDestination {
		t.Fatalf("expected ErrUnknownDestination, got %v", err)
	}
}

func TestDDM_RegisterDatasetSubscription_AlreadyExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	ddm := NewDDM(srv.URL)
	err := ddm.RegisterDatasetSubscription(t.Context(), "dataset1", "endpointA", subplanner.RegisterOptions{})
	if err != subplanner.ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestDDM_ListSubscriptionInfo_DestinationUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ddm := NewDDM(srv.URL)
	_, err := ddm.ListSubscriptionInfo(t.Context(), "dataset1", "endpointA")
	if err != subplanner.ErrDestinationUnknown {
		t.Fatalf("expected ErrDestinationUnknown, got %v", err)
	}
}

func TestStaticIdentity_CallerDN(t *testing.T) {
	id := StaticIdentity{DN: "/O=Grid/CN=gridassignd"}
	dn, err := id.CallerDN(t.Context())
	if err != nil || dn != "/O=Grid/CN=gridassignd" {
		t.Fatalf("unexpected result %q, %v", dn, err)
	}
}
