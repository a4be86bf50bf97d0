package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/classboard/notification-engine/internal/domain"
)

func TestHTTPLookupMembersByCourse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/lookup/courses" {
			t.Errorf("path = %s, want /v1/lookup/courses", r.URL.Path)
		}

		var req lookupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.CourseIDs) != 2 || !req.IncludeTeachers {
			t.Errorf("request = %+v, want two courses with teachers", req)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"members":[
			{"userId":"u1","role":"student","locale":"en","endpoints":{"email":"u1@school.example","push":"token-1"}},
			{"userId":"t1","role":"teacher","locale":"tr","endpoints":{"email":"t1@school.example"}},
			{"userId":"","role":"student","locale":"en","endpoints":{}}
		]}`))
	}))
	defer server.Close()

	lookup, err := NewHTTPLookup(server.URL)
	if err != nil {
		t.Fatalf("NewHTTPLookup() error = %v", err)
	}

	members, err := lookup.MembersByCourse(context.Background(), []string{"course-1", "course-2"}, true)
	if err != nil {
		t.Fatalf("MembersByCourse() error = %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2 (blank userId dropped)", len(members))
	}
	if members[0].UserID != "u1" || members[0].Endpoints[domain.ChannelPush] != "token-1" {
		t.Errorf("member = %+v, want u1 with push token", members[0])
	}
	if members[1].Role != "teacher" {
		t.Errorf("role = %s, want teacher", members[1].Role)
	}
}

func TestHTTPLookupIgnoresUnknownChannels(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"members":[
			{"userId":"u1","role":"student","locale":"en","endpoints":{"email":"u1@school.example","fax":"+90-000","push":""}}
		]}`))
	}))
	defer server.Close()

	lookup, err := NewHTTPLookup(server.URL)
	if err != nil {
		t.Fatalf("NewHTTPLookup() error = %v", err)
	}

	members, err := lookup.MembersByID(context.Background(), []string{"u1"})
	if err != nil {
		t.Fatalf("MembersByID() error = %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("members = %d, want 1", len(members))
	}
	if len(members[0].Endpoints) != 1 {
		t.Errorf("endpoints = %v, want email only", members[0].Endpoints)
	}
}

func TestHTTPLookupErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("directory unavailable"))
	}))
	defer server.Close()

	lookup, err := NewHTTPLookup(server.URL)
	if err != nil {
		t.Fatalf("NewHTTPLookup() error = %v", err)
	}

	if _, err := lookup.MembersByRole(context.Background(), []string{"student"}); err == nil {
		t.Fatal("MembersByRole() should surface non-200 responses")
	}
}

func TestHTTPLookupEmptyCriteria(t *testing.T) {
	t.Parallel()

	lookup, err := NewHTTPLookup("http://directory.invalid")
	if err != nil {
		t.Fatalf("NewHTTPLookup() error = %v", err)
	}

	members, err := lookup.MembersByClass(context.Background(), nil)
	if err != nil {
		t.Fatalf("MembersByClass() error = %v", err)
	}
	if members != nil {
		t.Errorf("members = %v, want nil without a network call", members)
	}
}

func TestNewHTTPLookupValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPLookup(""); err == nil {
		t.Fatal("empty base url should error")
	}
	if _, err := NewHTTPLookup("not-a-url"); err == nil {
		t.Fatal("malformed base url should error")
	}
}
