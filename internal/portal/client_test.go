package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ExamMailer/internal/models"
)

func TestGenerateLinks(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"data": {
				"generated_links": [
					{"email": "ana@example.com", "candidate_id": 101, "login_link": "https://portal/exam//a", "expires_at": "2026-03-01"}
				],
				"program_info": {"program_name": "CS Entrance", "round_name": "Round 2"},
				"errors": [{"email": "bob@example.com", "error": "No active registration"}]
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 5*time.Second)
	resp, err := c.GenerateLinks(context.Background(), []string{"ana@example.com", "bob@example.com"}, 7, 2, "2026-03-01 10:00")
	require.NoError(t, err)

	assert.Equal(t, float64(7), gotPayload["program_id"])
	assert.Equal(t, float64(2), gotPayload["round_id"])
	assert.Equal(t, "2026-03-01 10:00", gotPayload["session_time"])
	assert.Len(t, gotPayload["emails"], 2)

	require.Len(t, resp.GeneratedLinks, 1)
	assert.Equal(t, "101", string(resp.GeneratedLinks[0].CandidateID), "numeric candidate ids are accepted")
	assert.Equal(t, "CS Entrance", resp.ProgramInfo.ProgramName)
	require.Len(t, resp.Errors, 1)
}

func TestGenerateLinks_APIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "error", "message": "invalid api key"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "wrong", 5*time.Second)
	_, err := c.GenerateLinks(context.Background(), []string{"a@b.co"}, 1, 1, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestGenerateLinks_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	_, err := c.GenerateLinks(context.Background(), []string{"a@b.co"}, 1, 1, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestGenerateLinks_MissingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	_, err := c.GenerateLinks(context.Background(), []string{"a@b.co"}, 1, 1, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing data")
}

func TestMapLinks(t *testing.T) {
	recipients := []models.Recipient{
		{Name: "Ana", Email: "Ana@Example.com", Fields: map[string]string{"batch": "2026"}},
		{Name: "Bob", Email: "bob@example.com"},
		{Name: "Cy", Email: "cy@example.com"},
	}
	resp := &LinksResponse{
		GeneratedLinks: []linkEntry{
			{Email: "ana@example.com", CandidateID: "101", LoginLink: "https://portal/exam//a", ExpiresAt: "2026-03-01"},
		},
		ProgramInfo: programInfo{ProgramName: "CS Entrance", RoundName: "Round 2"},
		Errors:      []apiError{{Email: "bob@example.com", Error: "No active registration"}},
	}

	enriched, failed := MapLinks(recipients, resp)

	require.Len(t, enriched, 1)
	ana := enriched[0]
	assert.Equal(t, "https://portal/exam/a", ana.Fields["login_link"], "double slash in the path is repaired")
	assert.Equal(t, "101", ana.Fields["candidate_id"])
	assert.Equal(t, "2026-03-01", ana.Fields["expires_at"])
	assert.Equal(t, "CS Entrance", ana.Fields["program_name"])
	assert.Equal(t, "Round 2", ana.Fields["round_name"])
	assert.Equal(t, "2026", ana.Fields["batch"], "existing fields are preserved")

	require.Len(t, failed, 2)
	assert.Equal(t, "No active registration", failed[0].Error)
	assert.Equal(t, "No link generated (email not matched)", failed[1].Error)
}

func TestMapLinks_FallbackLinkFieldAndDefaultError(t *testing.T) {
	recipients := []models.Recipient{
		{Name: "Ana", Email: "ana@example.com"},
		{Name: "Bob", Email: "bob@example.com"},
	}
	resp := &LinksResponse{
		GeneratedLinks: []linkEntry{{Email: "ana@example.com", Link: "https://portal/x"}},
		Errors:         []apiError{{Email: "bob@example.com"}},
	}

	enriched, failed := MapLinks(recipients, resp)
	require.Len(t, enriched, 1)
	assert.Equal(t, "https://portal/x", enriched[0].Fields["login_link"])
	require.Len(t, failed, 1)
	assert.Equal(t, "Candidate not found", failed[0].Error)
}

func TestFixDoubleSlash(t *testing.T) {
	assert.Equal(t, "https://portal/exam/a", fixDoubleSlash("https://portal/exam//a"))
	assert.Equal(t, "https://portal/exam/a", fixDoubleSlash("https://portal/exam/a"))
	assert.Equal(t, "relative//path", fixDoubleSlash("relative//path"), "links without a scheme are left alone")
}
