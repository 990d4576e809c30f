// Package portal resolves recipient identities into exam portal login
// links through the link-generation API.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ExamMailer/internal/models"
)

// Client calls the link-generation endpoint.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

// flexString tolerates APIs that emit numbers where strings are expected.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	return fmt.Errorf("expected string or number, got %s", string(data))
}

type linkEntry struct {
	Email       string     `json:"email"`
	CandidateID flexString `json:"candidate_id"`
	LoginLink   string     `json:"login_link"`
	Link        string     `json:"link"`
	ExpiresAt   string     `json:"expires_at"`
}

type apiError struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

type programInfo struct {
	ProgramName string `json:"program_name"`
	RoundName   string `json:"round_name"`
}

// LinksResponse is the payload of a successful generation call.
type LinksResponse struct {
	GeneratedLinks []linkEntry `json:"generated_links"`
	ProgramInfo    programInfo `json:"program_info"`
	Errors         []apiError  `json:"errors"`
}

type apiEnvelope struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Data    *LinksResponse `json:"data"`
}

// GenerateLinks requests one login link per email address.
func (c *Client) GenerateLinks(
	ctx context.Context,
	emails []string,
	programID, roundID int,
	sessionTime string,
) (*LinksResponse, error) {
	payload := map[string]any{
		"program_id":   programID,
		"round_id":     roundID,
		"session_time": sessionTime,
		"emails":       emails,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call link api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read link api response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("link api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode link api response: %w", err)
	}
	if envelope.Status != "ok" {
		msg := envelope.Message
		if msg == "" {
			msg = "unknown API error"
		}
		return nil, fmt.Errorf("link api error: %s", msg)
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("link api response missing data field")
	}
	return envelope.Data, nil
}

// FailedCandidate is a recipient the portal could not resolve; no email is
// sent to these.
type FailedCandidate struct {
	Name  string
	Email string
	Error string
}

// MapLinks enriches recipients with their generated links and program
// metadata, splitting out the candidates the API reported as failed or
// never matched.
func MapLinks(recipients []models.Recipient, resp *LinksResponse) ([]models.Recipient, []FailedCandidate) {
	errorLookup := make(map[string]string, len(resp.Errors))
	for _, e := range resp.Errors {
		if email := strings.ToLower(strings.TrimSpace(e.Email)); email != "" {
			msg := e.Error
			if msg == "" {
				msg = "Candidate not found"
			}
			errorLookup[email] = msg
		}
	}

	linkLookup := make(map[string]linkEntry, len(resp.GeneratedLinks))
	for _, l := range resp.GeneratedLinks {
		if email := strings.ToLower(strings.TrimSpace(l.Email)); email != "" {
			linkLookup[email] = l
		}
	}

	var enriched []models.Recipient
	var failed []FailedCandidate
	for _, r := range recipients {
		email := strings.ToLower(strings.TrimSpace(r.Email))

		if msg, ok := errorLookup[email]; ok {
			failed = append(failed, FailedCandidate{Name: r.Name, Email: r.Email, Error: msg})
			continue
		}

		entry, ok := linkLookup[email]
		if !ok {
			failed = append(failed, FailedCandidate{
				Name:  r.Name,
				Email: r.Email,
				Error: "No link generated (email not matched)",
			})
			continue
		}

		link := entry.LoginLink
		if link == "" {
			link = entry.Link
		}

		fields := make(map[string]string, len(r.Fields)+5)
		for k, v := range r.Fields {
			fields[k] = v
		}
		fields["login_link"] = fixDoubleSlash(link)
		fields["candidate_id"] = string(entry.CandidateID)
		fields["expires_at"] = entry.ExpiresAt
		fields["program_name"] = resp.ProgramInfo.ProgramName
		fields["round_name"] = resp.ProgramInfo.RoundName

		enriched = append(enriched, models.Recipient{
			Name:   r.Name,
			Email:  r.Email,
			Fields: fields,
		})
	}
	return enriched, failed
}

// fixDoubleSlash repairs accidental double slashes in the path part of a
// generated link, leaving the scheme separator alone.
func fixDoubleSlash(link string) string {
	scheme, rest, found := strings.Cut(link, "://")
	if !found {
		return link
	}
	return scheme + "://" + strings.ReplaceAll(rest, "//", "/")
}
