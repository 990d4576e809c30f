package template

import (
	"regexp"
	"strings"

	"ExamMailer/internal/models"
)

// Tokens is the fixed, ordered set of placeholder names the renderer knows.
// The order is part of the contract: substitution is a single deterministic
// pass, and a field value containing {token}-shaped text is emitted verbatim,
// never re-substituted.
var Tokens = []string{
	"name",
	"email",
	"login_link",
	"candidate_id",
	"program_name",
	"round_name",
	"expires_at",
	"session_duration",
}

// Render replaces every {token} occurrence for each known token with its
// value from fields (empty string when absent). Unknown tokens stay verbatim.
func Render(text string, fields map[string]string) string {
	for _, tok := range Tokens {
		text = strings.ReplaceAll(text, "{"+tok+"}", fields[tok])
	}
	return text
}

// FieldSet flattens a recipient into the renderer's key/value form. The
// identity columns shadow same-named personalization fields.
func FieldSet(r models.Recipient) map[string]string {
	fields := make(map[string]string, len(r.Fields)+2)
	for k, v := range r.Fields {
		fields[k] = v
	}
	fields["name"] = r.Name
	fields["email"] = r.Email
	return fields
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// StripHTML derives the plain-text fallback body from an HTML body by
// removing tags and collapsing whitespace.
func StripHTML(html string) string {
	text := tagPattern.ReplaceAllString(html, "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
