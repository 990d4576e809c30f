// Package ics encodes RFC 5545 calendar invites for Google Meet and
// Outlook recipients.
package ics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"ExamMailer/internal/models"
)

// ParseError reports date/time input that matched none of the accepted
// formats. It never escapes the encoder boundary as anything else.
type ParseError struct {
	Date string
	Time string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse date %q or time %q, use formats YYYY-MM-DD and HH:MM", e.Date, e.Time)
}

// Accepted input layouts, tried in order.
var (
	dateLayouts = []string{"2006-01-02", "02-01-2006", "01-02-2006"}
	timeLayouts = []string{"15:04", "3:04 PM", "3:04PM", "1504"}
)

// Encoder produces calendar documents. The zero value uses the real clock
// and random UIDs; tests may pin both.
type Encoder struct {
	Now    func() time.Time
	NewUID func() string
}

func (e *Encoder) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Encoder) newUID() string {
	if e.NewUID != nil {
		return e.NewUID()
	}
	return uuid.NewString()
}

// Validate rejects specs the encoder cannot work with. Date and time are
// checked at encode time so the raw inputs appear in the error.
func Validate(spec models.CalendarEventSpec) error {
	switch spec.Type {
	case models.EventGoogleMeet, models.EventOutlook:
	default:
		return fmt.Errorf("unsupported event type %q", spec.Type)
	}
	if strings.TrimSpace(spec.Title) == "" {
		return fmt.Errorf("event title must not be empty")
	}
	if strings.TrimSpace(spec.OrganizerEmail) == "" {
		return fmt.Errorf("organizer email must not be empty")
	}
	return nil
}

// Encode renders the invite document for one attendee. On malformed
// date/time input it returns a *ParseError.
func (e *Encoder) Encode(spec models.CalendarEventSpec, attendeeName, attendeeEmail string) (string, error) {
	start, err := parseDateTime(spec.Date, spec.StartTime)
	if err != nil {
		return "", err
	}

	end := start.Add(time.Duration(ParseDuration(spec.Duration)) * time.Minute)

	uid := e.newUID()
	dtstamp := e.now().UTC().Format("20060102T150405Z")

	var descParts []string
	if spec.Description != "" {
		descParts = append(descParts, escapeText(spec.Description))
	}
	if spec.MeetingLink != "" {
		descParts = append(descParts, escapeText("Meeting Link: "+spec.MeetingLink))
	}
	description := strings.Join(descParts, `\n\n`)

	location := spec.Location
	if location == "" {
		location = spec.MeetingLink
	}

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//ExamMailer//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:REQUEST",
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTAMP:" + dtstamp,
		"DTSTART:" + start.Format("20060102T150405"),
		"DTEND:" + end.Format("20060102T150405"),
		"SUMMARY:" + escapeText(spec.Title),
		"DESCRIPTION:" + description,
		"LOCATION:" + escapeText(location),
		"ORGANIZER;CN=" + quoteCN(spec.OrganizerName) + ":MAILTO:" + spec.OrganizerEmail,
		"ATTENDEE;CN=" + quoteCN(attendeeName) + ";ROLE=REQ-PARTICIPANT;RSVP=TRUE:MAILTO:" + attendeeEmail,
		"STATUS:CONFIRMED",
		"SEQUENCE:0",
		"TRANSP:OPAQUE",
	}

	if spec.Type == models.EventGoogleMeet && spec.MeetingLink != "" {
		lines = append(lines, "X-GOOGLE-CONFERENCE:"+spec.MeetingLink)
	}
	if spec.Type == models.EventOutlook {
		lines = append(lines,
			"X-MICROSOFT-CDO-BUSYSTATUS:BUSY",
			"X-MICROSOFT-CDO-IMPORTANCE:1",
			"X-MS-OLK-ALLOWEXTERNCHECK:TRUE",
		)
	}

	lines = append(lines, "END:VEVENT", "END:VCALENDAR")

	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(foldLine(line))
		sb.WriteString("\r\n")
	}
	return sb.String(), nil
}

// parseDateTime resolves the date and start time against the accepted
// layout sets. Date separators are normalized to dashes first; the time is
// uppercased so am/pm suffixes match.
func parseDateTime(dateStr, timeStr string) (time.Time, error) {
	rawDate, rawTime := dateStr, timeStr
	dateStr = strings.ReplaceAll(strings.TrimSpace(dateStr), "/", "-")
	timeStr = strings.ToUpper(strings.TrimSpace(timeStr))

	var date time.Time
	var ok bool
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, dateStr); err == nil {
			date, ok = d, true
			break
		}
	}
	if !ok {
		return time.Time{}, &ParseError{Date: rawDate, Time: rawTime}
	}

	ok = false
	var clock time.Time
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, timeStr); err == nil {
			clock, ok = t, true
			break
		}
	}
	if !ok {
		return time.Time{}, &ParseError{Date: rawDate, Time: rawTime}
	}

	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), 0, 0, time.UTC), nil
}

var (
	hoursPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*h(?:our|ours|r|rs)?`)
	minsPattern  = regexp.MustCompile(`(\d+)\s*m(?:in|ins|inute|inutes)?`)
	plainPattern = regexp.MustCompile(`^(\d+)$`)
)

// ParseDuration interprets free-text durations ("1h 30m", "90 minutes",
// "1.5 hours", "90") as minutes. Unparsable input defaults to 60 minutes;
// the parser never rejects.
func ParseDuration(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	total := 0

	if m := hoursPattern.FindStringSubmatch(s); m != nil {
		var hours float64
		fmt.Sscanf(m[1], "%f", &hours)
		total += int(hours * 60)
	}
	if m := minsPattern.FindStringSubmatch(s); m != nil {
		var mins int
		fmt.Sscanf(m[1], "%d", &mins)
		total += mins
	}
	if total == 0 {
		if m := plainPattern.FindStringSubmatch(s); m != nil {
			fmt.Sscanf(m[1], "%d", &total)
		}
	}
	if total <= 0 {
		return 60
	}
	return total
}

// escapeText escapes property values per RFC 5545. Backslash must be first
// or the characters inserted by the later steps get double-escaped.
func escapeText(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, ";", `\;`)
	v = strings.ReplaceAll(v, ",", `\,`)
	v = strings.ReplaceAll(v, "\r\n", `\n`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	v = strings.ReplaceAll(v, "\r", `\n`)
	return v
}

// quoteCN quotes a CN parameter value when it contains characters that
// would otherwise terminate the parameter.
func quoteCN(name string) string {
	if strings.ContainsAny(name, `,;:"`) {
		return `"` + name + `"`
	}
	return name
}

// foldLine splits a content line so no output line exceeds 75 octets: the
// first fold point is at byte 75, continuation lines carry one leading
// space plus at most 74 payload octets. Fold points back off to the nearest
// rune boundary so multi-byte characters are never split.
func foldLine(line string) string {
	b := []byte(line)
	if len(b) <= 75 {
		return line
	}

	var sb strings.Builder
	limit := 75
	for len(b) > limit {
		cut := limit
		for cut > 0 && b[cut]&0xC0 == 0x80 {
			cut--
		}
		sb.Write(b[:cut])
		sb.WriteString("\r\n ")
		b = b[cut:]
		limit = 74
	}
	sb.Write(b)
	return sb.String()
}
