package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ExamMailer/internal/checkpoint"
	"ExamMailer/internal/models"
	"ExamMailer/internal/report"
	"ExamMailer/internal/transport"
)

type sentMessage struct {
	To         string
	Subject    string
	HTML       string
	Text       string
	Attachment *transport.Attachment
}

type fakeMailer struct {
	sent     []sentMessage
	failFor  map[string]error
	panicFor map[string]string
	onSend   func(to string)
}

func (f *fakeMailer) Send(
	_ context.Context,
	_ transport.Identity,
	to, subject, htmlBody, textBody string,
	attachment *transport.Attachment,
) (string, error) {
	if msg, ok := f.panicFor[to]; ok {
		panic(msg)
	}
	if f.onSend != nil {
		f.onSend(to)
	}
	if err, ok := f.failFor[to]; ok {
		return "", err
	}
	f.sent = append(f.sent, sentMessage{To: to, Subject: subject, HTML: htmlBody, Text: textBody, Attachment: attachment})
	return "msg-" + to, nil
}

func testRecipients() []models.Recipient {
	return []models.Recipient{
		{Name: "Ana", Email: "ana@example.com", Fields: map[string]string{"login_link": "https://x/a"}},
		{Name: "Bob", Email: "bob@example.com", Fields: map[string]string{"login_link": "https://x/b"}},
		{Name: "Cy", Email: "cy@example.com", Fields: map[string]string{"login_link": "https://x/c"}},
	}
}

type testEnv struct {
	dispatcher  *Dispatcher
	mailer      *fakeMailer
	checkpoints *checkpoint.Store
	reportDir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zap.NewNop()

	cps, err := checkpoint.New(t.TempDir(), log)
	require.NoError(t, err)

	reportDir := t.TempDir()
	reports, err := report.New(reportDir, log)
	require.NoError(t, err)

	mailer := &fakeMailer{}
	d := New(mailer, cps, reports, log)
	d.sleep = func(context.Context, time.Duration) {}
	return &testEnv{dispatcher: d, mailer: mailer, checkpoints: cps, reportDir: reportDir}
}

func baseParams() Params {
	return Params{
		Recipients:         testRecipients(),
		From:               transport.Identity{Name: "Exam Portal", Email: "noreply@example.com"},
		SubjectTemplate:    "Hi {name}",
		BodyTemplate:       "<p>Hi {name}, link: <a href=\"{login_link}\">{login_link}</a></p>",
		CheckpointInterval: 1,
		SessionID:          "test-session",
	}
}

func TestRun_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.failFor = map[string]error{
		"bob@example.com": &transport.Error{Code: "smtp_send", Message: "mailbox unavailable"},
	}

	var progress []string
	params := baseParams()
	params.OnProgress = func(index, total int, identity string, success bool, message string) {
		progress = append(progress, fmt.Sprintf("%d/%d %s %v", index, total, identity, success))
	}

	results, err := env.dispatcher.Run(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.StatusSent, results[0].Status)
	assert.Equal(t, models.StatusFailed, results[1].Status)
	assert.Equal(t, models.StatusSent, results[2].Status)
	assert.Contains(t, results[1].Message, "mailbox unavailable")

	require.Len(t, progress, 3)
	assert.Equal(t, "1/3 ana@example.com true", progress[0])
	assert.Equal(t, "2/3 bob@example.com false", progress[1])

	cp, err := env.checkpoints.Load(env.checkpoints.Path("test-session"))
	require.NoError(t, err)
	assert.Equal(t, models.CheckpointCompleted, cp.Status)
	assert.Equal(t, 3, cp.NextIndex)
	assert.Len(t, cp.Results, 3)

	reportFiles, err := filepath.Glob(filepath.Join(env.reportDir, "report_test-session_*.csv"))
	require.NoError(t, err)
	assert.Len(t, reportFiles, 1)
}

func TestRun_RendersPerRecipient(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.dispatcher.Run(context.Background(), baseParams())
	require.NoError(t, err)
	require.Len(t, env.mailer.sent, 3)

	first := env.mailer.sent[0]
	assert.Equal(t, "Hi Ana", first.Subject)
	assert.Contains(t, first.HTML, "https://x/a")
	assert.Equal(t, "Hi Ana, link: https://x/a", first.Text)
	assert.Nil(t, first.Attachment)
}

func TestRun_EventAttached(t *testing.T) {
	env := newTestEnv(t)

	params := baseParams()
	params.Event = &models.CalendarEventSpec{
		Type:           models.EventGoogleMeet,
		Title:          "Exam Session",
		Date:           "2026-02-25",
		StartTime:      "10:00",
		Duration:       "90",
		OrganizerName:  "Exam Portal",
		OrganizerEmail: "noreply@example.com",
		MeetingLink:    "https://meet.example.com/xyz",
	}

	_, err := env.dispatcher.Run(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, env.mailer.sent, 3)

	att := env.mailer.sent[0].Attachment
	require.NotNil(t, att)
	assert.Equal(t, "invite.ics", att.Filename)
	assert.Contains(t, att.ContentType, "method=REQUEST")
	assert.True(t, strings.HasPrefix(string(att.Content), "BEGIN:VCALENDAR\r\n"))
	// Each recipient gets their own attendee line.
	assert.Contains(t, string(att.Content), "MAILTO:ana@example.com")
}

func TestRun_EncodeFailureSkipsTransport(t *testing.T) {
	env := newTestEnv(t)

	params := baseParams()
	params.Event = &models.CalendarEventSpec{
		Type:           models.EventOutlook,
		Title:          "Exam Session",
		Date:           "not a date",
		StartTime:      "never",
		Duration:       "1h",
		OrganizerEmail: "noreply@example.com",
	}

	results, err := env.dispatcher.Run(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, models.StatusFailed, r.Status)
		assert.Contains(t, r.Message, "calendar invite")
	}
	assert.Empty(t, env.mailer.sent, "transport must not be called when encoding fails")
}

func TestRun_InvalidEventSpecRejectedUpfront(t *testing.T) {
	env := newTestEnv(t)

	params := baseParams()
	params.Event = &models.CalendarEventSpec{Type: "carrier_pigeon", Title: "x", OrganizerEmail: "a@b.co"}

	_, err := env.dispatcher.Run(context.Background(), params)
	require.Error(t, err)
	assert.Empty(t, env.mailer.sent)
}

func TestRun_PanicIsolatedPerRecipient(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.panicFor = map[string]string{"bob@example.com": "connection state corrupted"}

	results, err := env.dispatcher.Run(context.Background(), baseParams())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.StatusSent, results[0].Status)
	assert.Equal(t, models.StatusFailed, results[1].Status)
	assert.Contains(t, results[1].Message, "connection state corrupted")
	assert.Equal(t, models.StatusSent, results[2].Status)
}

func TestRun_CancellationRunsCrashPath(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	env.mailer.onSend = func(string) { cancel() }

	results, err := env.dispatcher.Run(ctx, baseParams())
	require.Error(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.StatusSent, results[0].Status)
	assert.Equal(t, models.StatusNotSent, results[1].Status)
	assert.Equal(t, models.StatusNotSent, results[2].Status)
	assert.Equal(t, "bob@example.com", results[1].Email)

	cp, cperr := env.checkpoints.Load(env.checkpoints.Path("test-session"))
	require.NoError(t, cperr)
	assert.Equal(t, models.CheckpointCrashed, cp.Status)
	assert.Equal(t, 1, cp.NextIndex)
	assert.NotEmpty(t, cp.CrashError)
	assert.Len(t, cp.Results, 3, "crashed checkpoint carries the not_sent tail")

	crashCSV, _ := filepath.Glob(filepath.Join(env.reportDir, "crash_test-session_*.csv"))
	crashTXT, _ := filepath.Glob(filepath.Join(env.reportDir, "crash_test-session_*.txt"))
	assert.Len(t, crashCSV, 1)
	assert.Len(t, crashTXT, 1)
}

func TestRun_ResumeContinuesWithoutReattempting(t *testing.T) {
	env := newTestEnv(t)

	// First run crashes after the first recipient.
	ctx, cancel := context.WithCancel(context.Background())
	env.mailer.onSend = func(string) { cancel() }
	_, err := env.dispatcher.Run(ctx, baseParams())
	require.Error(t, err)

	// Second run resumes the same checkpoint store.
	env.mailer.onSend = nil
	env.mailer.sent = nil

	var progress []string
	params := baseParams()
	params.SessionID = "" // resume must adopt the checkpoint's session
	params.Resume = true
	params.OnProgress = func(index, total int, identity string, success bool, message string) {
		progress = append(progress, identity)
	}

	results, err := env.dispatcher.Run(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, models.StatusSent, r.Status, "result %d", i)
	}

	// Only the two unattempted recipients are sent; the first is never
	// re-attempted and never duplicated.
	require.Len(t, env.mailer.sent, 2)
	assert.Equal(t, "bob@example.com", env.mailer.sent[0].To)
	assert.Equal(t, "cy@example.com", env.mailer.sent[1].To)

	require.NotEmpty(t, progress)
	assert.Equal(t, "resume", progress[0])

	cp, err := env.checkpoints.Load(env.checkpoints.Path("test-session"))
	require.NoError(t, err)
	assert.Equal(t, models.CheckpointCompleted, cp.Status)
	assert.Equal(t, 3, cp.NextIndex)
}

func TestRun_ResumeWithoutCheckpointStartsFresh(t *testing.T) {
	env := newTestEnv(t)

	params := baseParams()
	params.Resume = true

	results, err := env.dispatcher.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Len(t, env.mailer.sent, 3)
}
