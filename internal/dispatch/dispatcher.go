// Package dispatch drives the sequential bulk-send loop: render, encode,
// send, classify, checkpoint, report.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ExamMailer/internal/checkpoint"
	"ExamMailer/internal/ics"
	"ExamMailer/internal/metrics"
	"ExamMailer/internal/models"
	"ExamMailer/internal/report"
	"ExamMailer/internal/template"
	"ExamMailer/internal/transport"
)

// ProgressFunc observes every attempt: index is 1-based position of the
// attempt within the run.
type ProgressFunc func(index, total int, identity string, success bool, message string)

// Params binds one dispatch run.
type Params struct {
	Recipients         []models.Recipient
	From               transport.Identity
	SubjectTemplate    string
	BodyTemplate       string
	Delay              time.Duration
	CheckpointInterval int
	Event              *models.CalendarEventSpec
	Resume             bool
	SessionID          string
	OnProgress         ProgressFunc
}

// Dispatcher composes the renderer, encoder, transport, checkpoint store
// and report writer into the per-recipient loop.
type Dispatcher struct {
	mailer      transport.Mailer
	checkpoints *checkpoint.Store
	reports     *report.Writer
	encoder     *ics.Encoder
	log         *zap.Logger

	// Injectable for tests.
	sleep func(context.Context, time.Duration)
	now   func() time.Time
}

func New(
	mailer transport.Mailer,
	checkpoints *checkpoint.Store,
	reports *report.Writer,
	log *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		mailer:      mailer,
		checkpoints: checkpoints,
		reports:     reports,
		encoder:     &ics.Encoder{},
		log:         log,
		sleep:       pacingSleep,
		now:         time.Now,
	}
}

const notSentMessage = "not attempted: run terminated before reaching this recipient"

type runState struct {
	sessionID  string
	startedAt  time.Time
	total      int
	recipients []models.Recipient
	results    []models.DispatchResult
	nextIndex  int
}

// Run processes every recipient exactly once, in order. One recipient's
// failure never aborts the loop; a failure of the run itself finalizes
// partial state (not_sent tail, crashed checkpoint, crash report) before
// surfacing.
func (d *Dispatcher) Run(ctx context.Context, params Params) (results []models.DispatchResult, err error) {
	if params.Event != nil {
		if verr := ics.Validate(*params.Event); verr != nil {
			return nil, fmt.Errorf("invalid event spec: %w", verr)
		}
	}
	if params.CheckpointInterval <= 0 {
		params.CheckpointInterval = 1
	}

	run := &runState{
		sessionID:  params.SessionID,
		startedAt:  d.now(),
		total:      len(params.Recipients),
		recipients: params.Recipients,
	}
	if run.sessionID == "" {
		run.sessionID = uuid.NewString()
	}

	if params.Resume {
		if rerr := d.seedFromCheckpoint(run, params); rerr != nil {
			return nil, rerr
		}
	}

	d.saveCheckpoint(run, models.CheckpointInProgress, "")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch run failed: %v", r)
			results = d.finalizeCrash(run, err)
		}
	}()

	sinceCheckpoint := 0
	for i := run.nextIndex; i < run.total; i++ {
		if ctx.Err() != nil {
			err = fmt.Errorf("dispatch run interrupted: %w", ctx.Err())
			return d.finalizeCrash(run, err), err
		}

		recipient := params.Recipients[i]
		result := d.attempt(ctx, recipient, params)

		run.results = append(run.results, result)
		run.nextIndex = i + 1
		sinceCheckpoint++

		success := result.Status == models.StatusSent
		if success {
			metrics.EmailsSent.Inc()
			d.log.Info("email sent",
				zap.String("to", recipient.Email),
				zap.Int("index", i+1),
				zap.Int("total", run.total),
			)
		} else {
			metrics.EmailFailures.Inc()
			d.log.Error("email send failed",
				zap.String("to", recipient.Email),
				zap.Int("index", i+1),
				zap.Int("total", run.total),
				zap.String("reason", result.Message),
			)
		}

		if params.OnProgress != nil {
			params.OnProgress(i+1, run.total, recipient.Email, success, result.Message)
		}

		if sinceCheckpoint >= params.CheckpointInterval && i < run.total-1 {
			d.saveCheckpoint(run, models.CheckpointInProgress, "")
			sinceCheckpoint = 0
		}

		if i < run.total-1 && params.Delay > 0 {
			d.sleep(ctx, params.Delay)
		}
	}

	d.saveCheckpoint(run, models.CheckpointCompleted, "")
	if path := d.reports.WriteCompletionReport(run.results, run.sessionID); path != "" {
		d.log.Info("completion report written", zap.String("path", path))
	}
	return run.results, nil
}

// attempt renders, optionally encodes the invite, and sends to a single
// recipient. Every failure mode, including a panic, is converted into a
// failed result so the loop keeps going.
func (d *Dispatcher) attempt(ctx context.Context, r models.Recipient, params Params) (res models.DispatchResult) {
	res = models.DispatchResult{Name: r.Name, Email: r.Email}
	defer func() {
		if rec := recover(); rec != nil {
			res.Status = models.StatusFailed
			res.Message = fmt.Sprintf("attempt failed: %v", rec)
			res.CompletedAt = d.now()
		}
	}()

	fields := template.FieldSet(r)
	subject := template.Render(params.SubjectTemplate, fields)
	htmlBody := template.Render(params.BodyTemplate, fields)
	textBody := template.StripHTML(htmlBody)

	var attachment *transport.Attachment
	if params.Event != nil {
		doc, err := d.encoder.Encode(*params.Event, r.Name, r.Email)
		if err != nil {
			res.Status = models.StatusFailed
			res.Message = "calendar invite: " + err.Error()
			res.CompletedAt = d.now()
			return res
		}
		attachment = &transport.Attachment{
			Filename:    "invite.ics",
			ContentType: "text/calendar; charset=UTF-8; method=REQUEST",
			Content:     []byte(doc),
		}
	}

	messageID, err := d.mailer.Send(ctx, params.From, r.Email, subject, htmlBody, textBody, attachment)
	if err != nil {
		res.Status = models.StatusFailed
		res.Message = err.Error()
	} else {
		res.Status = models.StatusSent
		res.Message = fmt.Sprintf("sent (message id %s)", messageID)
	}
	res.CompletedAt = d.now()
	return res
}

// seedFromCheckpoint loads the most recent resumable checkpoint into the
// run state. Already-processed recipients are never re-attempted; the
// not_sent tail a crash appended is dropped so resumed attempts do not
// duplicate entries.
func (d *Dispatcher) seedFromCheckpoint(run *runState, params Params) error {
	cp, err := d.checkpoints.LoadLatestResumable()
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	if cp == nil {
		d.log.Info("no resumable checkpoint found, starting fresh run")
		return nil
	}
	if cp.Total != run.total {
		return fmt.Errorf("resume: checkpoint covers %d recipients, run has %d", cp.Total, run.total)
	}

	run.sessionID = cp.SessionID
	run.startedAt = cp.StartedAt
	run.nextIndex = cp.NextIndex
	run.results = cp.Results
	if len(run.results) > cp.NextIndex {
		run.results = run.results[:cp.NextIndex]
	}

	sent, failed := models.SentFailedCounts(run.results)
	msg := fmt.Sprintf("resuming session %s: %d sent, %d failed, %d remaining",
		cp.SessionID, sent, failed, run.total-run.nextIndex)
	d.log.Info("resuming from checkpoint",
		zap.String("session_id", cp.SessionID),
		zap.Int("next_index", cp.NextIndex),
		zap.String("status", string(cp.Status)),
	)
	if params.OnProgress != nil {
		params.OnProgress(run.nextIndex, run.total, "resume", true, msg)
	}
	return nil
}

// finalizeCrash pads the result list with not_sent entries, persists a
// crashed checkpoint recording the true next-index boundary, and writes the
// crash report. All side effects are best-effort.
func (d *Dispatcher) finalizeCrash(run *runState, cause error) []models.DispatchResult {
	for i := 0; i < run.total-run.nextIndex; i++ {
		metrics.EmailsNotSent.Inc()
	}
	padded := make([]models.DispatchResult, 0, run.total)
	padded = append(padded, run.results...)
	for i := run.nextIndex; i < run.total; i++ {
		padded = append(padded, models.DispatchResult{
			Name:    run.recipients[i].Name,
			Email:   run.recipients[i].Email,
			Status:  models.StatusNotSent,
			Message: notSentMessage,
		})
	}
	run.results = padded

	d.saveCheckpoint(run, models.CheckpointCrashed, cause.Error())

	sent, failed := models.SentFailedCounts(run.results)
	remaining := run.total - run.nextIndex
	d.reports.WriteCrashReport(run.results, run.sessionID, cause.Error(), sent, failed, remaining)

	d.log.Error("dispatch run crashed",
		zap.String("session_id", run.sessionID),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
		zap.Int("remaining", remaining),
		zap.Error(cause),
	)
	return run.results
}

// saveCheckpoint persists the current snapshot. A write failure is a
// reporting failure: logged and swallowed, never escalated into the run.
func (d *Dispatcher) saveCheckpoint(run *runState, status models.CheckpointStatus, crashErr string) {
	cp := models.Checkpoint{
		SessionID:  run.sessionID,
		Total:      run.total,
		NextIndex:  run.nextIndex,
		Results:    run.results,
		StartedAt:  run.startedAt,
		Status:     status,
		CrashError: crashErr,
	}
	if err := d.checkpoints.Save(cp); err != nil {
		d.log.Warn("checkpoint not saved",
			zap.String("session_id", run.sessionID),
			zap.Error(err),
		)
		return
	}
	metrics.CheckpointSaves.Inc()
}

// pacingSleep waits out the inter-recipient delay but wakes early on
// cancellation so the crash path runs promptly.
func pacingSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
