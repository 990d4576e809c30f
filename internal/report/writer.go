// Package report emits durable audit artifacts for terminal dispatch runs.
// Every operation is best-effort: reporting must never mask or worsen the
// dispatch failure it is describing.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"ExamMailer/internal/models"
)

// Writer renders result sets to CSV and crash summaries to plain text under
// a single root directory. Filenames carry a timestamp so reruns never
// overwrite prior reports.
type Writer struct {
	root string
	log  *zap.Logger
	now  func() time.Time
}

func New(root string, log *zap.Logger) (*Writer, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create report root: %w", err)
	}
	return &Writer{root: root, log: log, now: time.Now}, nil
}

var csvHeader = []string{"name", "email", "status", "message", "completed_at"}

// WriteCompletionReport exports the result set of a completed run. The
// returned path is empty when writing failed.
func (w *Writer) WriteCompletionReport(results []models.DispatchResult, sessionID string) string {
	path := w.reportPath("report", sessionID, ".csv")
	if err := w.writeCSV(path, results); err != nil {
		w.log.Warn("completion report not written", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}

// WriteCrashReport exports the partial result set plus a plain-text summary
// naming the session, crash time, error, and sent/failed/remaining counts.
func (w *Writer) WriteCrashReport(
	results []models.DispatchResult,
	sessionID string,
	runErr string,
	sent, failed, remaining int,
) (csvPath, summaryPath string) {
	csvPath = w.reportPath("crash", sessionID, ".csv")
	if err := w.writeCSV(csvPath, results); err != nil {
		w.log.Warn("crash report not written", zap.String("path", csvPath), zap.Error(err))
		csvPath = ""
	}

	summary := fmt.Sprintf(
		"Dispatch run crashed\n"+
			"Session:   %s\n"+
			"Crashed:   %s\n"+
			"Error:     %s\n"+
			"Sent:      %d\n"+
			"Failed:    %d\n"+
			"Remaining: %d\n",
		sessionID,
		w.now().Format(time.RFC3339),
		runErr,
		sent, failed, remaining,
	)
	summaryPath = w.reportPath("crash", sessionID, ".txt")
	if err := os.WriteFile(summaryPath, []byte(summary), 0o644); err != nil {
		w.log.Warn("crash summary not written", zap.String("path", summaryPath), zap.Error(err))
		summaryPath = ""
	}
	return csvPath, summaryPath
}

func (w *Writer) reportPath(kind, sessionID, ext string) string {
	stamp := w.now().Format("20060102_150405")
	return filepath.Join(w.root, fmt.Sprintf("%s_%s_%s%s", kind, sessionID, stamp, ext))
}

func (w *Writer) writeCSV(path string, results []models.DispatchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range results {
		completed := ""
		if !r.CompletedAt.IsZero() {
			completed = r.CompletedAt.Format(time.RFC3339)
		}
		record := []string{r.Name, r.Email, string(r.Status), r.Message, completed}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
