// Package csvloader reads the recipient list from a CSV export.
package csvloader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"ExamMailer/internal/models"
)

// Common header variations accepted for the two required columns.
var (
	nameColumns = []string{
		"name", "student_name", "full_name", "student name",
		"fullname", "candidate_name", "candidate name",
	}
	emailColumns = []string{
		"email", "email_address", "e-mail", "mail",
		"email address", "student_email", "student email",
	}
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// LoadFile opens and parses a recipient CSV from disk.
func LoadFile(path string) ([]models.Recipient, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load parses recipients from CSV data. The header row must contain a name
// and an email column (case-insensitive, common variants accepted); every
// other column becomes a personalization field. Rows with invalid or
// duplicate emails are skipped with a warning rather than failing the load.
func Load(r io.Reader) ([]models.Recipient, []string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	nameIdx := resolveColumn(normalized, nameColumns)
	emailIdx := resolveColumn(normalized, emailColumns)
	if nameIdx == -1 {
		return nil, nil, fmt.Errorf("required column 'name' not found, available columns: %v", normalized)
	}
	if emailIdx == -1 {
		return nil, nil, fmt.Errorf("required column 'email' not found, available columns: %v", normalized)
	}

	var (
		recipients []models.Recipient
		warnings   []string
		seen       = map[string]bool{}
		rowNum     = 1 // header was row 1
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv row: %w", err)
		}
		rowNum++
		if len(record) != len(headers) {
			warnings = append(warnings, fmt.Sprintf("row %d: malformed row skipped", rowNum))
			continue
		}

		name := strings.TrimSpace(record[nameIdx])
		email := strings.ToLower(strings.TrimSpace(record[emailIdx]))

		if name == "" && email == "" {
			continue
		}
		if email == "" {
			warnings = append(warnings, fmt.Sprintf("row %d: empty email for %q", rowNum, name))
			continue
		}
		if !emailPattern.MatchString(email) {
			warnings = append(warnings, fmt.Sprintf("row %d: invalid email format %q", rowNum, email))
			continue
		}
		if seen[email] {
			warnings = append(warnings, fmt.Sprintf("row %d: duplicate email removed: %s", rowNum, email))
			continue
		}
		seen[email] = true

		if name == "" {
			name = "Unknown"
		}

		fields := make(map[string]string)
		for i, v := range record {
			if i == nameIdx || i == emailIdx || normalized[i] == "" {
				continue
			}
			fields[normalized[i]] = strings.TrimSpace(v)
		}

		recipients = append(recipients, models.Recipient{
			Name:   name,
			Email:  email,
			Fields: fields,
		})
	}

	if len(recipients) == 0 {
		return nil, warnings, errors.New("no valid recipient rows found")
	}
	return recipients, warnings, nil
}

func resolveColumn(headers, options []string) int {
	for _, opt := range options {
		for i, h := range headers {
			if h == opt {
				return i
			}
		}
	}
	return -1
}
