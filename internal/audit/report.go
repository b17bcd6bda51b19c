package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vibepruner/vibepruner/pkg/model"
)

// Report aggregates audit entries over a time window, optionally narrowed
// to a set of event types.
type Report struct {
	GeneratedAt  time.Time                      `json:"generated_at"`
	Since        *time.Time                     `json:"since,omitempty"`
	Until        *time.Time                     `json:"until,omitempty"`
	EventTypes   []model.AuditEventType         `json:"event_types,omitempty"`
	TotalEntries int                            `json:"total_entries"`
	ByEventType  map[model.AuditEventType]int   `json:"by_event_type"`
	BySeverity   map[model.Severity]int         `json:"by_severity"`
	FileOps      map[string]int                 `json:"file_operations"`
	Decisions    DecisionCounts                 `json:"decisions"`
	Tests        TestCounts                     `json:"tests"`
	Comparisons  ComparisonCounts               `json:"comparisons"`
	Errors       []string                       `json:"errors,omitempty"`
	CorruptLines int                            `json:"corrupt_lines"`
	FilesScanned int                            `json:"files_scanned"`
}

// DecisionCounts tallies user decisions.
type DecisionCounts struct {
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// TestCounts tallies test runs.
type TestCounts struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// ComparisonCounts tallies baseline comparisons.
type ComparisonCounts struct {
	Matched  int `json:"matched"`
	Diverged int `json:"diverged"`
}

const maxReportErrors = 50

// GenerateReport streams every audit file (active and archived) and
// aggregates entries within the window. Zero time bounds mean unbounded;
// no eventTypes means all. Header lines and lines that fail to parse or
// verify are counted as corrupt, not fatal; a report over a partially
// damaged log is still a report.
func (l *Logger) GenerateReport(since, until time.Time, eventTypes ...model.AuditEventType) (*Report, error) {
	report := &Report{
		GeneratedAt: time.Now(),
		EventTypes:  eventTypes,
		ByEventType: make(map[model.AuditEventType]int),
		BySeverity:  make(map[model.Severity]int),
		FileOps:     make(map[string]int),
	}
	if !since.IsZero() {
		report.Since = &since
	}
	if !until.IsZero() {
		report.Until = &until
	}

	var typeFilter map[model.AuditEventType]bool
	if len(eventTypes) > 0 {
		typeFilter = make(map[model.AuditEventType]bool, len(eventTypes))
		for _, et := range eventTypes {
			typeFilter[et] = true
		}
	}

	files, err := l.auditFiles()
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if err := l.aggregateFile(file, since, until, typeFilter, report); err != nil {
			return nil, err
		}
		report.FilesScanned++
	}
	return report, nil
}

func (l *Logger) auditFiles() ([]string, error) {
	var files []string

	active, err := filepath.Glob(filepath.Join(l.wd.AuditDir(), "audit_*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("glob audit files: %w", err)
	}
	archived, err := filepath.Glob(filepath.Join(l.wd.AuditDir(), "archive", "audit_*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("glob archived audit files: %w", err)
	}

	files = append(files, archived...)
	files = append(files, active...)
	sort.Strings(files)
	return files, nil
}

func (l *Logger) aggregateFile(path string, since, until time.Time, typeFilter map[model.AuditEventType]bool, report *Report) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audit file %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry model.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil || entry.ID == "" {
			if isHeaderLine(line) {
				continue
			}
			report.CorruptLines++
			continue
		}

		if !since.IsZero() && entry.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && entry.Timestamp.After(until) {
			continue
		}
		if !VerifyEntry(&entry) {
			report.CorruptLines++
			continue
		}
		if typeFilter != nil && !typeFilter[entry.EventType] {
			continue
		}

		report.TotalEntries++
		report.ByEventType[entry.EventType]++
		report.BySeverity[entry.Severity]++

		switch entry.EventType {
		case model.EventFileOperation:
			if op, ok := entry.Details["operation"].(string); ok {
				report.FileOps[op]++
			}
		case model.EventUserDecision:
			if approved, ok := entry.Details["approved"].(bool); ok {
				if approved {
					report.Decisions.Approved++
				} else {
					report.Decisions.Rejected++
				}
			}
		case model.EventTestRun:
			if passed, ok := entry.Details["passed"].(bool); ok {
				if passed {
					report.Tests.Passed++
				} else {
					report.Tests.Failed++
				}
			}
		case model.EventTestCompare:
			if match, ok := entry.Details["baseline_match"].(bool); ok {
				if match {
					report.Comparisons.Matched++
				} else {
					report.Comparisons.Diverged++
				}
			}
		case model.EventError:
			if len(report.Errors) < maxReportErrors {
				report.Errors = append(report.Errors, entry.Description)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan audit file %s: %w", path, err)
	}
	return nil
}

func isHeaderLine(line []byte) bool {
	var header model.AuditLogHeader
	if err := json.Unmarshal(line, &header); err != nil {
		return false
	}
	return header.Type == "audit_log_header"
}
