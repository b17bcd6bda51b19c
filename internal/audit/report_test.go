package audit_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibepruner/vibepruner/pkg/model"
)

func TestGenerateReport_Aggregates(t *testing.T) {
	logger, _, project := newTestLogger(t)

	src := project + "/f.txt"
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))

	_, err := logger.LogFileOperation(model.OpMove, src, project+"/g.txt", nil)
	require.NoError(t, err)
	_, err = logger.LogFileOperation(model.OpDelete, src, "", nil)
	require.NoError(t, err)
	_, err = logger.LogUserDecision("delete f.txt", true, nil)
	require.NoError(t, err)
	_, err = logger.LogUserDecision("delete g.txt", false, nil)
	require.NoError(t, err)
	_, err = logger.LogTestRun("unit", true, nil)
	require.NoError(t, err)
	_, err = logger.LogTestRun("integration", false, nil)
	require.NoError(t, err)
	_, err = logger.LogError("something broke", nil)
	require.NoError(t, err)

	report, err := logger.GenerateReport(time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 7, report.TotalEntries)
	assert.Equal(t, 1, report.FilesScanned)
	assert.Equal(t, 0, report.CorruptLines)
	assert.Equal(t, 2, report.ByEventType[model.EventFileOperation])
	assert.Equal(t, 1, report.FileOps["move"])
	assert.Equal(t, 1, report.FileOps["delete"])
	assert.Equal(t, 1, report.Decisions.Approved)
	assert.Equal(t, 1, report.Decisions.Rejected)
	assert.Equal(t, 1, report.Tests.Passed)
	assert.Equal(t, 1, report.Tests.Failed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "something broke", report.Errors[0])
	assert.Equal(t, 1, report.BySeverity[model.SeverityError])
}

func TestGenerateReport_FilterByEventType(t *testing.T) {
	logger, _, project := newTestLogger(t)

	src := project + "/f.txt"
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))

	_, err := logger.LogFileOperation(model.OpMove, src, project+"/g.txt", nil)
	require.NoError(t, err)
	_, err = logger.LogUserDecision("delete f.txt", true, nil)
	require.NoError(t, err)
	_, err = logger.LogError("boom", nil)
	require.NoError(t, err)

	report, err := logger.GenerateReport(time.Time{}, time.Time{},
		model.EventFileOperation, model.EventError)
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalEntries)
	assert.Equal(t, 1, report.ByEventType[model.EventFileOperation])
	assert.Equal(t, 1, report.ByEventType[model.EventError])
	assert.Zero(t, report.ByEventType[model.EventUserDecision])
	assert.Equal(t, 0, report.Decisions.Approved)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, []model.AuditEventType{model.EventFileOperation, model.EventError}, report.EventTypes)
}

func TestGenerateReport_CountsComparisons(t *testing.T) {
	logger, _, _ := newTestLogger(t)

	_, err := logger.LogTestComparison("smoke", true, nil)
	require.NoError(t, err)
	_, err = logger.LogTestComparison("regression", false, nil)
	require.NoError(t, err)

	report, err := logger.GenerateReport(time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.ByEventType[model.EventTestCompare])
	assert.Equal(t, 1, report.Comparisons.Matched)
	assert.Equal(t, 1, report.Comparisons.Diverged)
}

func TestGenerateReport_CountsCorruptLines(t *testing.T) {
	logger, wd, _ := newTestLogger(t)

	_, err := logger.LogEvent(model.EventFileScan, "ok", model.SeverityInfo, nil)
	require.NoError(t, err)

	// A half-written line from a crashed process.
	path := activeLogPath(wd)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"x","trunc`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	report, err := logger.GenerateReport(time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalEntries)
	assert.Equal(t, 1, report.CorruptLines)
}

func TestGenerateReport_ChecksumMismatchIsCorrupt(t *testing.T) {
	logger, wd, _ := newTestLogger(t)

	_, err := logger.LogEvent(model.EventFileScan, "real entry", model.SeverityInfo, nil)
	require.NoError(t, err)

	// Tamper with the recorded description on disk.
	data, err := os.ReadFile(activeLogPath(wd))
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "real entry", "fake entry", 1)
	require.NoError(t, os.WriteFile(activeLogPath(wd), []byte(tampered), 0644))

	report, err := logger.GenerateReport(time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalEntries)
	assert.Equal(t, 1, report.CorruptLines)
}

func TestGenerateReport_TimeWindow(t *testing.T) {
	logger, _, _ := newTestLogger(t)

	_, err := logger.LogEvent(model.EventFileScan, "now", model.SeverityInfo, nil)
	require.NoError(t, err)

	report, err := logger.GenerateReport(time.Now().Add(time.Hour), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalEntries, "future window excludes current entries")

	report, err = logger.GenerateReport(time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalEntries)
}
