package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Table is a log table a terminal uploads through /iclock/cdata.
type Table string

const (
	TableAttLog   Table = "ATTLOG"
	TableOperLog  Table = "OPERLOG"
	TableAttPhoto Table = "ATTPHOTO"
)

// ParseTable maps the table query parameter to a known table.
func ParseTable(s string) (Table, bool) {
	switch t := Table(strings.ToUpper(strings.TrimSpace(s))); t {
	case TableAttLog, TableOperLog, TableAttPhoto:
		return t, true
	}
	return "", false
}

// DeviceTimeLayout is the device-local timestamp format. Terminals never
// send an offset.
const DeviceTimeLayout = "2006-01-02 15:04:05"

var deviceTimePattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})\s+(\d{2}):(\d{2}):(\d{2})$`)

// ParseDeviceTime validates a device timestamp and returns it in canonical
// form. The value is never shifted between time zones.
func ParseDeviceTime(s string) (string, error) {
	m := deviceTimePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", fmt.Errorf("timestamp %q does not match YYYY-MM-DD HH:MM:SS", s)
	}
	canonical := fmt.Sprintf("%s-%s-%s %s:%s:%s", m[1], m[2], m[3], m[4], m[5], m[6])
	if _, err := time.Parse(DeviceTimeLayout, canonical); err != nil {
		return "", fmt.Errorf("timestamp %q is not a valid date: %w", s, err)
	}
	return canonical, nil
}

// AttendanceRecord is one parsed ATTLOG line.
type AttendanceRecord struct {
	PIN      string
	Time     string
	Status   int
	Verify   int
	WorkCode string
	Raw      string
}

// LineError describes a discarded upload line.
type LineError struct {
	Line   string
	Reason string
}

func (e LineError) Error() string {
	return fmt.Sprintf("%s: %q", e.Reason, e.Line)
}

// SplitLines returns the non-empty, trimmed lines of an upload body.
func SplitLines(body string) []string {
	var out []string
	for _, ln := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			out = append(out, ln)
		}
	}
	return out
}

// ParseAttendanceLine parses "PIN\tTime\tStatus\tVerify[\tWorkCode...]".
func ParseAttendanceLine(ln string) (AttendanceRecord, error) {
	raw := strings.TrimSpace(ln)
	parts := strings.Split(raw, "\t")
	if len(parts) < 2 {
		return AttendanceRecord{}, LineError{Line: raw, Reason: "too few fields"}
	}
	pin := strings.TrimSpace(parts[0])
	ts := strings.TrimSpace(parts[1])
	if pin == "" || ts == "" {
		return AttendanceRecord{}, LineError{Line: raw, Reason: "missing PIN or timestamp"}
	}
	canonical, err := ParseDeviceTime(ts)
	if err != nil {
		return AttendanceRecord{}, LineError{Line: raw, Reason: err.Error()}
	}
	rec := AttendanceRecord{
		PIN:    pin,
		Time:   canonical,
		Status: intField(parts, 2),
		Verify: intField(parts, 3),
		Raw:    raw,
	}
	if len(parts) > 4 {
		rec.WorkCode = strings.TrimSpace(parts[4])
	}
	return rec, nil
}

func intField(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
	if err != nil {
		return 0
	}
	return n
}

// ParseAttendance parses an ATTLOG body in order. Malformed lines are
// returned separately and never abort the batch.
func ParseAttendance(body string) ([]AttendanceRecord, []LineError) {
	var records []AttendanceRecord
	var rejected []LineError
	for _, ln := range SplitLines(body) {
		rec, err := ParseAttendanceLine(ln)
		if err != nil {
			le, ok := err.(LineError)
			if !ok {
				le = LineError{Line: ln, Reason: err.Error()}
			}
			rejected = append(rejected, le)
			continue
		}
		records = append(records, rec)
	}
	return records, rejected
}

// OperationKind classifies an OPERLOG line by its prefix.
type OperationKind string

const (
	OperationUser    OperationKind = "USER"
	OperationFP      OperationKind = "FP"
	OperationOpLog   OperationKind = "OPLOG"
	OperationUnknown OperationKind = "UNKNOWN"
)

func ClassifyOperation(ln string) OperationKind {
	ln = strings.TrimSpace(ln)
	switch {
	case strings.HasPrefix(ln, "USER"):
		return OperationUser
	case strings.HasPrefix(ln, "FP"):
		return OperationFP
	case strings.HasPrefix(ln, "OPLOG"):
		return OperationOpLog
	}
	return OperationUnknown
}
