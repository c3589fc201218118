package services

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"zkteco-hub/models"
	"zkteco-hub/repositories/base"
)

var timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ParseTimeOfDay parses "HH:MM" in 24 hour form.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	m := timeOfDayPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, base.NewValidationError("timeOfDay", s, "must be HH:MM")
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// ParseDays reads a weekday CSV, 0 being Sunday.
func ParseDays(csv string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			return nil, base.NewValidationError("daysOfWeek", csv, "days must be between 0 (Sunday) and 6 (Saturday)")
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}

// FormatDays renders weekdays as a sorted, de-duplicated CSV.
func FormatDays(days []int) (string, error) {
	seen := make(map[int]bool, len(days))
	var uniq []int
	for _, d := range days {
		if d < 0 || d > 6 {
			return "", base.NewValidationError("daysOfWeek", strconv.Itoa(d), "days must be between 0 (Sunday) and 6 (Saturday)")
		}
		if !seen[d] {
			seen[d] = true
			uniq = append(uniq, d)
		}
	}
	sort.Ints(uniq)
	parts := make([]string, len(uniq))
	for i, d := range uniq {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ","), nil
}

// NextRun computes the occurrence that follows a run at now. It returns nil
// for one_time tasks and for weekly tasks without any day.
func NextRun(task *models.ScheduledTask, now time.Time, loc *time.Location) (*time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	switch task.ScheduleType {
	case models.ScheduleOneTime:
		return nil, nil
	case models.ScheduleInterval:
		if task.IntervalMinutes <= 0 {
			return nil, base.NewValidationError("intervalMinutes", strconv.Itoa(task.IntervalMinutes), "must be positive")
		}
		next := normalize(now.Add(time.Duration(task.IntervalMinutes) * time.Minute))
		return &next, nil
	case models.ScheduleDaily:
		hour, minute, err := ParseTimeOfDay(task.TimeOfDay)
		if err != nil {
			return nil, err
		}
		next := nextDaily(now.In(loc), hour, minute)
		return &next, nil
	case models.ScheduleWeekly:
		hour, minute, err := ParseTimeOfDay(task.TimeOfDay)
		if err != nil {
			return nil, err
		}
		days, err := ParseDays(task.DaysOfWeek)
		if err != nil {
			return nil, err
		}
		return nextWeekly(now.In(loc), hour, minute, days), nil
	}
	return nil, base.NewValidationError("scheduleType", task.ScheduleType, "unknown schedule type")
}

// FirstRun computes next_run_at for a newly created or edited task.
func FirstRun(task *models.ScheduledTask, now time.Time, loc *time.Location) (*time.Time, error) {
	if task.ScheduleType == models.ScheduleOneTime {
		if task.RunAt == nil {
			return nil, base.NewValidationError("runAt", "", "required for one_time tasks")
		}
		at := normalize(*task.RunAt)
		return &at, nil
	}
	return NextRun(task, now, loc)
}

// nextDaily returns today at hour:minute when that is still ahead of now,
// otherwise tomorrow at the same time.
func nextDaily(now time.Time, hour, minute int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return normalize(candidate)
}

// nextWeekly scans forward from today for the first listed weekday whose
// time is strictly after now. Offset 7 covers a single-day set whose time
// already passed today.
func nextWeekly(now time.Time, hour, minute int, days []time.Weekday) *time.Time {
	if len(days) == 0 {
		return nil
	}
	want := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		want[d] = true
	}
	for offset := 0; offset <= 7; offset++ {
		candidate := time.Date(now.Year(), now.Month(), now.Day()+offset, hour, minute, 0, 0, now.Location())
		if want[candidate.Weekday()] && candidate.After(now) {
			next := normalize(candidate)
			return &next
		}
	}
	return nil
}

// normalize stores times in UTC at second precision so they compare
// consistently across database drivers.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// buildTask validates the schedule fields of req and turns it into a task
// row carrying params and its first run.
func buildTask(req *models.ScheduledTaskRequest, params string, now time.Time, loc *time.Location) (*models.ScheduledTask, error) {
	task := &models.ScheduledTask{
		Name:          strings.TrimSpace(req.Name),
		DeviceSerial:  req.DeviceSerial,
		CommandType:   strings.ToUpper(strings.TrimSpace(req.CommandType)),
		CommandParams: params,
		ScheduleType:  req.ScheduleType,
		Enabled:       true,
	}
	if req.Enabled != nil {
		task.Enabled = *req.Enabled
	}

	switch req.ScheduleType {
	case models.ScheduleOneTime:
		if req.RunAt == nil {
			return nil, base.NewValidationError("runAt", "", "required for one_time tasks")
		}
		at := normalize(*req.RunAt)
		task.RunAt = &at
	case models.ScheduleInterval:
		if req.IntervalMinutes <= 0 {
			return nil, base.NewValidationError("intervalMinutes", strconv.Itoa(req.IntervalMinutes), "must be positive")
		}
		task.IntervalMinutes = req.IntervalMinutes
	case models.ScheduleDaily:
		if _, _, err := ParseTimeOfDay(req.TimeOfDay); err != nil {
			return nil, err
		}
		task.TimeOfDay = strings.TrimSpace(req.TimeOfDay)
	case models.ScheduleWeekly:
		if _, _, err := ParseTimeOfDay(req.TimeOfDay); err != nil {
			return nil, err
		}
		if len(req.DaysOfWeek) == 0 {
			return nil, base.NewValidationError("daysOfWeek", "", "weekly tasks need at least one day")
		}
		days, err := FormatDays(req.DaysOfWeek)
		if err != nil {
			return nil, err
		}
		task.TimeOfDay = strings.TrimSpace(req.TimeOfDay)
		task.DaysOfWeek = days
	default:
		return nil, base.NewValidationError("scheduleType", req.ScheduleType, "unknown schedule type")
	}

	next, err := FirstRun(task, now, loc)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, fmt.Errorf("no next run for %s task", task.ScheduleType)
	}
	task.NextRunAt = next
	return task, nil
}
