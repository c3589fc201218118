package models

import (
	"time"
)

// --- Tenant Models ---

// Client is a tenant owning devices. Its forwarding profile lives on the
// same row: the webhook URL, the credential (stored encrypted) and the
// retry policy.
type Client struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ClientCode        string    `gorm:"uniqueIndex;size:128;not null" json:"clientId"`
	Name              string    `gorm:"not null" json:"name"`
	ContactEmail      string    `json:"contactEmail,omitempty"`
	ContactPhone      string    `json:"contactPhone,omitempty"`
	Active            bool      `gorm:"not null" json:"active"`
	ForwardingEnabled bool      `gorm:"not null;default:false" json:"forwardingEnabled"`
	ForwardURL        string    `json:"forwardUrl,omitempty"`
	APIKey            string    `json:"-"`
	RetryAttempts     int       `gorm:"not null;default:3" json:"retryAttempts"`
	RetryDelayMs      int       `gorm:"not null;default:5000" json:"retryDelayMs"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// --- Device Models ---

// Device is a registered terminal and its session state.
type Device struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	SerialNumber    string     `gorm:"uniqueIndex;size:255;not null" json:"serialNumber"`
	ClientID        uint       `gorm:"index;not null" json:"clientId"`
	Alias           string     `json:"alias,omitempty"`
	Model           string     `json:"model,omitempty"`
	FirmwareVersion string     `json:"firmwareVersion,omitempty"`
	IPAddress       string     `json:"ipAddress,omitempty"`
	LastSeen        *time.Time `json:"lastSeen,omitempty"`
	Active          bool       `gorm:"not null" json:"active"`
	AttLogStamp     string     `gorm:"column:attlog_stamp;default:'0'" json:"attlogStamp"`
	OperLogStamp    string     `gorm:"column:operlog_stamp;default:'0'" json:"operlogStamp"`
	AttPhotoStamp   string     `gorm:"column:attphoto_stamp;default:'0'" json:"attphotoStamp"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// IsOnline reports whether the device was seen within window of now.
func (d *Device) IsOnline(now time.Time, window time.Duration) bool {
	return d.LastSeen != nil && now.Sub(*d.LastSeen) <= window
}

// --- Attendance Models ---

// AttendanceEvent is one clock record. DeviceTime keeps the device-local
// wall clock verbatim ("YYYY-MM-DD HH:MM:SS") and, with the serial and PIN,
// forms the dedup key.
type AttendanceEvent struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	DeviceSerial string     `gorm:"size:255;not null;uniqueIndex:idx_attendance_dedup,priority:1" json:"deviceSerial"`
	PIN          string     `gorm:"size:255;not null;uniqueIndex:idx_attendance_dedup,priority:2" json:"pin"`
	DeviceTime   string     `gorm:"size:19;not null;uniqueIndex:idx_attendance_dedup,priority:3" json:"timestamp"`
	Status       int        `gorm:"not null;default:0" json:"status"`
	Verify       int        `gorm:"not null;default:0" json:"verify"`
	WorkCode     string     `json:"workCode,omitempty"`
	Forwarded    bool       `gorm:"not null;default:false;index" json:"forwarded"`
	ForwardedAt  *time.Time `json:"forwardedAt"`
	ForwardError *string    `json:"forwardError"`
	RawData      string     `json:"rawData,omitempty"`
	ReceivedAt   time.Time  `gorm:"autoCreateTime" json:"receivedAt"`
}

// OperationLog keeps an OPERLOG line verbatim with its classification.
type OperationLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	DeviceSerial string    `gorm:"size:255;not null;index" json:"deviceSerial"`
	LogType      string    `gorm:"size:32;not null" json:"logType"`
	Content      string    `gorm:"not null" json:"content"`
	ReceivedAt   time.Time `gorm:"autoCreateTime" json:"receivedAt"`
}

// --- Command Models ---

const (
	CommandStatusPending  = "pending"
	CommandStatusExecuted = "executed"
)

// DeviceCommand is a queued command. CommandID is the correlation ID
// embedded in the wire line.
type DeviceCommand struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	DeviceSerial string     `gorm:"size:255;not null;index:idx_command_queue,priority:1" json:"deviceSerial"`
	CommandID    string     `gorm:"size:64;not null;uniqueIndex" json:"commandId"`
	Command      string     `gorm:"not null" json:"command"`
	Status       string     `gorm:"size:16;not null;default:pending;index:idx_command_queue,priority:2" json:"status"`
	ReturnValue  *int       `json:"returnValue"`
	ReturnData   string     `json:"returnData,omitempty"`
	CreatedAt    time.Time  `gorm:"index:idx_command_queue,priority:3" json:"createdAt"`
	ExecutedAt   *time.Time `json:"executedAt"`
}

// --- Scheduler Models ---

const (
	ScheduleOneTime  = "one_time"
	ScheduleInterval = "interval"
	ScheduleDaily    = "daily"
	ScheduleWeekly   = "weekly"
)

// ScheduledTask materializes into a DeviceCommand whenever NextRunAt is
// due. DaysOfWeek is a CSV of weekday numbers, 0 being Sunday.
type ScheduledTask struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Name            string     `json:"name"`
	DeviceSerial    string     `gorm:"size:255;not null;index" json:"deviceSerial"`
	CommandType     string     `gorm:"size:64;not null" json:"commandType"`
	CommandParams   string     `gorm:"type:text" json:"commandParams"`
	ScheduleType    string     `gorm:"size:16;not null" json:"scheduleType"`
	RunAt           *time.Time `json:"runAt,omitempty"`
	IntervalMinutes int        `json:"intervalMinutes,omitempty"`
	TimeOfDay       string     `gorm:"size:5" json:"timeOfDay,omitempty"`
	DaysOfWeek      string     `gorm:"size:32" json:"daysOfWeek,omitempty"`
	Enabled         bool       `gorm:"not null;index:idx_task_due,priority:1" json:"enabled"`
	LastRunAt       *time.Time `json:"lastRunAt"`
	NextRunAt       *time.Time `gorm:"index:idx_task_due,priority:2" json:"nextRunAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}
