package protocol

import (
	"strconv"
	"strings"
)

// Stamps are the per-table upload watermarks.
type Stamps struct {
	AttLog   string `json:"attlogStamp"`
	OperLog  string `json:"operlogStamp"`
	AttPhoto string `json:"attphotoStamp"`
}

// Get returns the stamp for t.
func (s Stamps) Get(t Table) string {
	switch t {
	case TableAttLog:
		return s.AttLog
	case TableOperLog:
		return s.OperLog
	case TableAttPhoto:
		return s.AttPhoto
	}
	return ""
}

// HandshakeOptions are the option lines sent back on GET /iclock/cdata.
type HandshakeOptions struct {
	ErrorDelay    int
	Delay         int
	TransTimes    string
	TransInterval int
	TransFlag     string
	Realtime      bool
	Encrypt       bool
	ServerVersion string
	// TimeZone is only emitted when set.
	TimeZone string
}

// DefaultHandshakeOptions returns the option set terminals are configured
// with when nothing else is specified.
func DefaultHandshakeOptions() HandshakeOptions {
	return HandshakeOptions{
		ErrorDelay:    60,
		Delay:         30,
		TransTimes:    "00:00;14:05",
		TransInterval: 1,
		TransFlag:     "TransData AttLog\tOpLog\tAttPhoto\tEnrollUser\tChgUser\tEnrollFP\tChgFP",
		Realtime:      true,
		Encrypt:       false,
		ServerVersion: "2.0.1",
	}
}

func stampOrZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// BuildHandshake assembles the registration response: newline separated
// key=value lines with a trailing newline.
func BuildHandshake(serial string, stamps Stamps, opts HandshakeOptions) string {
	lines := []string{
		"GET OPTION FROM: " + serial,
		"ATTLOGStamp=" + stampOrZero(stamps.AttLog),
		"OPERLOGStamp=" + stampOrZero(stamps.OperLog),
		"ATTPHOTOStamp=" + stampOrZero(stamps.AttPhoto),
		"ErrorDelay=" + strconv.Itoa(opts.ErrorDelay),
		"Delay=" + strconv.Itoa(opts.Delay),
		"TransTimes=" + opts.TransTimes,
		"TransInterval=" + strconv.Itoa(opts.TransInterval),
		"TransFlag=" + opts.TransFlag,
	}
	if opts.TimeZone != "" {
		lines = append(lines, "TimeZone="+opts.TimeZone)
	}
	lines = append(lines,
		"Realtime="+flag(opts.Realtime),
		"Encrypt="+flag(opts.Encrypt),
		"ServerVer="+opts.ServerVersion,
	)
	return strings.Join(lines, "\n") + "\n"
}

// Ack is the bare acknowledgement for uploads, empty polls and results.
const Ack = "OK\n"

// PendingLine is a queued command as delivered on a poll.
type PendingLine struct {
	ID      string
	Command string
}

// FormatCommandLine renders "C:<id>:<command>". A command that already
// carries its own "C:<id>:" prefix is left as is.
func FormatCommandLine(id, command string) string {
	prefix := "C:" + id + ":"
	if strings.HasPrefix(command, prefix) {
		return command
	}
	return prefix + command
}

// RenderPoll builds the getrequest response body.
func RenderPoll(pending []PendingLine) string {
	if len(pending) == 0 {
		return Ack
	}
	var b strings.Builder
	for _, p := range pending {
		b.WriteString(FormatCommandLine(p.ID, p.Command))
		b.WriteByte('\n')
	}
	return b.String()
}
