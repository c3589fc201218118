package protocol

import (
	"net/url"
	"strconv"
	"strings"
)

// Result is one command outcome reported on /iclock/devicecmd.
type Result struct {
	ID      string
	Return  int
	Payload string
}

// ParseResults decodes a devicecmd body. A body may carry several results,
// each starting on a line that begins with "ID="; lines in between belong to
// the CMD payload of the preceding result. Results without an ID or a
// numeric Return are dropped. ID, Return and CMD may appear in any order on
// the first line.
func ParseResults(body string) []Result {
	body = strings.ReplaceAll(body, "\r\n", "\n")

	var records []string
	for _, ln := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(ln), "ID=") {
			records = append(records, strings.TrimSpace(ln))
			continue
		}
		if len(records) == 0 {
			continue
		}
		records[len(records)-1] += "\n" + ln
	}

	results := make([]Result, 0, len(records))
	for _, rec := range records {
		if r, ok := parseResult(rec); ok {
			results = append(results, r)
		}
	}
	return results
}

func parseResult(rec string) (Result, bool) {
	head, rest, multiline := strings.Cut(rec, "\n")

	var r Result
	var haveID, haveReturn, hasCmd bool
	var cmd []string
	for _, pair := range strings.Split(head, "&") {
		key, value, _ := strings.Cut(pair, "=")
		switch strings.TrimSpace(key) {
		case "ID":
			r.ID = strings.TrimSpace(unescape(value))
			haveID = r.ID != ""
			continue
		case "Return":
			n, err := strconv.Atoi(strings.TrimSpace(unescape(value)))
			if err == nil {
				r.Return = n
				haveReturn = true
			}
			continue
		case "CMD":
			if !hasCmd {
				hasCmd = true
				cmd = append(cmd, value)
				continue
			}
		}
		// Anything else after CMD= is part of its value.
		if hasCmd {
			cmd = append(cmd, pair)
		}
	}
	if !haveID || !haveReturn {
		return Result{}, false
	}
	if hasCmd {
		payload := strings.Join(cmd, "&")
		if multiline {
			payload += "\n" + rest
		}
		r.Payload = strings.TrimRight(unescape(payload), "\n")
	}
	return r, true
}

// unescape decodes form encoding and keeps the raw text when it is not
// valid form encoding.
func unescape(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	out, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return out
}
