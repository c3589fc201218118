package protocol

import "testing"

func TestParseResultsSingle(t *testing.T) {
	results := ParseResults("ID=CMD_1&Return=0&CMD=REBOOT")
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.ID != "CMD_1" || r.Return != 0 || r.Payload != "REBOOT" {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestParseResultsNegativeReturnNoCmd(t *testing.T) {
	results := ParseResults("ID=abc&Return=-1002\n")
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Return != -1002 || results[0].Payload != "" {
		t.Errorf("unexpected result %+v", results[0])
	}
}

func TestParseResultsInfoPayload(t *testing.T) {
	body := "ID=CMD_9&Return=0&CMD=INFO\r\n~DeviceName=ZK-F22\r\nMAC=00:17:61:01:02:03\r\nFWVersion=Ver 6.60 Apr 28 2017\r\n"
	results := ParseResults(body)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	info := ParseDeviceInfo(results[0].Payload)
	if info.Model != "ZK-F22" {
		t.Errorf("expected model ZK-F22, got %q", info.Model)
	}
	if info.Firmware != "Ver 6.60 Apr 28 2017" {
		t.Errorf("unexpected firmware %q", info.Firmware)
	}
}

func TestParseResultsMultiple(t *testing.T) {
	body := "ID=A&Return=0&CMD=DATA\nID=B&Return=2&CMD=DATA\n"
	results := ParseResults(body)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "A" || results[1].ID != "B" || results[1].Return != 2 {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestParseResultsTolerant(t *testing.T) {
	t.Run("missing return is dropped", func(t *testing.T) {
		if got := ParseResults("ID=X&CMD=INFO"); len(got) != 0 {
			t.Errorf("expected no results, got %+v", got)
		}
	})
	t.Run("missing id is dropped", func(t *testing.T) {
		if got := ParseResults("Return=0&CMD=INFO"); len(got) != 0 {
			t.Errorf("expected no results, got %+v", got)
		}
	})
	t.Run("invalid escape kept raw", func(t *testing.T) {
		got := ParseResults("ID=X&Return=0&CMD=50%;done")
		if len(got) != 1 || got[0].Payload != "50%;done" {
			t.Errorf("unexpected results %+v", got)
		}
	})
	t.Run("escaped values decoded", func(t *testing.T) {
		got := ParseResults("ID=CMD%5F1&Return=0&CMD=SET+OPTION")
		if len(got) != 1 || got[0].ID != "CMD_1" || got[0].Payload != "SET OPTION" {
			t.Errorf("unexpected results %+v", got)
		}
	})
	t.Run("empty body", func(t *testing.T) {
		if got := ParseResults(""); len(got) != 0 {
			t.Errorf("expected no results, got %+v", got)
		}
	})
}

func TestParseDeviceInfoPriority(t *testing.T) {
	payload := "DeviceName=Plain\n~DeviceName=Tilde\nDeviceName=Other\nFWVersion=1\nFWVersion=2"
	info := ParseDeviceInfo(payload)
	if info.Model != "Tilde" {
		t.Errorf("expected tilde variant to win, got %q", info.Model)
	}
	if info.Firmware != "1" {
		t.Errorf("expected first FWVersion, got %q", info.Firmware)
	}

	info = ParseDeviceInfo("DeviceName=Plain\nDeviceName=Other")
	if info.Model != "Plain" || info.Firmware != "" {
		t.Errorf("unexpected info %+v", info)
	}
	if !ParseDeviceInfo("MAC=1").Empty() {
		t.Error("expected empty info for payload without identity fields")
	}
}

func TestParseResultsFieldOrder(t *testing.T) {
	tests := []struct {
		name, body, payload string
		ret                 int
	}{
		{"return after cmd", "ID=1&CMD=INFO&Return=0", "INFO", 0},
		{"return last", "ID=1&CMD=REBOOT&Return=-1", "REBOOT", -1},
		{"ampersand inside cmd", "ID=1&Return=0&CMD=DATA&USER", "DATA&USER", 0},
		{"return after cmd with payload lines", "ID=1&CMD=INFO&Return=0\n~DeviceName=MB460\n", "INFO\n~DeviceName=MB460", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := ParseResults(tt.body)
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %+v", results)
			}
			r := results[0]
			if r.ID != "1" || r.Return != tt.ret || r.Payload != tt.payload {
				t.Errorf("got %+v, want Return=%d Payload=%q", r, tt.ret, tt.payload)
			}
		})
	}
}
