package protocol

import "testing"

func TestBuildHandshakeDefaults(t *testing.T) {
	got := BuildHandshake("SN123", Stamps{}, DefaultHandshakeOptions())
	want := "GET OPTION FROM: SN123\n" +
		"ATTLOGStamp=0\n" +
		"OPERLOGStamp=0\n" +
		"ATTPHOTOStamp=0\n" +
		"ErrorDelay=60\n" +
		"Delay=30\n" +
		"TransTimes=00:00;14:05\n" +
		"TransInterval=1\n" +
		"TransFlag=TransData AttLog\tOpLog\tAttPhoto\tEnrollUser\tChgUser\tEnrollFP\tChgFP\n" +
		"Realtime=1\n" +
		"Encrypt=0\n" +
		"ServerVer=2.0.1\n"
	if got != want {
		t.Errorf("unexpected handshake\n got: %q\nwant: %q", got, want)
	}
}

func TestBuildHandshakeStampsAndTimeZone(t *testing.T) {
	opts := DefaultHandshakeOptions()
	opts.TimeZone = "1"
	got := BuildHandshake("A", Stamps{AttLog: "9999", OperLog: "12", AttPhoto: ""}, opts)
	for _, want := range []string{"ATTLOGStamp=9999\n", "OPERLOGStamp=12\n", "ATTPHOTOStamp=0\n", "TimeZone=1\n"} {
		if !contains(got, want) {
			t.Errorf("handshake missing %q:\n%s", want, got)
		}
	}
}

func TestRenderPoll(t *testing.T) {
	if got := RenderPoll(nil); got != "OK\n" {
		t.Errorf("expected OK for empty queue, got %q", got)
	}
	got := RenderPoll([]PendingLine{
		{ID: "CMD_1", Command: "INFO"},
		{ID: "CMD_2", Command: "C:CMD_2:REBOOT"},
	})
	want := "C:CMD_1:INFO\nC:CMD_2:REBOOT\n"
	if got != want {
		t.Errorf("unexpected poll body %q, want %q", got, want)
	}
}

func TestFormatCommandLineOtherPrefix(t *testing.T) {
	got := FormatCommandLine("B", "C:A:INFO")
	if got != "C:B:C:A:INFO" {
		t.Errorf("only a matching prefix should be left alone, got %q", got)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
