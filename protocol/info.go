package protocol

import "strings"

// DeviceInfo holds the identity fields a terminal reports in an INFO
// result.
type DeviceInfo struct {
	Model    string
	Firmware string
}

func (d DeviceInfo) Empty() bool {
	return d.Model == "" && d.Firmware == ""
}

// ParseDeviceInfo scans an INFO payload. The first match wins per field and
// "~DeviceName=" takes priority over "DeviceName=".
func ParseDeviceInfo(payload string) DeviceInfo {
	var info DeviceInfo
	var plainName string
	for _, ln := range strings.Split(strings.ReplaceAll(payload, "\r\n", "\n"), "\n") {
		for _, part := range strings.Split(ln, "\t") {
			part = strings.TrimSpace(part)
			switch {
			case strings.HasPrefix(part, "~DeviceName="):
				if info.Model == "" {
					info.Model = strings.TrimSpace(strings.TrimPrefix(part, "~DeviceName="))
				}
			case strings.HasPrefix(part, "DeviceName="):
				if plainName == "" {
					plainName = strings.TrimSpace(strings.TrimPrefix(part, "DeviceName="))
				}
			case strings.HasPrefix(part, "FWVersion="):
				if info.Firmware == "" {
					info.Firmware = strings.TrimSpace(strings.TrimPrefix(part, "FWVersion="))
				}
			}
		}
	}
	if info.Model == "" {
		info.Model = plainName
	}
	return info
}
