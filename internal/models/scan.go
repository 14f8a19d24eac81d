package models

import (
	"fmt"
	"strings"
)

type ScanType string

const (
	ScanSpotCheck   ScanType = "spot_check"
	ScanDroneFlight ScanType = "drone_flight"
	ScanLive        ScanType = "live_scan"
)

// ParseScanType accepts the wire names as well as the quick-check, deep-scan
// and continuous-monitoring aliases used by the upload forms.
func ParseScanType(s string) (ScanType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spot_check", "quick-check", "quick_check":
		return ScanSpotCheck, nil
	case "drone_flight", "deep-scan", "deep_scan":
		return ScanDroneFlight, nil
	case "live_scan", "continuous-monitoring", "continuous_monitoring":
		return ScanLive, nil
	}
	return "", fmt.Errorf("unknown scan type %q", s)
}

func (t ScanType) Valid() bool {
	switch t {
	case ScanSpotCheck, ScanDroneFlight, ScanLive:
		return true
	}
	return false
}

// Label is the human readable name used in alert messages.
func (t ScanType) Label() string {
	switch t {
	case ScanSpotCheck:
		return "Spot Check"
	case ScanDroneFlight:
		return "Drone Scan"
	default:
		return "Live Scan"
	}
}
