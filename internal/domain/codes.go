package domain

import "strings"

var warningCodes = map[string]string{
	"BZW": "Blizzard Warning",
	"EWW": "Extreme Wind Warning",
	"CFW": "Coastal Flood Warning",
	"DSW": "Dust Storm Warning",
	"FFW": "Flash Flood Warning",
	"FLW": "Flood Warning",
	"HWW": "High Wind Warning",
	"HUW": "Hurricane Warning",
	"SVR": "Severe Thunderstorm Warning",
	"SMW": "Special Marine Warning",
	"MAW": "Special Marine Warning",
	"SSW": "Storm Surge Warning",
	"SRW": "Storm Warning",
	"TOR": "Tornado Warning",
	"TSW": "Tsunami Warning",
	"TRW": "Tropical Storm Warning",
	"WSW": "Winter Storm Warning",
	"AVW": "Avalanche Warning",
	"FRW": "Fire Warning",
	"EQW": "Earthquake Warning",
	"VOW": "Volcano Warning",
	"SQW": "Snow Squall Warning",
	"UPW": "Heavy Freezing Spray Warning",
	"FAW": "Areal Flood Warning",
	"ECW": "Extreme Cold Warning",
	"LEW": "Lake Effect Snow Warning",
	"ISW": "Ice Storm Warning",
}

var watchCodes = map[string]string{
	"TOA": "Tornado Watch",
	"SVA": "Severe Thunderstorm Watch",
	"FFA": "Flash Flood Watch",
	"HUA": "Hurricane Watch",
	"TRA": "Tropical Storm Watch",
	"WSA": "Winter Storm Watch",
	"BZA": "Blizzard Watch",
}

// IsTrackedEventCode reports whether a three-letter NWS event code is on the
// warning or watch allow-list.
func IsTrackedEventCode(code string) bool {
	code = strings.ToUpper(code)
	_, w := warningCodes[code]
	_, a := watchCodes[code]
	return w || a
}

// EventCodeName returns the human-readable name of an event code, or "Unknown".
func EventCodeName(code string) string {
	code = strings.ToUpper(code)
	if name, ok := warningCodes[code]; ok {
		return name
	}
	if name, ok := watchCodes[code]; ok {
		return name
	}
	return "Unknown"
}
