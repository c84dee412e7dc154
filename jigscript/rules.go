package jigscript

// rules.go contains the declarative rule table mapping jig script output
// to progress events.

import (
	"regexp"
	"strconv"

	"github.com/flashjig/flashjig/model"
)

// rule matches one textual marker. build receives the submatches of the
// pattern and the active channel and returns the event to emit, or false
// when the match must be ignored.
type rule struct {
	name    string
	pattern *regexp.Regexp
	build   func(m []string, active int) (model.Event, bool)
	// sets the active channel from the first submatch
	selects bool
	// needs an active channel to be attributed to
	needsChannel bool
}

// family groups rules of which at most one may fire per line. Rules are
// tried in order, failures before successes.
type family struct {
	name  string
	rules []rule
}

func channelRule(name, pattern string, ctor func(int) model.Event) rule {
	return rule{
		name:    name,
		pattern: regexp.MustCompile(pattern),
		selects: true,
		build: func(m []string, _ int) (model.Event, bool) {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 {
				return model.Event{}, false
			}
			return ctor(n), true
		},
	}
}

func checkRule(check string, passed bool, pattern string) rule {
	return rule{
		name:         check,
		pattern:      regexp.MustCompile(pattern),
		needsChannel: true,
		build: func(_ []string, active int) (model.Event, bool) {
			return model.CheckResult(active, check, passed), true
		},
	}
}

func outcomeRule(name string, success bool, pattern string) rule {
	return rule{
		name:         name,
		pattern:      regexp.MustCompile(pattern),
		needsChannel: true,
		build: func(_ []string, active int) (model.Event, bool) {
			return model.FlashOutcome(active, success), true
		},
	}
}

const (
	failWord     = `(?:[Ff]ailed|FAILED|FAIL|[Ee]rror|ERROR)`
	leadingFail  = `^\W*(?:ERROR|Error|FAIL(?:ED)?|Failed)\b`
	outOfRange   = `(?:out of range|` + failWord + `)`
	voltageValue = `\s*[:=]\s*\d+(?:\.\d+)?`
)

// checkFamily builds the failure and success rules for one check. subject
// names the check in any of the script's spellings, the success spelling
// included, and a failure word anywhere after it marks a failure. A line
// that starts with a failure word also fails the check it names. bare
// matches the short forms that omit the check's qualifier, e.g. "HACC
// error".
func checkFamily(check, subject, bare, success string) family {
	failure := `\b(?:` + subject + `)\b.*\b` + failWord + `\b|` +
		leadingFail + `.*\b(?:` + subject + `)\b`
	if bare != "" {
		failure += `|\b` + bare + ` ` + failWord + `\b`
	}
	return family{
		name: check,
		rules: []rule{
			checkRule(check, false, failure),
			checkRule(check, true, success),
		},
	}
}

// voltageFamily builds the rules for a measured rail. Any reading is a pass
// unless the line reports it out of range or failed.
func voltageFamily(rail string) family {
	return family{
		name: rail,
		rules: []rule{
			checkRule(rail, false, `\b`+rail+`\b.*\b`+outOfRange+`\b|`+leadingFail+`.*\b`+rail+`\b`),
			checkRule(rail, true, `\b`+rail+voltageValue),
		},
	}
}

// Families are evaluated in this order. The channel family comes first so
// that markers later on the same line are attributed to the new channel.
var families = []family{
	{
		name: "channel",
		rules: []rule{
			channelRule("flashing", `Flashing board on channel (\d+)`, model.Flashing),
			channelRule("channel_selected", `Selecting channel (\d+)`, model.ChannelSelected),
		},
	},
	checkFamily("RTC configured",
		`RTC (?:configured|configure|config(?:uration)?)`, "",
		`\bRTC configured\b`),
	checkFamily("RTC initialized",
		`RTC (?:initiali[sz]ed|init(?:ialization)?)`, "RTC",
		`\bRTC initiali[sz]ed\b`),
	checkFamily("LACC initialized",
		`LACC (?:initiali[sz]ed|init(?:ialization)?|self[- ]test)`, "LACC",
		`\bLACC initiali[sz]ed\b`),
	checkFamily("HACC initialized",
		`HACC (?:initiali[sz]ed|init(?:ialization)?)`, "HACC",
		`\bHACC initiali[sz]ed\b`),
	checkFamily("PSRAM initialized",
		`PSRAM (?:initiali[sz]ed|init(?:ialization)?|test)`, "PSRAM",
		`\bPSRAM initiali[sz]ed\b`),
	checkFamily("exFlash initialized",
		`exFlash (?:initiali[sz]ed|init(?:ialization)?)`, "exFlash",
		`\bexFlash initiali[sz]ed\b`),
	checkFamily("Ext NFC configured",
		`Ext NFC (?:configured|configuring|config(?:uration)?)`, "",
		`\bExt NFC configured\b`),
	checkFamily("Ext NFC initialized",
		`Ext NFC (?:initiali[sz]ed|init(?:ialization)?)`, "Ext NFC",
		`\bExt NFC initiali[sz]ed\b`),
	voltageFamily("VSC_V"),
	voltageFamily("VMC_V"),
	{
		name: "outcome",
		rules: []rule{
			outcomeRule("no_data", false, `\b(?:No data|no data received)\b`),
			outcomeRule("timeout", false, `\bTimeout (?:waiting|reading|on|while|after)\b|\b[Tt]imeout error\b|\btimed out\b`),
			outcomeRule("comm_error", false, `\b[Cc]ommunication error\b`),
			outcomeRule("flash_failed", false, `\bFlash(?:ing)? failed\b`),
			outcomeRule("data_saved", true, `\b[Dd]ata saved\b`),
			outcomeRule("flash_complete", true, `\bFlash(?:ing)? complete\b`),
		},
	},
}
