// Package scrub removes volatile fields from device configurations.
//
// Scrub(raw, platform) strips dynamic noise (uptimes, timestamps,
// regenerated certificates, ephemeral UUIDs) from a configuration before it
// is committed to Gitea, so a byte-equal scrub implies a no-op change. The
// transform is purely textual and stateless: it is idempotent and immune to
// vendor firmware drift that would break a semantic parser.
package scrub

import (
	"regexp"
	"strings"

	"github.com/agncf/netfortress/internal/models"
)

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Crypto PKI certificate blocks span multiple lines: the header line plus
// every following indented line, with blank lines allowed inside the block.
// RE2 has no lookahead, so each continuation unit is "any run of blank lines
// followed by an indented line"; a blank run not followed by indented content
// stays outside the match.
var cryptoPKIBlock = rule{
	re:   regexp.MustCompile(`(?m)^crypto pki certificate[^\n]*(?:(?:\n[ \t]*)*\n[ \t][^\n]*)*`),
	repl: "<crypto-pki-cert-block-removed>",
}

// ISO-8601-style timestamps, applied to every platform after the
// platform-specific rules. The pattern never crosses a line boundary.
var commonRules = []rule{
	{
		re:   regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?`),
		repl: "<timestamp>",
	},
}

var platformRules = map[models.Platform][]rule{
	models.PlatformIOS: {
		{regexp.MustCompile(`uptime is [^\n]+`), "uptime is <removed>"},
		{regexp.MustCompile(`Last configuration change at [^\n]+`), "Last configuration change at <removed>"},
		{regexp.MustCompile(`ntp clock-period \d+`), "ntp clock-period <removed>"},
		{regexp.MustCompile(`Current configuration : \d+ bytes`), "Current configuration : <removed> bytes"},
		cryptoPKIBlock,
	},
	models.PlatformNXOS: {
		{regexp.MustCompile(`System uptime:[^\n]+`), "System uptime: <removed>"},
		{regexp.MustCompile(`Last configuration change at [^\n]+`), "Last configuration change at <removed>"},
		{regexp.MustCompile(`serial-number: \S+`), "serial-number: <removed>"},
		{regexp.MustCompile(`module-number: \d+`), "module-number: <removed>"},
		cryptoPKIBlock,
	},
	models.PlatformEOS: {
		{regexp.MustCompile(`System uptime:[^\n]+`), "System uptime: <removed>"},
		{regexp.MustCompile(`Last configuration change at [^\n]+`), "Last configuration change at <removed>"},
		{regexp.MustCompile(`Management Hostname:[^\n]+`), "Management Hostname: <removed>"},
	},
	models.PlatformDellOS10: {
		{regexp.MustCompile(`Current date/time is[^\n]+`), "Current date/time is <removed>"},
		{regexp.MustCompile(`System uptime is [^\n]+`), "System uptime is <removed>"},
		{regexp.MustCompile(`Last configuration change on [^\n]+`), "Last configuration change on <removed>"},
	},
	models.PlatformPANOS: {
		{regexp.MustCompile(`<serial>.*?</serial>`), "<serial><removed></serial>"},
		{regexp.MustCompile(`<uptime>.*?</uptime>`), "<uptime><removed></uptime>"},
		{regexp.MustCompile(`<time>.*?</time>`), "<time><removed></time>"},
		{regexp.MustCompile(`<app-version>.*?</app-version>`), "<app-version><removed></app-version>"},
		{regexp.MustCompile(`<threat-version>.*?</threat-version>`), "<threat-version><removed></threat-version>"},
		{regexp.MustCompile(`<antivirus-version>.*?</antivirus-version>`), "<antivirus-version><removed></antivirus-version>"},
		{regexp.MustCompile(`<wildfire-version>.*?</wildfire-version>`), "<wildfire-version><removed></wildfire-version>"},
	},
	models.PlatformFortiOS: {
		{regexp.MustCompile(`uuid\s*=\s*"[^"]*"`), `uuid = "<removed>"`},
		{regexp.MustCompile(`timestamp\s*=\s*\d+`), "timestamp = <removed>"},
		{regexp.MustCompile(`lastupdate\s*=\s*\d+`), "lastupdate = <removed>"},
		{regexp.MustCompile(`build\s*=\s*\d+`), "build = <removed>"},
	},
}

// Scrub removes dynamic fields from raw config text for platform.
// Unknown platforms get only the common timestamp pass. IP addresses,
// interfaces, ACLs and every other non-volatile line are preserved verbatim.
// The result is trimmed of leading and trailing whitespace.
func Scrub(raw string, platform models.Platform) string {
	if raw == "" {
		return raw
	}

	scrubbed := raw
	for _, r := range platformRules[platform] {
		scrubbed = r.re.ReplaceAllString(scrubbed, r.repl)
	}
	for _, r := range commonRules {
		scrubbed = r.re.ReplaceAllString(scrubbed, r.repl)
	}

	return strings.TrimSpace(scrubbed)
}
