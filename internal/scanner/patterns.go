package scanner

import "regexp"

// defaultBlockedSubstrings are the always-on dangerous argument fragments,
// matched case-insensitively as substrings.
var defaultBlockedSubstrings = []string{
	"rm -rf",
	"drop table",
	"format /",
	"shutdown",
	"mkfs.",
	"dd if=/dev/zero",
	"> /dev/sda",
	"chmod -r 777 /",
	"curl | sh",
	"curl|sh",
	"wget | sh",
	"wget|sh",
}

// injectionPatterns match prompt-injection phrasing in tool input.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?(previous|prior|above) (instructions|rules|prompts)`),
	regexp.MustCompile(`(?i)disregard (your|the) (system prompt|instructions|guidelines)`),
	regexp.MustCompile(`(?i)you are now (dan|in developer mode|unrestricted)`),
	regexp.MustCompile(`(?i)pretend (you have|to have) no (restrictions|rules|guardrails)`),
	regexp.MustCompile(`(?i)reveal (your|the) (system prompt|hidden instructions)`),
	regexp.MustCompile(`(?i)\bjailbreak\b`),
	regexp.MustCompile(`(?i)do anything now`),
	regexp.MustCompile(`(?i)disable (the )?(safety|policy|guardrail)`),
}

// secretPatterns match credential values embedded in tool input, which
// usually means an exfiltration attempt through an outbound tool.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9\-]{20,}`),
	regexp.MustCompile(`gsk_[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-_.]{20,}`),
	regexp.MustCompile(`\b[a-f0-9]{64,}\b`),
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
}

// maxInputBytes is the input size above which a finding is raised.
// Oversized input is a common smuggling vector for injected payloads.
const maxInputBytes = 64 * 1024
