package audit

// Event kinds recorded in the log.
const (
	EventPolicyDecision    = "policy_decision"
	EventCapabilityDenied  = "capability_denied"
	EventSafetyScan        = "safety_scan"
	EventAutonomyDecision  = "autonomy_decision"
	EventPluginExecution   = "plugin_execution"
	EventKillSwitch        = "killswitch"
	EventPairing           = "pairing"
	EventSnapshotMigration = "snapshot_migration"
	EventTamper            = "tamper"
)

// Outcomes recorded in the log.
const (
	OutcomeAllowed = "allowed"
	OutcomeBlocked = "blocked"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Details is the structured payload of an audit entry. All fields are
// typed (no map[string]any) so json.Marshal field order is deterministic
// and line hashes are reproducible.
type Details struct {
	Layer          string   `json:"layer,omitempty"`
	Reason         string   `json:"reason,omitempty"`
	Missing        []string `json:"missing_capabilities,omitempty"`
	Risk           string   `json:"risk,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	InputDigest    string   `json:"input_digest,omitempty"`
	Extra          string   `json:"extra,omitempty"`
}

// Entry is one line in the hash-chained JSONL audit log. Entries are
// immutable once written; ordering matches wall-clock issuance order
// within the process.
type Entry struct {
	ID         string  `json:"id"`
	Timestamp  string  `json:"ts"`
	ToolID     string  `json:"tool_id"`
	EventKind  string  `json:"event"`
	Outcome    string  `json:"outcome"`
	DurationMS int64   `json:"duration_ms,omitempty"`
	Details    Details `json:"details"`
	PrevHash   string  `json:"prev_hash"`
}
