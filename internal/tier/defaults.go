package tier

import "github.com/toolwarden/toolwarden/internal/capability"

// toolDefault is one row of the static classification table.
type toolDefault struct {
	Tier     DangerTier
	Reason   string
	Requires capability.Set
}

// staticDefaults is the built-in tool classification table. Runtime overrides
// strictly supersede these rows; tools absent from both resolve to Safe.
var staticDefaults = map[string]toolDefault{
	"calculator": {
		Tier: Safe,
	},
	"datetime": {
		Tier: Safe,
	},
	"notes": {
		Tier:     Safe,
		Requires: capability.NewSet(capability.FilesystemWrite),
	},
	"text_analysis": {
		Tier: Safe,
	},
	"device_info": {
		Tier: Safe,
	},
	"personalization": {
		Tier:     Safe,
		Requires: capability.NewSet(capability.FilesystemWrite),
	},
	"web_search": {
		Tier:     ApprovalRequired,
		Reason:   "performs outbound network requests to arbitrary endpoints",
		Requires: capability.NewSet(capability.NetworkOutbound),
	},
	"file_manager": {
		Tier:     ApprovalRequired,
		Reason:   "reads and writes user files outside the app sandbox",
		Requires: capability.NewSet(capability.FilesystemRead, capability.FilesystemWrite),
	},
	"communication_hub": {
		Tier:   ApprovalRequired,
		Reason: "sends messages on the user's behalf",
		Requires: capability.NewSet(
			capability.ContactsRead,
			capability.SmsSend,
			capability.NetworkOutbound,
		),
	},
	"task_automation": {
		Tier:     ApprovalRequired,
		Reason:   "schedules actions that run without further confirmation",
		Requires: capability.NewSet(capability.NotificationPost),
	},
	"on_device_llm": {
		Tier:     ApprovalRequired,
		Reason:   "runs local model inference over arbitrary input",
		Requires: capability.NewSet(capability.ModelExecution),
	},
	"guidance_router": {
		Tier:     ApprovalRequired,
		Reason:   "routes prompts to an external model endpoint",
		Requires: capability.NewSet(capability.NetworkOutbound, capability.ModelExecution),
	},
	"telegram_bridge": {
		Tier:   OwnerOnly,
		Reason: "bridges external chat identities into the session",
		Requires: capability.NewSet(
			capability.NetworkOutbound,
			capability.ContactsRead,
		),
	},
	"sandbox_exec": {
		Tier:     OwnerOnly,
		Reason:   "executes arbitrary code, sandboxed or not",
		Requires: capability.NewSet(capability.CodeExecution),
	},
	"policy_guardrail": {
		Tier:   OwnerOnly,
		Reason: "mutates the enforcement policy itself",
	},
	"self_modification": {
		Tier:   Blocked,
		Reason: "rewrites application code at runtime",
		Requires: capability.NewSet(
			capability.CodeExecution,
			capability.FilesystemWrite,
		),
	},
}
