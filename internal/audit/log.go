// Package audit is the append-only decision and execution record. Each
// entry's prev_hash is the SHA-256 of the previous JSON line, forming a
// tamper-evident chain. The logger is the only writer; a failed write is
// surfaced to the caller, never swallowed, because losing the audit trail
// for a denied dangerous action is itself a security-relevant event.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/toolwarden/toolwarden/internal/capability"
)

// GenesisHash is the prev_hash for the first entry in a new audit log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// Log is an append-only JSONL audit log with SHA-256 hash chaining.
type Log struct {
	path     string
	file     *os.File
	prevHash string
	mu       sync.Mutex
}

// Open opens (or creates) an audit log file for appending. If the file
// already exists, the last line is read to recover the chain tail.
func Open(path string) (*Log, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	prevHash := GenesisHash

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("audit: read existing log: %w", err)
		}
		scanner := bufio.NewScanner(f)
		var lastLine []byte
		for scanner.Scan() {
			lastLine = make([]byte, len(scanner.Bytes()))
			copy(lastLine, scanner.Bytes())
		}
		f.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("audit: scan existing log: %w", err)
		}
		if len(lastLine) > 0 {
			prevHash = HashLine(lastLine)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}

	return &Log{
		path:     path,
		file:     file,
		prevHash: prevHash,
	}, nil
}

// Record appends an entry with hash chaining. It assigns the id, timestamp
// (if empty), and prev_hash, then writes and syncs the line. The caller's
// own write is durable on return.
func (l *Log) Record(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	}
	entry.PrevHash = l.prevHash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}

	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}

	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}

	l.prevHash = HashLine(line)
	return nil
}

// SecurityEvent records a decision made by any policy layer.
func (l *Log) SecurityEvent(toolID, eventKind, outcome string, details Details) error {
	return l.Record(Entry{
		ToolID:    toolID,
		EventKind: eventKind,
		Outcome:   outcome,
		Details:   details,
	})
}

// CapabilityDenied records a capability-insufficiency denial with the full
// missing set.
func (l *Log) CapabilityDenied(toolID string, missing []capability.Capability) error {
	names := make([]string, len(missing))
	for i, c := range missing {
		names[i] = c.String()
	}
	return l.Record(Entry{
		ToolID:    toolID,
		EventKind: EventCapabilityDenied,
		Outcome:   OutcomeBlocked,
		Details: Details{
			Reason:  "required capabilities not granted",
			Missing: names,
		},
	})
}

// PluginExecution records the outcome of a tool body run. The raw input is
// never logged; only its digest.
func (l *Log) PluginExecution(toolID, inputDigest string, success bool, duration time.Duration) error {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailure
	}
	return l.Record(Entry{
		ToolID:     toolID,
		EventKind:  EventPluginExecution,
		Outcome:    outcome,
		DurationMS: duration.Milliseconds(),
		Details:    Details{InputDigest: inputDigest},
	})
}

// SnapshotMigration records a state snapshot migration performed by another
// subsystem reusing the audit substrate.
func (l *Log) SnapshotMigration(fromVersion, toVersion int, detail string) error {
	return l.Record(Entry{
		ToolID:    "state",
		EventKind: EventSnapshotMigration,
		Outcome:   OutcomeSuccess,
		Details: Details{
			Extra: fmt.Sprintf("migrated snapshot v%d -> v%d: %s", fromVersion, toVersion, detail),
		},
	})
}

// DigestInput returns the sha256 digest used in execution records.
func DigestInput(input string) string {
	h := sha256.Sum256([]byte(input))
	return "sha256:" + hex.EncodeToString(h[:8])
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
