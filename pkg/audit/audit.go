// Package audit provides an append-only audit log with an HMAC chain for
// tamper detection.
//
// Each vault directory keeps its own log under audit/. The chain key is
// derived from the mnemonic's entropy, so only someone able to unlock the
// vault can append records or verify the chain. Records never contain
// mnemonic words or passwords.
package audit

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/forest6511/seedvault/internal/diskspace"
)

// DirName is the audit directory inside a vault directory.
const DirName = "audit"

const (
	chainStateFile = "audit.meta"
	genesis        = "genesis"
	hkdfInfo       = "seedvault-audit-v1"
	schemaVersion  = 1
)

// Operation types for audit logging
const (
	OpCreate         = "vault.create"
	OpImport         = "vault.import"
	OpUnlock         = "vault.unlock"
	OpLock           = "vault.lock"
	OpAutoLock       = "vault.auto_lock"
	OpPasswordChange = "vault.password_change"
	OpDelete         = "vault.delete"
	OpExport         = "mnemonic.export"
	OpBackupCreate   = "backup.create"
)

// Source identifies where the operation originated
const (
	SourceCLI   = "cli"
	SourceShell = "shell"
	SourceMCP   = "mcp"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// ErrNoKey is returned when writing or verifying before SetKey.
var ErrNoKey = errors.New("audit: HMAC key not set")

// Event is a single audit record.
type Event struct {
	Version   int               `json:"v"`
	ID        string            `json:"id"` // UUIDv7, time-ordered
	Timestamp string            `json:"ts"` // RFC 3339, nanosecond precision
	Operation string            `json:"op"`
	Actor     Actor             `json:"actor"`
	Result    string            `json:"result"`
	Error     *ErrorInfo        `json:"error,omitempty"`
	Context   map[string]string `json:"ctx,omitempty"`
	Chain     Chain             `json:"chain"`
}

// Time parses the event timestamp.
func (e *Event) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.Timestamp)
}

// Actor represents who performed the operation
type Actor struct {
	Source    string `json:"source"`
	SessionID string `json:"session_id"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain links a record to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// chainState is persisted in audit.meta so appends continue the chain
// across processes.
type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

// Logger appends events to monthly JSONL files in one directory.
type Logger struct {
	path      string
	sessionID string

	mu       sync.Mutex
	key      []byte
	sequence int64
	prevHash string
}

// NewLogger returns a logger for the directory path. An empty sessionID
// gets a fresh random one.
func NewLogger(path, sessionID string) *Logger {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Logger{
		path:      path,
		sessionID: sessionID,
		prevHash:  genesis,
	}
}

// Path returns the audit log directory path
func (l *Logger) Path() string {
	return l.path
}

// SessionID returns the session identifier stamped on every event.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// SetKey derives the chain key from the mnemonic entropy and loads the
// persisted chain position.
func (l *Logger) SetKey(entropy []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, entropy, nil, []byte(hkdfInfo)), key); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.wipeKey()
	l.key = key

	state, err := l.loadChainState()
	if err != nil {
		// first run, or state lost; Verify will report any gap
		state = &chainState{PrevHash: genesis}
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

// ClearKey wipes the chain key. Later writes fail with ErrNoKey.
func (l *Logger) ClearKey() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wipeKey()
}

// HasKey reports whether SetKey has been called since the last ClearKey.
func (l *Logger) HasKey() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.key != nil
}

func (l *Logger) wipeKey() {
	for i := range l.key {
		l.key[i] = 0
	}
	l.key = nil
}

// Log appends one event.
func (l *Logger) Log(op, source, result string, errInfo *ErrorInfo, ctx map[string]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.key == nil {
		return ErrNoKey
	}

	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("audit: failed to generate event id: %w", err)
	}

	event := Event{
		Version:   schemaVersion,
		ID:        id.String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		Actor: Actor{
			Source:    source,
			SessionID: l.sessionID,
		},
		Result:  result,
		Error:   errInfo,
		Context: ctx,
		Chain: Chain{
			Sequence: l.sequence + 1,
			PrevHash: l.prevHash,
		},
	}

	mac, err := l.sign(&event)
	if err != nil {
		return err
	}
	event.Chain.HMAC = mac

	line, err := json.Marshal(&event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := diskspace.Require(l.path, len(line)); errors.Is(err, diskspace.ErrInsufficient) {
		return fmt.Errorf("audit: %w", err)
	}
	if err := l.appendLine(line); err != nil {
		return err
	}

	l.sequence = event.Chain.Sequence
	l.prevHash = event.Chain.HMAC
	return l.saveChainState()
}

// LogSuccess is a convenience method for successful operations
func (l *Logger) LogSuccess(op, source string) error {
	return l.Log(op, source, ResultSuccess, nil, nil)
}

// LogError is a convenience method for failed operations
func (l *Logger) LogError(op, source, code, msg string) error {
	return l.Log(op, source, ResultError, &ErrorInfo{Code: code, Message: msg}, nil)
}

// sign computes the record MAC over the JSON encoding of the event with an
// empty HMAC field. Map keys are sorted by encoding/json, so the encoding is
// deterministic.
func (l *Logger) sign(event *Event) (string, error) {
	unsigned := *event
	unsigned.Chain.HMAC = ""
	data, err := json.Marshal(&unsigned)
	if err != nil {
		return "", fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	mac := hmac.New(sha256.New, l.key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (l *Logger) appendLine(line []byte) error {
	name := filepath.Join(l.path, time.Now().UTC().Format("2006-01")+".jsonl")
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return f.Sync()
}

func (l *Logger) loadChainState() (*chainState, error) {
	data, err := os.ReadFile(filepath.Join(l.path, chainStateFile))
	if err != nil {
		return nil, err
	}
	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.path, chainStateFile), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// Archive moves the current log files into a timestamped subdirectory and
// restarts the chain at genesis. Used when a directory gets a new mnemonic,
// since the old chain can no longer be verified with the new key.
func (l *Logger) Archive() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.logFiles()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(l.path, chainStateFile)); err == nil {
		files = append(files, filepath.Join(l.path, chainStateFile))
	}

	l.sequence = 0
	l.prevHash = genesis
	if len(files) == 0 {
		return "", nil
	}

	dest := filepath.Join(l.path, "archive-"+time.Now().UTC().Format("20060102T150405.000000000Z"))
	if err := os.MkdirAll(dest, 0700); err != nil {
		return "", fmt.Errorf("audit: failed to create archive directory: %w", err)
	}
	for _, f := range files {
		if err := os.Rename(f, filepath.Join(dest, filepath.Base(f))); err != nil {
			return "", fmt.Errorf("audit: failed to archive %s: %w", filepath.Base(f), err)
		}
	}
	return dest, nil
}

// VerifyResult contains the results of chain verification
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	FirstSequence   int64    `json:"first_sequence"` // above 1 once older records are pruned
	Errors          []string `json:"errors,omitempty"`
}

// Verify walks every record in order and checks sequence numbers,
// back-links and MACs.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.key == nil {
		return nil, ErrNoKey
	}

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true, FirstSequence: 1}
	expectedPrev := genesis
	expectedSeq := int64(1)

	// After Prune the chain resumes at the oldest kept record.
	if len(events) > 0 && events[0].Chain.Sequence > 1 {
		expectedSeq = events[0].Chain.Sequence
		expectedPrev = events[0].Chain.PrevHash
		result.FirstSequence = expectedSeq
	}

	for i := range events {
		event := &events[i]
		result.RecordsTotal++
		ok := true

		if event.Chain.Sequence != expectedSeq {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence gap at record %s: expected %d, got %d", event.ID, expectedSeq, event.Chain.Sequence))
		}
		if event.Chain.PrevHash != expectedPrev {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"chain broken at record %s", event.ID))
		}

		want, err := l.sign(event)
		if err != nil {
			return nil, err
		}
		if !hmac.Equal([]byte(want), []byte(event.Chain.HMAC)) {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"HMAC mismatch at record %s: possible tampering", event.ID))
		}

		if ok {
			result.RecordsVerified++
		} else {
			result.Valid = false
		}
		expectedPrev = event.Chain.HMAC
		expectedSeq = event.Chain.Sequence + 1
	}

	return result, nil
}

// List returns events in chronological order. limit keeps only the most
// recent events (0 = all); a non-zero since drops events at or before it.
// Listing does not need the chain key.
func (l *Logger) List(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	filtered := events[:0]
	for _, e := range events {
		if !since.IsZero() {
			ts, err := e.Time()
			if err != nil || !ts.After(since) {
				continue
			}
		}
		filtered = append(filtered, e)
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

// Export writes the events between since and until (zero = unbounded) to w
// as "json" or "csv".
func (l *Logger) Export(w io.Writer, format string, since, until time.Time) error {
	events, err := l.List(0, time.Time{})
	if err != nil {
		return err
	}

	var selected []Event
	for _, e := range events {
		ts, err := e.Time()
		if err != nil {
			continue
		}
		if (!since.IsZero() && ts.Before(since)) || (!until.IsZero() && ts.After(until)) {
			continue
		}
		selected = append(selected, e)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if selected == nil {
			selected = []Event{}
		}
		return enc.Encode(selected)
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"timestamp", "operation", "source", "result", "error"}); err != nil {
			return err
		}
		for _, e := range selected {
			code := ""
			if e.Error != nil {
				code = e.Error.Code
			}
			row := []string{e.Timestamp, e.Operation, e.Actor.Source, e.Result, code}
			for i := range row {
				row[i] = csvSafe(row[i])
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("audit: unsupported format: %s", format)
	}
}

// csvSafe prefixes fields that spreadsheet software would treat as formulas.
func csvSafe(field string) string {
	if field != "" && strings.ContainsRune("=+-@", rune(field[0])) {
		return "'" + field
	}
	return field
}

// Prune deletes events older than olderThan and returns how many were removed.
// Pruning breaks the chain from genesis, so Verify reports the first
// surviving record as a gap.
func (l *Logger) Prune(olderThan time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	files, err := l.logFiles()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return deleted, fmt.Errorf("audit: failed to read %s: %w", filepath.Base(file), err)
		}

		var keep []Event
		for _, e := range events {
			if olderThanCutoff(&e, cutoff) {
				deleted++
				continue
			}
			keep = append(keep, e)
		}

		switch {
		case len(keep) == len(events):
		case len(keep) == 0:
			if err := os.Remove(file); err != nil {
				return deleted, fmt.Errorf("audit: failed to delete %s: %w", filepath.Base(file), err)
			}
		default:
			if err := rewriteLogFile(file, keep); err != nil {
				return deleted, fmt.Errorf("audit: failed to rewrite %s: %w", filepath.Base(file), err)
			}
		}
	}
	return deleted, nil
}

// PrunePreview counts the events Prune would delete.
func (l *Logger) PrunePreview(olderThan time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	events, err := l.readAll()
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range events {
		if olderThanCutoff(&events[i], cutoff) {
			count++
		}
	}
	return count, nil
}

// olderThanCutoff is false for events with unparseable timestamps, so they
// are never pruned.
func olderThanCutoff(e *Event, cutoff time.Time) bool {
	ts, err := e.Time()
	return err == nil && ts.Before(cutoff)
}

// logFiles returns the monthly files; YYYY-MM names sort chronologically.
func (l *Logger) logFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (l *Logger) readAll() ([]Event, error) {
	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}
	var all []Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", filepath.Base(file), err)
		}
		all = append(all, events...)
	}
	return all, nil
}

func readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []Event
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, e)
	}
	return events, sc.Err()
}

func rewriteLogFile(path string, events []Event) error {
	var buf bytes.Buffer
	for i := range events {
		line, err := json.Marshal(&events[i])
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
