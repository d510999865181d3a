// Package vault stores one BIP39 mnemonic per directory, encrypted under a
// password, and keeps it in memory while unlocked.
//
// A Vault owns its unlocked state in a single goroutine. Explicit calls and
// auto-lock timer expiry are both delivered to that goroutine as messages, and
// the loop only listens on the timer belonging to the current unlock, so a
// timer from an earlier unlock can never lock a newer one.
//
// Key derivation and file I/O run on the caller's goroutine, serialised per
// Vault, so IsUnlocked and Mnemonic never wait for a slow unlock.
package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forest6511/seedvault/pkg/audit"
	"github.com/forest6511/seedvault/pkg/crypto"
	"github.com/forest6511/seedvault/pkg/mnemonic"
)

// Lock reasons, used in logs and audit records.
const (
	reasonExplicit = "explicit"
	reasonAutoLock = "auto_lock"
	reasonReplaced = "replaced"
	reasonDeleted  = "deleted"
	reasonClosed   = "closed"
)

// Options configures a Vault. The zero value is usable.
type Options struct {
	// Store persists containers; nil selects a FileStore.
	Store Store

	// Suite and KDF select how new containers are encrypted. Zero values
	// select AES-256-GCM and Argon2id with crypto.DefaultKDFParams.
	// Existing containers are always opened with the parameters they carry.
	Suite crypto.Suite
	KDF   crypto.KDFParams

	// Logger receives state transitions and advisory warnings. Never secrets.
	Logger *slog.Logger

	// Audit enables the per-directory HMAC-chained audit log.
	Audit bool
	// AuditSource is recorded as the actor source; defaults to audit.SourceCLI.
	AuditSource string

	// Throttle enables a cooldown after repeated wrong passwords.
	// nil disables it.
	Throttle *ThrottlePolicy

	// now is overridden in tests.
	now func() time.Time
}

// Status is a snapshot of the runtime state.
type Status struct {
	Unlocked   bool
	Dir        string
	UnlockedAt time.Time
	ExpiresAt  time.Time // zero when auto-lock is disabled
}

// state is owned by the run goroutine.
type state struct {
	phrase     []byte
	dir        string
	unlockedAt time.Time
	expiresAt  time.Time
	timer      *time.Timer
	audit      *audit.Logger
}

// Vault is an explicit, injectable identity vault.
type Vault struct {
	store    Store
	seal     crypto.SealOptions
	log      *slog.Logger
	audit    bool
	source   string
	session  string
	throttle *ThrottlePolicy
	now      func() time.Time

	ioMu sync.Mutex // serialises KDF work and file I/O

	reqs      chan func(*state)
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New returns a locked Vault and starts its owner goroutine.
// Call Close to lock and release it.
func New(opts Options) *Vault {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	store := opts.Store
	if store == nil {
		store = NewFileStore(logger)
	}
	source := opts.AuditSource
	if source == "" {
		source = audit.SourceCLI
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}

	v := &Vault{
		store:    store,
		seal:     crypto.SealOptions{KDF: opts.KDF, Suite: opts.Suite},
		log:      logger,
		audit:    opts.Audit,
		source:   source,
		session:  uuid.NewString(),
		throttle: opts.Throttle,
		now:      now,
		reqs:     make(chan func(*state)),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go v.run()
	return v
}

func (v *Vault) run() {
	defer close(v.stopped)

	var st state
	for {
		var expired <-chan time.Time
		if st.timer != nil {
			expired = st.timer.C
		}

		select {
		case fn := <-v.reqs:
			fn(&st)
		case <-expired:
			v.lockState(&st, reasonAutoLock)
		case <-v.quit:
			v.lockState(&st, reasonClosed)
			return
		}
	}
}

// do runs fn on the owner goroutine and waits for it to finish.
func (v *Vault) do(fn func(*state)) error {
	done := make(chan struct{})
	req := func(st *state) {
		defer close(done)
		fn(st)
	}

	select {
	case v.reqs <- req:
		<-done
		return nil
	case <-v.quit:
		return ErrClosed
	}
}

func (v *Vault) closed() bool {
	select {
	case <-v.quit:
		return true
	default:
		return false
	}
}

// Close locks the vault and stops its goroutine. Later calls fail with
// ErrClosed; queries report a locked vault.
func (v *Vault) Close() {
	v.closeOnce.Do(func() { close(v.quit) })
	<-v.stopped
}

// lockState wipes the held phrase and disarms the timer. No-op when locked.
func (v *Vault) lockState(st *state, reason string) {
	if st.phrase == nil {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	crypto.SecureWipe(st.phrase)

	if st.audit != nil {
		op := audit.OpLock
		if reason == reasonAutoLock {
			op = audit.OpAutoLock
		}
		if err := st.audit.Log(op, v.source, audit.ResultSuccess, nil, map[string]string{"reason": reason}); err != nil {
			v.log.Warn("failed to write audit record", "op", op, "error", err)
		}
		st.audit.ClearKey()
	}

	v.log.Info("vault locked", "dir", st.dir, "reason", reason)
	*st = state{}
}

// Create generates a new mnemonic of the given strength in bits (0 selects
// 256), stores it encrypted under password and returns it. The phrase is not
// kept in memory and the lock state does not change.
func (v *Vault) Create(dir, password string, strength int) (string, error) {
	if strength == 0 {
		strength = mnemonic.DefaultStrength
	}

	v.ioMu.Lock()
	defer v.ioMu.Unlock()
	if v.closed() {
		return "", ErrClosed
	}

	if exists, err := v.occupied(dir); err != nil {
		return "", err
	} else if exists {
		return "", ErrVaultAlreadyExists
	}

	phrase, err := mnemonic.Generate(strength)
	if err != nil {
		return "", err
	}

	if err := v.persist(dir, password, []byte(phrase)); err != nil {
		return "", err
	}
	v.startAudit(dir, []byte(phrase), audit.OpCreate, map[string]string{"strength": fmt.Sprint(strength)})
	v.log.Info("vault created", "dir", dir, "strength", strength)

	return phrase, nil
}

// Import stores an existing mnemonic encrypted under password. An existing
// container is replaced only when overwrite is set. The phrase is stored
// normalised. A runtime holding dir is locked once the container is
// replaced; otherwise the lock state does not change.
func (v *Vault) Import(dir, password, phrase string, overwrite bool) error {
	if !mnemonic.Validate(phrase) {
		return ErrInvalidMnemonic
	}
	normalized := []byte(mnemonic.Normalize(phrase))
	defer crypto.SecureWipe(normalized)

	v.ioMu.Lock()
	defer v.ioMu.Unlock()
	if v.closed() {
		return ErrClosed
	}

	if !overwrite {
		if exists, err := v.occupied(dir); err != nil {
			return err
		} else if exists {
			return ErrVaultAlreadyExists
		}
	}

	if err := v.persist(dir, password, normalized); err != nil {
		return err
	}
	// The held phrase no longer matches the container.
	if err := v.do(func(st *state) {
		if st.phrase != nil && st.dir == dir {
			v.lockState(st, reasonReplaced)
		}
	}); err != nil {
		return err
	}
	v.startAudit(dir, normalized, audit.OpImport, map[string]string{"overwrite": fmt.Sprint(overwrite)})
	v.log.Info("vault imported", "dir", dir, "overwrite", overwrite)
	return nil
}

// Unlock decrypts the container in dir and holds the phrase in memory,
// replacing any previously unlocked vault. With autoLock > 0 the vault locks
// itself after that duration; autoLock <= 0 disables expiry.
// A wrong password returns ErrIncorrectPassword and leaves the state unchanged.
func (v *Vault) Unlock(dir, password string, autoLock time.Duration) error {
	v.ioMu.Lock()
	defer v.ioMu.Unlock()
	if v.closed() {
		return ErrClosed
	}

	phrase, err := v.open(dir, password)
	if err != nil {
		v.log.Info("unlock failed", "dir", dir, "error", err)
		return err
	}

	logger := v.auditLogger(dir, phrase)

	err = v.do(func(st *state) {
		v.lockState(st, reasonReplaced)

		now := v.now()
		st.phrase = phrase
		st.dir = dir
		st.unlockedAt = now
		st.audit = logger
		// Recorded before the timer exists so auto_lock always follows it.
		if logger != nil {
			ctx := map[string]string{"auto_lock": autoLock.String()}
			if err := logger.Log(audit.OpUnlock, v.source, audit.ResultSuccess, nil, ctx); err != nil {
				v.log.Warn("failed to write audit record", "op", audit.OpUnlock, "error", err)
			}
		}
		if autoLock > 0 {
			st.timer = time.NewTimer(autoLock)
			st.expiresAt = now.Add(autoLock)
		}
	})
	if err != nil {
		crypto.SecureWipe(phrase)
		if logger != nil {
			logger.ClearKey()
		}
		return err
	}

	v.log.Info("vault unlocked", "dir", dir, "auto_lock", autoLock)
	checkPermissions(v.log, dir, v.store.Path(dir))
	return nil
}

// Lock erases the held phrase. Locking a locked vault is a no-op.
func (v *Vault) Lock() {
	_ = v.do(func(st *state) {
		v.lockState(st, reasonExplicit)
	})
}

// IsUnlocked reports whether a phrase is currently held.
func (v *Vault) IsUnlocked() bool {
	var unlocked bool
	_ = v.do(func(st *state) {
		unlocked = st.phrase != nil
	})
	return unlocked
}

// Mnemonic returns the held phrase, or "" when locked. It never fails, so it
// is safe for passive polling.
func (v *Vault) Mnemonic() string {
	var phrase string
	_ = v.do(func(st *state) {
		if st.phrase != nil {
			phrase = string(st.phrase)
		}
	})
	return phrase
}

// ExportMnemonic returns the held phrase, or ErrVaultLocked when locked.
// Unlike Mnemonic the call is audited.
func (v *Vault) ExportMnemonic() (string, error) {
	var phrase string
	err := v.do(func(st *state) {
		if st.phrase == nil {
			return
		}
		phrase = string(st.phrase)
		if st.audit != nil {
			if err := st.audit.LogSuccess(audit.OpExport, v.source); err != nil {
				v.log.Warn("failed to write audit record", "op", audit.OpExport, "error", err)
			}
		}
	})
	if err != nil {
		return "", err
	}
	if phrase == "" {
		return "", ErrVaultLocked
	}
	return phrase, nil
}

// LogAudit appends op to the audit log of the unlocked vault. It is a no-op
// when auditing is disabled and fails with ErrVaultLocked when locked.
func (v *Vault) LogAudit(op string, ctx map[string]string) error {
	var lerr error
	err := v.do(func(st *state) {
		if st.phrase == nil {
			lerr = ErrVaultLocked
			return
		}
		if st.audit != nil {
			lerr = st.audit.Log(op, v.source, audit.ResultSuccess, nil, ctx)
		}
	})
	if err != nil {
		return err
	}
	return lerr
}

// Status returns a snapshot of the runtime state.
func (v *Vault) Status() Status {
	var s Status
	_ = v.do(func(st *state) {
		s = Status{
			Unlocked:   st.phrase != nil,
			Dir:        st.dir,
			UnlockedAt: st.unlockedAt,
			ExpiresAt:  st.expiresAt,
		}
	})
	return s
}

// Exists reports whether dir holds a readable container.
func (v *Vault) Exists(dir string) bool {
	return v.store.Exists(dir)
}

// ChangePassword re-encrypts the mnemonic in dir under newPassword with a
// fresh salt and nonce. The container is untouched when oldPassword is wrong.
// The runtime state does not change.
func (v *Vault) ChangePassword(dir, oldPassword, newPassword string) error {
	v.ioMu.Lock()
	defer v.ioMu.Unlock()
	if v.closed() {
		return ErrClosed
	}

	phrase, err := v.open(dir, oldPassword)
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(phrase)

	if err := v.persist(dir, newPassword, phrase); err != nil {
		return err
	}

	if !v.logHeld(dir, audit.OpPasswordChange, nil) {
		if logger := v.auditLogger(dir, phrase); logger != nil {
			if err := logger.LogSuccess(audit.OpPasswordChange, v.source); err != nil {
				v.log.Warn("failed to write audit record", "op", audit.OpPasswordChange, "error", err)
			}
			logger.ClearKey()
		}
	}
	v.log.Info("vault password changed", "dir", dir)
	return nil
}

// Delete removes the container in dir after checking password, and locks
// the runtime. The container is untouched when the password is wrong.
func (v *Vault) Delete(dir, password string) error {
	v.ioMu.Lock()
	defer v.ioMu.Unlock()
	if v.closed() {
		return ErrClosed
	}

	phrase, err := v.open(dir, password)
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(phrase)

	if err := v.store.Delete(dir); err != nil {
		return err
	}

	if err := v.do(func(st *state) { v.lockState(st, reasonDeleted) }); err != nil {
		return err
	}

	if err := clearLockState(dir); err != nil {
		v.log.Warn("failed to clear lock state", "dir", dir, "error", err)
	}
	if logger := v.auditLogger(dir, phrase); logger != nil {
		if err := logger.LogSuccess(audit.OpDelete, v.source); err != nil {
			v.log.Warn("failed to write audit record", "op", audit.OpDelete, "error", err)
		}
		logger.ClearKey()
	}
	v.log.Info("vault deleted", "dir", dir)
	return nil
}

// RemainingCooldown returns how long password checks on dir stay blocked.
// Always zero when throttling is disabled.
func (v *Vault) RemainingCooldown(dir string) time.Duration {
	if v.throttle == nil {
		return 0
	}
	remaining, err := remainingCooldown(dir, v.now())
	if err != nil {
		return 0
	}
	return remaining
}

// AuditLog returns a reader for the audit log of dir. Listing needs no key;
// verifying requires an unlocked vault, see VerifyAudit.
func (v *Vault) AuditLog(dir string) *audit.Logger {
	return audit.NewLogger(filepath.Join(dir, audit.DirName), v.session)
}

// VerifyAudit checks the audit chain of the currently unlocked vault.
func (v *Vault) VerifyAudit() (*audit.VerifyResult, error) {
	var (
		result *audit.VerifyResult
		verr   error
	)
	err := v.do(func(st *state) {
		if st.phrase == nil {
			verr = ErrVaultLocked
			return
		}
		logger := v.AuditLog(st.dir)
		if verr = setAuditKey(logger, st.phrase); verr != nil {
			return
		}
		defer logger.ClearKey()
		result, verr = logger.Verify()
	})
	if err != nil {
		return nil, err
	}
	return result, verr
}

// occupied reports whether dir already holds a container, readable or not.
func (v *Vault) occupied(dir string) (bool, error) {
	_, err := v.store.Read(dir)
	switch {
	case err == nil, errors.Is(err, ErrCorruptVault):
		return true, nil
	case errors.Is(err, ErrVaultNotFound):
		return false, nil
	default:
		return false, err
	}
}

// open reads and decrypts the container in dir. Wrong passwords and
// authentication failures both map to ErrIncorrectPassword.
func (v *Vault) open(dir, password string) ([]byte, error) {
	if v.throttle != nil {
		remaining, err := remainingCooldown(dir, v.now())
		if err != nil {
			return nil, err
		}
		if remaining > 0 {
			return nil, fmt.Errorf("%w: please wait %v", ErrCooldownActive, remaining.Round(time.Second))
		}
	}

	c, err := v.store.Read(dir)
	if err != nil {
		return nil, err
	}
	env, err := c.envelope()
	if err != nil {
		return nil, err
	}

	phrase, err := crypto.Open([]byte(password), env)
	switch {
	case errors.Is(err, crypto.ErrDecryptionFailed):
		return nil, v.failedAttempt(dir)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrCorruptVault, err)
	}

	if !mnemonic.Validate(string(phrase)) {
		crypto.SecureWipe(phrase)
		return nil, fmt.Errorf("%w: stored phrase fails checksum", ErrCorruptVault)
	}

	if v.throttle != nil {
		if err := clearLockState(dir); err != nil {
			v.log.Warn("failed to clear lock state", "dir", dir, "error", err)
		}
	}
	return phrase, nil
}

func (v *Vault) failedAttempt(dir string) error {
	if v.throttle == nil {
		return ErrIncorrectPassword
	}
	cooldown, err := v.throttle.recordFailedAttempt(dir, v.now())
	if err != nil {
		v.log.Warn("failed to record failed attempt", "dir", dir, "error", err)
	}
	if cooldown > 0 {
		v.log.Warn("too many failed attempts, cooldown started", "dir", dir, "cooldown", cooldown)
		return fmt.Errorf("%w: cooldown activated for %v", ErrIncorrectPassword, cooldown.Round(time.Second))
	}
	return ErrIncorrectPassword
}

// persist encrypts phrase under password and writes a fresh container.
func (v *Vault) persist(dir, password string, phrase []byte) error {
	c, err := sealContainer(phrase, password, v.seal, v.now())
	if err != nil {
		return err
	}
	return v.store.Write(dir, c)
}

// auditLogger returns a keyed logger for dir, or nil when auditing is off
// or the key cannot be set up.
func (v *Vault) auditLogger(dir string, phrase []byte) *audit.Logger {
	if !v.audit {
		return nil
	}
	logger := v.AuditLog(dir)
	if err := setAuditKey(logger, phrase); err != nil {
		v.log.Warn("failed to initialise audit log", "dir", dir, "error", err)
		return nil
	}
	return logger
}

// logHeld writes op through the unlocked state's logger when that state
// holds dir, so the chain has a single writer. It reports whether it did.
func (v *Vault) logHeld(dir, op string, ctx map[string]string) bool {
	var held bool
	_ = v.do(func(st *state) {
		if st.phrase == nil || st.dir != dir || st.audit == nil {
			return
		}
		held = true
		if err := st.audit.Log(op, v.source, audit.ResultSuccess, nil, ctx); err != nil {
			v.log.Warn("failed to write audit record", "op", op, "error", err)
		}
	})
	return held
}

// startAudit archives any log left by a previous mnemonic in dir and records
// the first event of the new chain.
func (v *Vault) startAudit(dir string, phrase []byte, op string, ctx map[string]string) {
	if !v.audit {
		return
	}
	logger := v.AuditLog(dir)
	if archived, err := logger.Archive(); err != nil {
		v.log.Warn("failed to archive previous audit log", "dir", dir, "error", err)
		return
	} else if archived != "" {
		v.log.Info("archived previous audit log", "dir", dir, "archive", archived)
	}
	if err := setAuditKey(logger, phrase); err != nil {
		v.log.Warn("failed to initialise audit log", "dir", dir, "error", err)
		return
	}
	defer logger.ClearKey()
	if err := logger.Log(op, v.source, audit.ResultSuccess, nil, ctx); err != nil {
		v.log.Warn("failed to write audit record", "op", op, "error", err)
	}
}

func setAuditKey(logger *audit.Logger, phrase []byte) error {
	entropy, err := mnemonic.Entropy(string(phrase))
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(entropy)
	return logger.SetKey(entropy)
}

// DefaultDir returns ~/.seedvault.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("vault: cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".seedvault"), nil
}
