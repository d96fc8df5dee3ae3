package lock

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/errs"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/sidecar"
)

// Suffix is appended to the name of every lock sidecar.
const Suffix = ".lock"

// A sidecar that cannot be parsed is treated as held for this long after
// its last modification, covering a writer that has not finished yet.
const corruptGrace = time.Minute

// asideSuffix marks a sidecar moved out of the way before its removal
const asideSuffix = ".aside"

var (
	ErrLocked       = fmt.Errorf("%w: file is locked", errs.ErrForbidden)
	ErrNotLocked    = fmt.Errorf("%w: file is not locked", errs.ErrForbidden)
	ErrInvalidToken = fmt.Errorf("%w: lock token does not match", errs.ErrForbidden)
)

// State represents the lock state of a path
type State int

const (
	StateUnlocked State = iota
	StateLocked
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateUnlocked:
		return "unlocked"
	case StateLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Settings configures the manager
type Settings struct {
	// Now returns the current time, time.Now when nil
	Now func() time.Time
	// NewToken generates lock tokens, id.NewLockToken when nil
	NewToken func() (id.LockToken, error)
	// OnStateChange is called whenever a path changes state
	OnStateChange func(p paths.Path, from State, to State)
}

// Record is a stored lock
type Record struct {
	Token  string
	Expiry time.Time // zero means the lock never expires
}

// Live reports whether the record still holds at now
func (r Record) Live(now time.Time) bool {
	return r.Expiry.IsZero() || now.Before(r.Expiry)
}

// Manager owns the lock sidecars of one file system
type Manager struct {
	fs       afero.Fs
	layout   sidecar.Layout
	stripes  *sidecar.Stripes
	settings Settings
}

// NewManager creates a manager over fsys, normally an afero.BasePathFs
// rooted at the locks directory
func NewManager(fsys afero.Fs, settings Settings) *Manager {
	if settings.Now == nil {
		settings.Now = time.Now
	}
	if settings.NewToken == nil {
		settings.NewToken = id.NewLockToken
	}
	return &Manager{
		fs:       fsys,
		layout:   sidecar.Layout{Suffix: Suffix},
		stripes:  sidecar.NewStripes(sidecar.DefaultStripes),
		settings: settings,
	}
}

// Lock acquires the lock of p and returns its token. A zero timeout
// creates a lock that never expires.
func (m *Manager) Lock(p paths.Path, timeout time.Duration) (string, error) {
	if timeout < 0 {
		return "", fmt.Errorf("%w: negative lock timeout", errs.ErrServer)
	}
	mu := m.stripes.For(p.String())
	mu.Lock()
	defer mu.Unlock()

	name := m.layout.File(p)
	if err := m.fs.MkdirAll(m.layout.Dir(p.Parent()), 0o755); err != nil {
		return "", fmt.Errorf("create lock directory: %w", err)
	}

	token, err := m.settings.NewToken()
	if err != nil {
		return "", err
	}
	rec := Record{Token: token.String()}
	if timeout > 0 {
		rec.Expiry = m.settings.Now().Add(timeout)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := m.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			if err := writeRecord(f, rec); err != nil {
				m.fs.Remove(name)
				return "", fmt.Errorf("write lock of %s: %w", p, err)
			}
			m.notify(p, StateUnlocked, StateLocked)
			return rec.Token, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("create lock of %s: %w", p, err)
		}
		if _, live, err := m.current(p); err != nil {
			return "", err
		} else if live {
			return "", ErrLocked
		}
	}
	return "", ErrLocked
}

// IsLocked reports whether p holds a live lock
func (m *Manager) IsLocked(p paths.Path) (bool, error) {
	mu := m.stripes.For(p.String())
	mu.Lock()
	defer mu.Unlock()

	_, live, err := m.current(p)
	return live, err
}

// Check returns nil when p is unlocked or token matches its lock, and
// ErrLocked otherwise
func (m *Manager) Check(p paths.Path, token string) error {
	mu := m.stripes.For(p.String())
	mu.Lock()
	defer mu.Unlock()

	rec, live, err := m.current(p)
	if err != nil || !live {
		return err
	}
	if !tokenMatches(rec.Token, token) {
		return ErrLocked
	}
	return nil
}

// Unlock releases the lock of p
func (m *Manager) Unlock(p paths.Path, token string) error {
	mu := m.stripes.For(p.String())
	mu.Lock()
	defer mu.Unlock()

	rec, live, err := m.current(p)
	if err != nil {
		return err
	}
	if !live {
		return ErrNotLocked
	}
	if !tokenMatches(rec.Token, token) {
		return ErrInvalidToken
	}
	if removed, err := m.discard(p, rec); err != nil {
		return fmt.Errorf("remove lock of %s: %w", p, err)
	} else if !removed {
		return ErrInvalidToken
	}
	m.notify(p, StateLocked, StateUnlocked)
	return nil
}

// Get returns the live lock record of p
func (m *Manager) Get(p paths.Path) (Record, bool, error) {
	mu := m.stripes.For(p.String())
	mu.Lock()
	defer mu.Unlock()

	return m.current(p)
}

// Remove drops the lock of p regardless of its token
func (m *Manager) Remove(p paths.Path) error {
	mu := m.stripes.For(p.String())
	mu.Lock()
	defer mu.Unlock()

	_, live, err := m.current(p)
	if err != nil || !live {
		return err
	}
	if err := sidecar.Remove(m.fs, m.layout.File(p)); err != nil {
		return fmt.Errorf("remove lock of %s: %w", p, err)
	}
	m.notify(p, StateLocked, StateUnlocked)
	return nil
}

// Transfer moves the lock of from to to, replacing any lock at to
func (m *Manager) Transfer(from, to paths.Path) error {
	unlock := m.stripes.LockPair(from.String(), to.String())
	defer unlock()

	_, live, err := m.current(from)
	if err != nil || !live {
		return err
	}
	if err := m.fs.MkdirAll(m.layout.Dir(to.Parent()), 0o755); err != nil {
		return err
	}
	if err := m.fs.Rename(m.layout.File(from), m.layout.File(to)); err != nil {
		return fmt.Errorf("move lock %s -> %s: %w", from, to, err)
	}
	return nil
}

// TransferUnder moves the locks of from and all its descendants to to
func (m *Manager) TransferUnder(from, to paths.Path) error {
	if err := m.layout.MoveTree(m.fs, from, to); err != nil {
		return fmt.Errorf("move locks %s -> %s: %w", from, to, err)
	}
	return nil
}

// LockedUnder returns the live locks at prefix and below, sorted by path
func (m *Manager) LockedUnder(prefix paths.Path) ([]paths.Path, error) {
	live, _, err := m.scan(prefix)
	return live, err
}

// RemoveUnder drops every lock at prefix and below
func (m *Manager) RemoveUnder(prefix paths.Path) error {
	live, _, err := m.scan(prefix)
	if err != nil {
		return err
	}
	if err := m.layout.RemoveTree(m.fs, prefix); err != nil {
		return fmt.Errorf("remove locks under %s: %w", prefix, err)
	}
	for _, p := range live {
		m.notify(p, StateLocked, StateUnlocked)
	}
	return nil
}

// Load scans the existing sidecars, purging expired ones, and returns the
// number of live locks
func (m *Manager) Load() (int, error) {
	live, _, err := m.scan(paths.Root)
	return len(live), err
}

// Sweep purges expired locks and returns how many were removed
func (m *Manager) Sweep() (int, error) {
	_, purged, err := m.scan(paths.Root)
	return purged, err
}

// StartSweeper runs Sweep every interval until ctx is done. errFn, when
// not nil, receives sweep failures.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration, errFn func(error)) *sync.WaitGroup {
	var wg sync.WaitGroup
	if interval <= 0 {
		return &wg
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Sweep(); err != nil && errFn != nil {
					errFn(err)
				}
			}
		}
	}()
	return &wg
}

// scan walks the sidecars at prefix and below, removing expired ones
func (m *Manager) scan(prefix paths.Path) ([]paths.Path, int, error) {
	var candidates []paths.Path
	if ok, err := afero.Exists(m.fs, m.layout.File(prefix)); err != nil {
		return nil, 0, err
	} else if ok {
		candidates = append(candidates, prefix)
	}

	dir := m.layout.Dir(prefix)
	if ok, err := afero.DirExists(m.fs, dir); err != nil {
		return nil, 0, err
	} else if ok {
		err := afero.Walk(m.fs, dir, func(name string, info os.FileInfo, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if info.IsDir() {
				return nil
			}
			if p, ok := m.layout.PathOf(name); ok {
				candidates = append(candidates, p)
			}
			return nil
		})
		if err != nil {
			return nil, 0, fmt.Errorf("scan locks under %s: %w", prefix, err)
		}
	}

	var (
		live   []paths.Path
		purged int
		errAll error
	)
	for _, p := range candidates {
		mu := m.stripes.For(p.String())
		mu.Lock()
		held, wasPurged, _, err := m.refresh(p)
		mu.Unlock()
		if err != nil {
			errAll = multierr.Append(errAll, err)
			continue
		}
		if held {
			live = append(live, p)
		}
		if wasPurged {
			purged++
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Compare(live[j]) < 0 })
	return live, purged, errAll
}

// current returns the record of p and whether it is live, removing it when
// it has expired. Callers hold the stripe of p.
func (m *Manager) current(p paths.Path) (Record, bool, error) {
	held, _, rec, err := m.refresh(p)
	return rec, held, err
}

// refresh reads the record of p and discards it once expired. When another
// process replaced the record meanwhile, the replacement is read instead.
func (m *Manager) refresh(p paths.Path) (held bool, purged bool, rec Record, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		var found bool
		rec, found, err = m.read(p)
		if err != nil || !found {
			return false, false, Record{}, err
		}
		if rec.Live(m.settings.Now()) {
			return true, false, rec, nil
		}
		removed, err := m.discard(p, rec)
		if err != nil {
			return false, false, Record{}, fmt.Errorf("remove expired lock of %s: %w", p, err)
		}
		if removed {
			m.notify(p, StateLocked, StateUnlocked)
			return false, true, Record{}, nil
		}
	}
	return false, false, Record{}, nil
}

// discard removes the sidecar of p if it still holds rec. The sidecar is
// first renamed aside, then checked; a record written by another process
// since rec was read is restored and reported as not removed.
func (m *Manager) discard(p paths.Path, rec Record) (bool, error) {
	name := m.layout.File(p)
	aside := name + "." + id.Default().GenerateString() + asideSuffix
	if err := m.fs.Rename(name, aside); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	data, err := afero.ReadFile(m.fs, aside)
	if err != nil {
		return false, multierr.Append(err, m.fs.Remove(aside))
	}
	if sameRecord(data, rec) {
		return true, m.fs.Remove(aside)
	}

	f, err := m.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return false, multierr.Append(fmt.Errorf("restore replaced lock: %w", err), m.fs.Remove(aside))
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	err = multierr.Combine(err, f.Close(), m.fs.Remove(aside))
	return false, err
}

// sameRecord reports whether data still encodes rec. A record that could
// not be parsed matches data that cannot be parsed either.
func sameRecord(data []byte, rec Record) bool {
	got, err := parseRecord(data)
	if err != nil {
		return rec.Token == ""
	}
	return got.Token == rec.Token && got.Expiry.Equal(rec.Expiry)
}

func (m *Manager) read(p paths.Path) (Record, bool, error) {
	name := m.layout.File(p)
	data, err := afero.ReadFile(m.fs, name)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("read lock of %s: %w", p, err)
	}
	rec, err := parseRecord(data)
	if err == nil {
		return rec, true, nil
	}
	// unfinished or damaged sidecar
	info, statErr := m.fs.Stat(name)
	if statErr != nil {
		return Record{}, false, nil
	}
	return Record{Expiry: info.ModTime().Add(corruptGrace)}, true, nil
}

func (m *Manager) notify(p paths.Path, from, to State) {
	if m.settings.OnStateChange != nil {
		m.settings.OnStateChange(p, from, to)
	}
}

func tokenMatches(held, given string) bool {
	return id.IsValidLockToken(given) && subtle.ConstantTimeCompare([]byte(held), []byte(given)) == 1
}

func writeRecord(f afero.File, rec Record) error {
	var expiry int64
	if !rec.Expiry.IsZero() {
		expiry = rec.Expiry.UnixMilli()
	}
	_, err := fmt.Fprintf(f, "%s\n%d\n", rec.Token, expiry)
	if err == nil {
		err = f.Sync()
	}
	return multierr.Append(err, f.Close())
}

func parseRecord(data []byte) (Record, error) {
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 || lines[0] == "" {
		return Record{}, errors.New("malformed lock record")
	}
	millis, err := strconv.ParseInt(lines[1], 10, 64)
	if err != nil || millis < 0 {
		return Record{}, errors.New("malformed lock expiry")
	}
	rec := Record{Token: lines[0]}
	if millis > 0 {
		rec.Expiry = time.UnixMilli(millis)
	}
	return rec, nil
}
