// Package shard manages the on-disk event log: monthly append-only shard
// files, the monotone clock file, and the advisory append lock
// (spec §4.D).
package shard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/untoldecay/bones/internal/bonerr"
	"github.com/untoldecay/bones/internal/itc"
	"github.com/untoldecay/bones/internal/tsjson"
)

const (
	eventsDirName = "events"
	locksDirName  = "locks"
	clockFile     = "clock"
	lockFile      = "append.lock"
	identityFile  = "itc_identity"
)

// Ref identifies one monthly shard.
type Ref struct {
	Year  int
	Month int
}

func (r Ref) String() string { return fmt.Sprintf("%04d-%02d", r.Year, r.Month) }

func (r Ref) filename() string { return r.String() + ".events" }

func (a Ref) less(b Ref) bool {
	if a.Year != b.Year {
		return a.Year < b.Year
	}
	return a.Month < b.Month
}

// Manager owns the .bones directory layout for one repository.
type Manager struct {
	BonesDir string
}

// New returns a Manager rooted at bonesDir (typically "<repo>/.bones").
func New(bonesDir string) *Manager {
	return &Manager{BonesDir: bonesDir}
}

func (m *Manager) eventsDir() string    { return filepath.Join(m.BonesDir, eventsDirName) }
func (m *Manager) clockPath() string    { return filepath.Join(m.BonesDir, clockFile) }
func (m *Manager) lockPath() string     { return filepath.Join(m.BonesDir, locksDirName, lockFile) }
func (m *Manager) identityPath() string { return filepath.Join(m.BonesDir, identityFile) }

func refForTime(t time.Time) Ref {
	u := t.UTC()
	return Ref{Year: u.Year(), Month: int(u.Month())}
}

// monthBounds returns [start, end) microsecond bounds for the UTC month
// containing ref.
func (r Ref) monthBounds() (startUs, endUs int64) {
	start := time.Date(r.Year, time.Month(r.Month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return start.UnixMicro(), end.UnixMicro()
}

func refForUs(us int64) Ref {
	t := time.UnixMicro(us).UTC()
	return Ref{Year: t.Year(), Month: int(t.Month())}
}

// Init ensures the directory tree exists and that the current month's
// shard has its header lines. Idempotent.
func (m *Manager) Init() error {
	if err := os.MkdirAll(m.eventsDir(), 0o755); err != nil {
		return bonerr.Wrap(bonerr.IO, "creating events directory", err)
	}
	if err := os.MkdirAll(filepath.Join(m.BonesDir, locksDirName), 0o755); err != nil {
		return bonerr.Wrap(bonerr.IO, "creating locks directory", err)
	}
	if _, err := os.Stat(m.clockPath()); os.IsNotExist(err) {
		if err := os.WriteFile(m.clockPath(), []byte("0"), 0o644); err != nil {
			return bonerr.Wrap(bonerr.IO, "initializing clock file", err)
		}
	}
	if _, err := os.Stat(m.identityPath()); os.IsNotExist(err) {
		if err := m.WriteIdentity(itc.Seed()); err != nil {
			return err
		}
	}
	ref := refForTime(time.Now())
	return m.ensureShardHeader(ref)
}

func (m *Manager) ensureShardHeader(ref Ref) error {
	path := filepath.Join(m.eventsDir(), ref.filename())
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return bonerr.Wrap(bonerr.IO, "statting shard file", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "creating shard file", err)
	}
	defer f.Close()
	if _, err := f.WriteString(tsjson.ShardHeader + "\n" + tsjson.FieldComment + "\n"); err != nil {
		return bonerr.Wrap(bonerr.IO, "writing shard header", err)
	}
	return nil
}

// readClock returns the largest wall_ts_us ever issued.
func (m *Manager) readClock() (int64, error) {
	b, err := os.ReadFile(m.clockPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, bonerr.Wrap(bonerr.IO, "reading clock file", err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, bonerr.Wrap(bonerr.ParseError, "corrupt clock file", err)
	}
	return v, nil
}

func (m *Manager) writeClock(v int64) error {
	tmp := m.clockPath() + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(v, 10)), 0o644); err != nil {
		return bonerr.Wrap(bonerr.IO, "writing clock file", err)
	}
	if err := os.Rename(tmp, m.clockPath()); err != nil {
		return bonerr.Wrap(bonerr.IO, "renaming clock file", err)
	}
	return nil
}

// nextTimestampLocked returns max(now_us, last_issued+1), updating the clock
// file durably before returning it (spec §4.D). Caller must already hold the
// append lock: this is read-modify-write state exactly like the identity
// file it is stamped alongside (spec §5 "Clock file | Read-modify-write
// under the append lock").
func (m *Manager) nextTimestampLocked() (int64, error) {
	last, err := m.readClock()
	if err != nil {
		return 0, err
	}
	now := time.Now().UnixMicro()
	next := now
	if last+1 > next {
		next = last + 1
	}
	if err := m.writeClock(next); err != nil {
		return 0, err
	}
	return next, nil
}

// NextTimestamp acquires the append lock itself and returns the next
// monotone timestamp (spec §4.D). Exposed for callers that only need a
// timestamp reservation without an immediate append (e.g. tests); Append and
// AppendStamped hold the lock across the whole stamp-then-write sequence
// rather than calling this.
func (m *Manager) NextTimestamp(timeout time.Duration) (int64, error) {
	fl, err := m.Lock(timeout)
	if err != nil {
		return 0, err
	}
	defer fl.Unlock()
	return m.nextTimestampLocked()
}

// Lock acquires the process-advisory append lock with the given timeout.
// Callers must Unlock the returned flock.Flock when done.
func (m *Manager) Lock(timeout time.Duration) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(m.lockPath()), 0o755); err != nil {
		return nil, bonerr.Wrap(bonerr.IO, "creating lock directory", err)
	}
	fl := flock.New(m.lockPath())
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if !locked {
		if err != nil && ctx.Err() == nil {
			return nil, bonerr.Wrap(bonerr.IO, "acquiring append lock", err)
		}
		return nil, bonerr.New(bonerr.LockTimeout, fmt.Sprintf("shard append lock contested for %s", timeout))
	}
	return fl, nil
}

// RLock acquires the append lock in shared mode, letting a reader (e.g.
// rebuild.Incremental) parse the log concurrently with other readers while
// still excluding writers (spec §4.J "acquire the shard append lock in
// shared mode during parsing; commit; release").
func (m *Manager) RLock(timeout time.Duration) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(m.lockPath()), 0o755); err != nil {
		return nil, bonerr.Wrap(bonerr.IO, "creating lock directory", err)
	}
	fl := flock.New(m.lockPath())
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	locked, err := fl.TryRLockContext(ctx, 50*time.Millisecond)
	if !locked {
		if err != nil && ctx.Err() == nil {
			return nil, bonerr.Wrap(bonerr.IO, "acquiring shared append lock", err)
		}
		return nil, bonerr.New(bonerr.LockTimeout, fmt.Sprintf("shard append lock (shared) contested for %s", timeout))
	}
	return fl, nil
}

// Append acquires the lock, routes the line to the shard of the month its
// timestamp falls in (creating that shard with its header if needed),
// appends the full line plus LF, optionally fsyncs, then releases the lock
// (spec §4.D).
func (m *Manager) Append(line string, wallTSUs int64, fsyncFlag bool, timeout time.Duration) error {
	fl, err := m.Lock(timeout)
	if err != nil {
		return err
	}
	defer fl.Unlock()

	ref := refForUs(wallTSUs)
	if err := m.ensureShardHeader(ref); err != nil {
		return err
	}
	return m.writeLine(ref, line, fsyncFlag)
}

// AppendStamped issues the next monotone timestamp and appends a
// caller-built line in one critical section, holding the append lock across
// both steps so the clock's read-modify-write can never race a concurrent
// writer's (spec §4.D, §5 "Clock file | Read-modify-write under the append
// lock"). build receives the issued timestamp and returns the full TSJSON
// line to append.
func (m *Manager) AppendStamped(build func(wallTSUs int64) (string, error), fsyncFlag bool, timeout time.Duration) (int64, error) {
	fl, err := m.Lock(timeout)
	if err != nil {
		return 0, err
	}
	defer fl.Unlock()

	wallTSUs, err := m.nextTimestampLocked()
	if err != nil {
		return 0, err
	}
	line, err := build(wallTSUs)
	if err != nil {
		return 0, err
	}
	ref := refForUs(wallTSUs)
	if err := m.ensureShardHeader(ref); err != nil {
		return 0, err
	}
	if err := m.writeLine(ref, line, fsyncFlag); err != nil {
		return 0, err
	}
	return wallTSUs, nil
}

// AppendRaw bypasses month-routing for controlled batch writers (merge
// driver, import) but still takes the append lock.
func (m *Manager) AppendRaw(year, month int, line string, fsyncFlag bool, timeout time.Duration) error {
	fl, err := m.Lock(timeout)
	if err != nil {
		return err
	}
	defer fl.Unlock()

	ref := Ref{Year: year, Month: month}
	if err := m.ensureShardHeader(ref); err != nil {
		return err
	}
	return m.writeLine(ref, line, fsyncFlag)
}

func (m *Manager) writeLine(ref Ref, line string, fsyncFlag bool) error {
	path := filepath.Join(m.eventsDir(), ref.filename())
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return bonerr.Wrap(bonerr.IO, "opening shard for append", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return bonerr.Wrap(bonerr.IO, "appending event line", err)
	}
	if fsyncFlag {
		if err := f.Sync(); err != nil {
			return bonerr.Wrap(bonerr.IO, "fsyncing shard file", err)
		}
		if dir, err := os.Open(m.eventsDir()); err == nil {
			_ = dir.Sync()
			_ = dir.Close()
		}
	}
	return nil
}

// ActiveShard returns the largest (year, month) shard present.
func (m *Manager) ActiveShard() (Ref, bool, error) {
	refs, err := m.ListShards()
	if err != nil {
		return Ref{}, false, err
	}
	if len(refs) == 0 {
		return Ref{}, false, nil
	}
	return refs[len(refs)-1], true, nil
}

// ListShards returns every shard present, in ascending (year, month) order.
func (m *Manager) ListShards() ([]Ref, error) {
	entries, err := os.ReadDir(m.eventsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, bonerr.Wrap(bonerr.IO, "listing shard directory", err)
	}
	var refs []Ref
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".events") {
			continue
		}
		base := strings.TrimSuffix(name, ".events")
		parts := strings.SplitN(base, "-", 2)
		if len(parts) != 2 {
			continue
		}
		year, err1 := strconv.Atoi(parts[0])
		month, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			continue
		}
		refs = append(refs, Ref{Year: year, Month: month})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].less(refs[j]) })
	return refs, nil
}

// ReadShard returns a shard's entire contents as UTF-8 text.
func (m *Manager) ReadShard(ref Ref) (string, error) {
	path := filepath.Join(m.eventsDir(), ref.filename())
	b, err := os.ReadFile(path)
	if err != nil {
		return "", bonerr.Wrap(bonerr.IO, "reading shard file "+ref.String(), err)
	}
	return string(b), nil
}

// Replay concatenates every shard in order, including headers.
func (m *Manager) Replay() (string, error) {
	refs, err := m.ListShards()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, ref := range refs {
		content, err := m.ReadShard(ref)
		if err != nil {
			return "", err
		}
		sb.WriteString(content)
	}
	return sb.String(), nil
}

// TotalSize returns the cumulative byte size of all shards, used as the
// rebuild cursor's "full log consumed" offset.
func (m *Manager) TotalSize() (int64, error) {
	refs, err := m.ListShards()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, ref := range refs {
		size, err := m.ShardSize(ref)
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

// ShardSize returns one shard file's current size in bytes.
func (m *Manager) ShardSize(ref Ref) (int64, error) {
	info, err := os.Stat(filepath.Join(m.eventsDir(), ref.filename()))
	if err != nil {
		return 0, bonerr.Wrap(bonerr.IO, "statting shard file", err)
	}
	return info.Size(), nil
}

// ReadFrom returns the log content starting at the given byte offset into
// the full concatenated replay stream Replay() would produce, without
// re-reading shard bytes before the offset — the streaming half of the
// incremental rebuild cursor (spec §4.J, §6.1 "last_event_offset").
func (m *Manager) ReadFrom(offset int64) (string, error) {
	refs, err := m.ListShards()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	var consumed int64
	for _, ref := range refs {
		size, err := m.ShardSize(ref)
		if err != nil {
			return "", err
		}
		if consumed+size <= offset {
			consumed += size
			continue
		}
		content, err := m.ReadShard(ref)
		if err != nil {
			return "", err
		}
		start := int64(0)
		if offset > consumed {
			start = offset - consumed
		}
		if start > int64(len(content)) {
			start = int64(len(content))
		}
		sb.WriteString(content[start:])
		consumed += size
	}
	return sb.String(), nil
}

// ReadIdentity returns the repo's persisted ITC identity (spec §4.F
// "seed()"). Caller must hold the append lock: this file is
// read-modify-write state exactly like the clock file.
func (m *Manager) ReadIdentity() (itc.Stamp, error) {
	b, err := os.ReadFile(m.identityPath())
	if err != nil {
		if os.IsNotExist(err) {
			return itc.Seed(), nil
		}
		return itc.Stamp{}, bonerr.Wrap(bonerr.IO, "reading itc identity file", err)
	}
	s, err := itc.DecodeText(strings.TrimSpace(string(b)))
	if err != nil {
		return itc.Stamp{}, bonerr.Wrap(bonerr.ParseError, "corrupt itc identity file", err)
	}
	return s, nil
}

// WriteIdentity durably persists the repo's ITC identity.
func (m *Manager) WriteIdentity(s itc.Stamp) error {
	tmp := m.identityPath() + ".tmp"
	if err := os.WriteFile(tmp, []byte(itc.EncodeText(s)), 0o644); err != nil {
		return bonerr.Wrap(bonerr.IO, "writing itc identity file", err)
	}
	if err := os.Rename(tmp, m.identityPath()); err != nil {
		return bonerr.Wrap(bonerr.IO, "renaming itc identity file", err)
	}
	return nil
}

// ForkIdentity splits the repo's persisted ITC identity (spec §4.F "fork()")
// under the append lock: one half is kept in the file for the next writer to
// fork from, the other is returned for this caller's exclusive use for the
// lifetime of its Engine handle. Every Engine.Open call is a concurrent
// writer in the ITC sense (spec §4.F/§6.2), even though the append lock
// serializes their actual appends.
func (m *Manager) ForkIdentity(timeout time.Duration) (itc.Stamp, error) {
	fl, err := m.Lock(timeout)
	if err != nil {
		return itc.Stamp{}, err
	}
	defer fl.Unlock()

	shared, err := m.ReadIdentity()
	if err != nil {
		return itc.Stamp{}, err
	}
	mine, remaining := itc.ForkStamp(shared)
	if err := m.WriteIdentity(remaining); err != nil {
		return itc.Stamp{}, err
	}
	return mine, nil
}

// JoinIdentity folds a caller's evolved stamp back into the repo's shared
// identity under the append lock (spec §4.F "join()"), so the event-tree
// growth ticked during this Engine handle's lifetime is visible to the next
// ForkIdentity caller.
func (m *Manager) JoinIdentity(mine itc.Stamp, timeout time.Duration) error {
	fl, err := m.Lock(timeout)
	if err != nil {
		return err
	}
	defer fl.Unlock()

	shared, err := m.ReadIdentity()
	if err != nil {
		return err
	}
	return m.WriteIdentity(itc.Join(shared, mine))
}
