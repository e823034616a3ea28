package pstore

import "time"

// Mode selects how a database is opened.
type Mode int

const (
	// ReadOnly opens the store for snapshot reads only; no lock file is
	// acquired and Begin is unavailable.
	ReadOnly Mode = iota
	// Writable opens the store for both reading and writing; exactly one
	// writable handle may be open on a given file at a time (spec §4.B, §5).
	Writable
)

const (
	// defaultRegionSize is the size of a single mapped region (spec §4.A).
	// 64 MiB, as suggested as "a reasonable default" by spec.md.
	defaultRegionSize = 64 << 20

	// defaultNodePoolSize mirrors the teacher's "100,000 pre-allocated
	// nodes" default for recycling HAMT nodes during a transaction.
	defaultNodePoolSize = 100_000

	// defaultLockGracePeriod is how long a heartbeat may go stale before a
	// reader or tool is permitted to treat the writer's lock as abandoned
	// (spec §4.B, §5).
	defaultLockGracePeriod = 30 * time.Second

	// defaultHeartbeatInterval is the cadence at which the writer refreshes
	// its liveness timestamp in the lock file.
	defaultHeartbeatInterval = 5 * time.Second

	// defaultCompactAtRevision is the default for Options.compactAtRevision,
	// matching the teacher's MaxCompactVersion escape valve. Nothing in this
	// package reads it; no background compaction runs.
	defaultCompactAtRevision = 1_000_000
)

// Options configures Open. The zero value is not directly usable; use
// NewOptions to obtain one with defaults applied, then apply Option values.
type Options struct {
	regionSize        int
	nodePoolSize      int64
	lockGracePeriod   time.Duration
	heartbeatInterval time.Duration
	compactAtRevision uint64
	disableCompaction bool
}

// Option mutates Options. Functional options are the idiomatic shape used
// across the wider example pack (e.g. cuemby-warren's config assembly) even
// though the teacher itself takes a single options struct literal.
type Option func(*Options)

// NewOptions returns Options populated with pstore's defaults.
func NewOptions() Options {
	return Options{
		regionSize:        defaultRegionSize,
		nodePoolSize:      defaultNodePoolSize,
		lockGracePeriod:   defaultLockGracePeriod,
		heartbeatInterval: defaultHeartbeatInterval,
		compactAtRevision: defaultCompactAtRevision,
	}
}

// WithRegionSize overrides the fixed region size used by the address space
// manager (component A). Must be a positive multiple of the OS page size;
// Open does not check this.
func WithRegionSize(size int) Option {
	return func(o *Options) { o.regionSize = size }
}

// WithNodePoolSize sets Options.nodePoolSize. The node pool is a sync.Pool
// that does not read this value; nodes are allocated on demand.
func WithNodePoolSize(size int64) Option {
	return func(o *Options) { o.nodePoolSize = size }
}

// WithLockGracePeriod overrides how stale a heartbeat may be before the lock
// is considered abandoned.
func WithLockGracePeriod(d time.Duration) Option {
	return func(o *Options) { o.lockGracePeriod = d }
}

// WithHeartbeatInterval overrides the heartbeat refresh cadence.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *Options) { o.heartbeatInterval = d }
}

// WithCompactAtRevision sets Options.compactAtRevision. The value is only
// stored; no compaction is signalled.
func WithCompactAtRevision(rev uint64) Option {
	return func(o *Options) { o.compactAtRevision = rev }
}

// WithCompactionDisabled sets Options.disableCompaction. The value is only
// stored: the package runs no background compaction, and the vacuum
// collaborator (cmd/pstore-vacuum) is always run manually against the
// public API.
func WithCompactionDisabled() Option {
	return func(o *Options) { o.disableCompaction = true }
}

func (o Options) apply(opts []Option) Options {
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
