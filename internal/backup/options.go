package backup

import "time"

const (
	// DefaultChunkSize is the page size used when reading tables
	DefaultChunkSize = 5000
	// DefaultTxTimeout bounds import and reset transactions
	DefaultTxTimeout = 10 * time.Minute
	// DefaultRecordsPerSecond is the throughput assumed by dry-run estimates
	DefaultRecordsPerSecond = 100
)

// Option configures the engines
type Option func(*engineOptions)

type engineOptions struct {
	metrics          *Metrics
	archive          *Archive
	systemVersion    string
	recordsPerSecond int
	txTimeout        time.Duration
	now              func() time.Time
}

func newEngineOptions(opts []Option) engineOptions {
	o := engineOptions{
		systemVersion:    "dev",
		recordsPerSecond: DefaultRecordsPerSecond,
		txTimeout:        DefaultTxTimeout,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMetrics records operation metrics
func WithMetrics(m *Metrics) Option {
	return func(o *engineOptions) { o.metrics = m }
}

// WithArchive stores every exported artifact in the archive
func WithArchive(a *Archive) Option {
	return func(o *engineOptions) { o.archive = a }
}

// WithSystemVersion sets the system version stamped into manifests
func WithSystemVersion(version string) Option {
	return func(o *engineOptions) {
		if version != "" {
			o.systemVersion = version
		}
	}
}

// WithRecordsPerSecond sets the throughput used for dry-run estimates
func WithRecordsPerSecond(n int) Option {
	return func(o *engineOptions) {
		if n > 0 {
			o.recordsPerSecond = n
		}
	}
}

// WithTxTimeout sets the default transaction timeout of imports and resets
func WithTxTimeout(d time.Duration) Option {
	return func(o *engineOptions) {
		if d > 0 {
			o.txTimeout = d
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}
