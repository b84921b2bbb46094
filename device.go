package zbc

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dswarbrick/go-zbc/internal/ata"
	"github.com/dswarbrick/go-zbc/internal/block"
	"github.com/dswarbrick/go-zbc/internal/fake"
	"github.com/dswarbrick/go-zbc/internal/logging"
	"github.com/dswarbrick/go-zbc/internal/scsi"
	"github.com/dswarbrick/go-zbc/internal/transport"
)

// OpenFlags restricts which backends Open is allowed to try. The zero
// value allows every backend.
type OpenFlags uint8

const (
	AllowBlock OpenFlags = 1 << iota
	AllowSCSI
	AllowATA
	AllowFake

	allowAll = AllowBlock | AllowSCSI | AllowATA | AllowFake
)

// OpenOptions configures Open, mirroring the teacher's DeviceParams
// pattern: a struct of optional overrides plus a Default constructor.
type OpenOptions struct {
	Flags    OpenFlags
	Logger   *logging.Logger
	FakeSpec []fake.ZoneSpec // seeds the fake backend, which is tried only after every earlier allowed backend reports not-matched
}

// DefaultOpenOptions returns an OpenOptions that tries every real
// backend in the fixed dispatch order and logs through the process
// default logger.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{Flags: allowAll, Logger: logging.Default()}
}

var nextDeviceID atomic.Uint32

// Device is an open handle to a zoned block device. It is
// thread-compatible, not thread-safe: a single Device must be used
// from one goroutine at a time, matching the transport's blocking,
// per-handle sense/last-error state.
type Device struct {
	id         uint32
	path       string
	backend    transport.Backend
	logger     *logging.Logger
	metrics    *Metrics
	extraFlags transport.InfoFlags // shifting-boundary flags learned at Open, not known to the backend
}

// Open resolves path, probes backends in the fixed order block, SCSI,
// ATA, fake (restricted by opts.Flags), and returns a handle to the
// first one that recognizes the device. Setting the ZBC_TEST_FORCE_ATA
// environment variable pins the dispatcher to try ATA before SCSI, for
// test harnesses that need to exercise the ATA pass-through path on a
// SAT-capable SCSI device node.
func Open(path string, opts OpenOptions) (*Device, error) {
	if opts.Flags == 0 {
		opts.Flags = allowAll
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}

	id := nextDeviceID.Add(1)
	logger := opts.Logger.WithDevice(id).WithOp("OPEN")

	order := dispatchOrder(opts.Flags)
	for _, dt := range order {
		backend, err := openBackend(dt, resolved, opts)
		if err == errBackendNotMatched {
			continue
		}
		if err != nil {
			return nil, WrapError("OPEN", err)
		}
		logger.Debug("opened device", "backend", dt.String())
		d := &Device{id: id, path: resolved, backend: backend, logger: opts.Logger, metrics: NewMetrics()}
		if backend.Info().HasFlag(transport.FlagZoneRealmsSupport) {
			d.extraFlags = probeShiftingBoundaries(backend, logger)
		}
		return d, nil
	}

	return nil, NewError("OPEN", ErrCodeDeviceNotFound, fmt.Sprintf("no backend recognized %s as a zoned device", path))
}

func dispatchOrder(flags OpenFlags) []transport.DeviceType {
	order := []transport.DeviceType{transport.DeviceTypeBlock, transport.DeviceTypeSCSI, transport.DeviceTypeATA, transport.DeviceTypeFake}
	if _, forceATA := os.LookupEnv("ZBC_TEST_FORCE_ATA"); forceATA {
		order = []transport.DeviceType{transport.DeviceTypeBlock, transport.DeviceTypeATA, transport.DeviceTypeSCSI, transport.DeviceTypeFake}
	}

	out := order[:0:0]
	for _, dt := range order {
		if flags.allows(dt) {
			out = append(out, dt)
		}
	}
	return out
}

func (f OpenFlags) allows(dt transport.DeviceType) bool {
	switch dt {
	case transport.DeviceTypeBlock:
		return f&AllowBlock != 0
	case transport.DeviceTypeSCSI:
		return f&AllowSCSI != 0
	case transport.DeviceTypeATA:
		return f&AllowATA != 0
	case transport.DeviceTypeFake:
		return f&AllowFake != 0
	default:
		return false
	}
}

var errBackendNotMatched = fmt.Errorf("zbc: device not matched by this backend")

func openBackend(dt transport.DeviceType, path string, opts OpenOptions) (transport.Backend, error) {
	switch dt {
	case transport.DeviceTypeBlock:
		d, err := block.Open(path)
		if err != nil {
			if err == block.ErrNotZoned {
				return nil, errBackendNotMatched
			}
			return nil, classifyOpenErr(err)
		}
		return d, nil
	case transport.DeviceTypeSCSI:
		d, err := scsi.Open(path)
		if err != nil {
			return nil, classifyOpenErr(err)
		}
		if d.Info().Model == transport.ZoneModelUnknown || d.Info().Model == transport.ZoneModelStandard {
			d.Close()
			return nil, errBackendNotMatched
		}
		return d, nil
	case transport.DeviceTypeATA:
		d, err := ata.Open(path)
		if err != nil {
			return nil, classifyOpenErr(err)
		}
		if d.Info().Model == transport.ZoneModelUnknown || d.Info().Model == transport.ZoneModelStandard {
			d.Close()
			return nil, errBackendNotMatched
		}
		return d, nil
	case transport.DeviceTypeFake:
		if opts.FakeSpec == nil {
			return nil, errBackendNotMatched
		}
		return fake.New(path, opts.FakeSpec, 0), nil
	default:
		return nil, errBackendNotMatched
	}
}

// probeShiftingBoundaries issues REPORT ZONE DOMAINS once at Open time
// and reports which zone types (conventional, sequential) have at
// least one domain whose realm boundaries shift when another domain
// is activated, per spec.md §4.5 step 4. A failed probe is logged and
// treated as "no shifting boundaries" rather than aborting Open.
func probeShiftingBoundaries(backend transport.Backend, logger *logging.Logger) transport.InfoFlags {
	total, err := backend.ReportDomains(0, nil)
	if err != nil || total == 0 {
		if err != nil {
			logger.Debug("report zone domains probe failed", "error", err)
		}
		return 0
	}

	domains := make([]transport.ZoneDomain, total)
	n, err := backend.ReportDomains(0, domains)
	if err != nil {
		logger.Debug("report zone domains probe failed", "error", err)
		return 0
	}

	var flags transport.InfoFlags
	for _, dom := range domains[:n] {
		if dom.Flags&transport.ZoneDomainFlagValidType == 0 || dom.Flags&transport.ZoneDomainFlagShiftingBoundaries == 0 {
			continue
		}
		if dom.Type == transport.ZoneTypeConventional {
			flags |= transport.FlagConvShiftingBoundary
		} else {
			flags |= transport.FlagSeqShiftingBoundary
		}
	}
	return flags
}

// classifyOpenErr maps a failed device-node open into either "try the
// next backend" or a hard abort, per the dispatcher's contract that
// each backend's open either matches, reports not-matched, or fails
// hard.
func classifyOpenErr(err error) error {
	if os.IsNotExist(err) {
		return NewError("OPEN", ErrCodeDeviceNotFound, err.Error())
	}
	if os.IsPermission(err) {
		return NewError("OPEN", ErrCodePermissionDenied, err.Error())
	}
	return errBackendNotMatched
}

// Close releases the handle and stops its metrics clock. It never
// touches caller-owned buffers.
func (d *Device) Close() error {
	d.metrics.Stop()
	return d.backend.Close()
}

// Info returns the device's identity, geometry and capability flags,
// including the shifting-boundary flags learned by the Open-time
// REPORT ZONE DOMAINS probe (the backend itself has no notion of
// these, since they are derived above the transport layer).
func (d *Device) Info() Info {
	info := d.backend.Info()
	info.Flags |= d.extraFlags
	return info
}

// Metrics returns the per-handle operation counters and latency
// histogram accumulated since Open.
func (d *Device) Metrics() *Metrics { return d.metrics }

// LastError returns the sense data populated by the most recently
// failing call on this handle. It is the Go equivalent of the
// C library's thread-local error record: because a Device must not be
// shared across goroutines without external synchronization, storing
// it on the handle is sufficient to keep one handle's errors from
// leaking into another's.
func (d *Device) LastError() SenseError { return d.backend.LastError() }

// IsZoned is a lightweight variant of Open that reports whether path
// is recognized by any allowed backend, filling info when requested,
// without keeping a handle open.
func IsZoned(path string, allowFake bool) (bool, Info, error) {
	flags := AllowBlock | AllowSCSI | AllowATA
	if allowFake {
		flags |= AllowFake
	}
	d, err := Open(path, OpenOptions{Flags: flags})
	if err != nil {
		if IsCode(err, ErrCodeDeviceNotFound) {
			return false, Info{}, nil
		}
		return false, Info{}, err
	}
	defer d.Close()
	return true, d.Info(), nil
}
