// Package fake implements an in-memory zone-table emulation backend.
// It honors the same transport.Backend contract as the real transports
// so that callers and tests can exercise the full device API without a
// zoned block device or a SCSI/ATA pass-through path, the way the
// teacher's in-process memory backend stands in for a kernel device
// during development and testing.
package fake

import (
	"fmt"
	"sync"

	"github.com/dswarbrick/go-zbc/internal/constants"
	"github.com/dswarbrick/go-zbc/internal/transport"
)

// senseIllegalRequest is the SCSI ILLEGAL REQUEST sense key, used for
// every out-of-range or invalid-state fault this emulation raises.
const senseIllegalRequest = 0x05

// ZoneSpec describes one zone to seed a Device with.
type ZoneSpec struct {
	Length uint64
	Type   transport.ZoneType
}

// Device is an in-memory zoned device: a backing byte slice plus a
// zone table that tracks each zone's condition and write pointer.
// A write that does not start at a sequential zone's write pointer is
// accepted and marks the zone non_seq rather than being rejected.
type Device struct {
	mu    sync.Mutex
	info  transport.Info
	zones []transport.Zone
	data  []byte

	lastError transport.SenseError
}

// New creates a fake device of the given zone layout. Conventional
// zones are immediately not_wp; sequential zones start empty with
// their write pointer at the zone start.
func New(path string, specs []ZoneSpec, lblockSize uint32) *Device {
	if lblockSize == 0 {
		lblockSize = constants.SectorSize
	}

	d := &Device{}
	var sector uint64
	for _, s := range specs {
		z := transport.Zone{Start: sector, Length: s.Length, Type: s.Type}
		if s.Type.IsWritePointer() {
			z.Condition = transport.ZoneCondEmpty
			z.WritePtr = sector
		} else {
			z.Condition = transport.ZoneCondNotWP
			z.WritePtr = constants.SectorInvalid
		}
		d.zones = append(d.zones, z)
		sector += s.Length
	}

	d.info = transport.Info{
		Type:       transport.DeviceTypeFake,
		Model:      transport.ZoneModelHostManaged,
		Path:       path,
		Sectors:    sector,
		LBlockSize: lblockSize,
		LBlocks:    sector * constants.SectorSize / uint64(lblockSize),
		PBlockSize: lblockSize,
		PBlocks:    sector * constants.SectorSize / uint64(lblockSize),
		Flags:      transport.FlagUnrestrictedRead,
	}
	d.data = make([]byte, sector*constants.SectorSize)
	return d
}

func (d *Device) Info() transport.Info            { return d.info }
func (d *Device) LastError() transport.SenseError { return d.lastError }
func (d *Device) Close() error                    { return nil }

func (d *Device) fail(sk, asc, ascq uint8) error {
	d.lastError = transport.SenseError{SenseKey: sk, ASC: asc, ASCQ: ascq}
	return fmt.Errorf("fake: sense %#x/%#x/%#x", sk, asc, ascq)
}

func (d *Device) zoneAt(sector uint64) int {
	for i, z := range d.zones {
		if sector >= z.Start && sector < z.End() {
			return i
		}
	}
	return -1
}

func (d *Device) ReportZones(startSector uint64, opt transport.ReportOption, buf []transport.Zone) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := len(d.zones)
	for i, z := range d.zones {
		if z.Start >= startSector {
			start = i
			break
		}
	}

	n := 0
	for i := start; i < len(d.zones); i++ {
		z := d.zones[i]
		if !matchesFilter(z, opt) {
			continue
		}
		if buf == nil {
			n++
			continue
		}
		if n >= len(buf) {
			break
		}
		buf[n] = z
		n++
	}
	return n, nil
}

func matchesFilter(z transport.Zone, opt transport.ReportOption) bool {
	switch opt.Filter() {
	case transport.ReportOptionAll:
		return true
	case transport.ReportOptionEmpty:
		return z.Condition == transport.ZoneCondEmpty
	case transport.ReportOptionImpOpen:
		return z.Condition == transport.ZoneCondImpOpen
	case transport.ReportOptionExpOpen:
		return z.Condition == transport.ZoneCondExpOpen
	case transport.ReportOptionClosed:
		return z.Condition == transport.ZoneCondClosed
	case transport.ReportOptionFull:
		return z.Condition == transport.ZoneCondFull
	case transport.ReportOptionReadOnly:
		return z.Condition == transport.ZoneCondReadOnly
	case transport.ReportOptionOffline:
		return z.Condition == transport.ZoneCondOffline
	case transport.ReportOptionInactive:
		return z.Condition == transport.ZoneCondInactive
	case transport.ReportOptionRWPRecommended:
		return z.RWPRecommended()
	case transport.ReportOptionNonSeq:
		return z.NonSeq()
	case transport.ReportOptionGap:
		return z.Type == transport.ZoneTypeGap
	case transport.ReportOptionNotWP:
		return z.Condition == transport.ZoneCondNotWP
	default:
		return true
	}
}

func (d *Device) ZoneOp(kind transport.ZoneOpKind, startSector uint64, all bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	apply := func(i int) error {
		z := &d.zones[i]
		if !z.Type.IsWritePointer() {
			return nil
		}
		switch kind {
		case transport.ZoneOpOpen:
			if z.Condition == transport.ZoneCondFull || z.Condition == transport.ZoneCondReadOnly || z.Condition == transport.ZoneCondOffline {
				return d.fail(senseIllegalRequest, 0x24, 0x00)
			}
			z.Condition = transport.ZoneCondExpOpen
		case transport.ZoneOpClose:
			if z.Condition == transport.ZoneCondImpOpen || z.Condition == transport.ZoneCondExpOpen {
				z.Condition = transport.ZoneCondClosed
			}
		case transport.ZoneOpFinish:
			z.Condition = transport.ZoneCondFull
			z.WritePtr = z.End()
		case transport.ZoneOpResetWP:
			z.Condition = transport.ZoneCondEmpty
			z.WritePtr = z.Start
			z.Attributes &^= transport.ZoneAttrNonSeq | transport.ZoneAttrRWPRecommended
		}
		return nil
	}

	if all {
		for i := range d.zones {
			if err := apply(i); err != nil {
				return err
			}
		}
		return nil
	}

	idx := d.zoneAt(startSector)
	if idx < 0 {
		return d.fail(senseIllegalRequest, 0x21, 0x00)
	}
	return apply(idx)
}

func (d *Device) ReportDomains(startSector uint64, buf []transport.ZoneDomain) (int, error) {
	return 0, fmt.Errorf("fake: zone domains not supported")
}

func (d *Device) ReportRealms(startSector uint64, buf []transport.ZoneRealm) (int, error) {
	return 0, fmt.Errorf("fake: zone realms not supported")
}

func (d *Device) ZoneActivate(req transport.ActivateRequest, recs []transport.ActivationRecord) (int, error) {
	return 0, fmt.Errorf("fake: zone activation not supported")
}

func (d *Device) ActivationCtl(ctl transport.ActivationCtl, set bool) (transport.ActivationCtl, error) {
	return transport.ActivationCtl{}, fmt.Errorf("fake: zone activation control not supported")
}

func (d *Device) Pread(p []byte, sectorOffset uint64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	off := sectorOffset * constants.SectorSize
	if off >= uint64(len(d.data)) {
		return 0, nil
	}
	n := copy(p, d.data[off:])
	return n, nil
}

func (d *Device) Pwrite(p []byte, sectorOffset uint64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.zoneAt(sectorOffset)
	if idx < 0 {
		return 0, d.fail(senseIllegalRequest, 0x21, 0x00)
	}
	z := &d.zones[idx]
	if z.Type.IsWritePointer() {
		if sectorOffset != z.WritePtr {
			z.Attributes |= transport.ZoneAttrNonSeq
		}
		nSectors := uint64(len(p)) / constants.SectorSize
		if sectorOffset+nSectors >= z.End() {
			z.Condition = transport.ZoneCondFull
			z.WritePtr = z.End()
		} else {
			if z.Condition == transport.ZoneCondEmpty {
				z.Condition = transport.ZoneCondImpOpen
			}
			z.WritePtr = sectorOffset + nSectors
		}
	}

	off := sectorOffset * constants.SectorSize
	if off+uint64(len(p)) > uint64(len(d.data)) {
		return 0, d.fail(senseIllegalRequest, 0x21, 0x00)
	}
	n := copy(d.data[off:], p)
	return n, nil
}

func (d *Device) Preadv(vecs []transport.IOVec, sectorOffset uint64) (int, error) {
	total := 0
	for _, v := range vecs {
		n, err := d.Pread(v.Buf, sectorOffset)
		total += n
		sectorOffset += uint64(n) / constants.SectorSize
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (d *Device) Pwritev(vecs []transport.IOVec, sectorOffset uint64) (int, error) {
	total := 0
	for _, v := range vecs {
		n, err := d.Pwrite(v.Buf, sectorOffset)
		total += n
		sectorOffset += uint64(n) / constants.SectorSize
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (d *Device) Flush() error { return nil }

var _ transport.Backend = (*Device)(nil)
