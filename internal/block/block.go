// Package block implements the Linux zoned-block-device transport
// (C4): it drives zone reporting and management through the kernel's
// BLKREPORTZONE/BLKRESETZONE/BLKOPENZONE/BLKCLOSEZONE/BLKFINISHZONE
// ioctls on the block device node, falls back to a SCSI pass-through
// backend for operations the running kernel does not implement. Sector
// numbers are passed to the ioctls and to the SCSI fallback exactly as
// given, relative to the opened node; a partition node is not resolved
// to its holder disk and no partition offset is applied.
package block

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/dswarbrick/go-zbc/internal/constants"
	"github.com/dswarbrick/go-zbc/internal/scsi"
	"github.com/dswarbrick/go-zbc/internal/transport"
)

// ioctl numbers from <linux/fs.h>, computed for amd64/arm64 (no padding
// in blk_zone_report/blk_zone_range, so the _IOWR/_IOW encodings are
// architecture independent on the platforms this module targets).
const (
	ioctlBLKREPORTZONE = 0xC0181282
	ioctlBLKRESETZONE  = 0x40101283
	ioctlBLKOPENZONE   = 0x40101286
	ioctlBLKCLOSEZONE  = 0x40101287
	ioctlBLKFINISHZONE = 0x40101288
	ioctlBLKGETSIZE64  = 0x80081272
	ioctlBLKSSZGET     = 0x1268
	ioctlBLKPBSZGET    = 0x127B
)

// blkZoneReportHeader mirrors struct blk_zone_report's fixed portion.
type blkZoneReportHeader struct {
	sector   uint64
	nrZones  uint32
	flags    uint8
	reserved [11]byte
}

// blkZone mirrors struct blk_zone, 64 bytes, one entry per reported zone.
type blkZone struct {
	start    uint64
	length   uint64
	wp       uint64
	zType    uint8
	cond     uint8
	nonSeq   uint8
	reset    uint8
	resv     [4]byte
	capacity uint64
	reserved [24]byte
}

// blkZoneRange mirrors struct blk_zone_range, used by BLKRESETZONE,
// BLKOPENZONE, BLKCLOSEZONE and BLKFINISHZONE.
type blkZoneRange struct {
	sector   uint64
	nSectors uint64
}

const zoneReportHeaderSize = 24
const blkZoneSize = 64

// Device drives a zoned block device node through its native ioctls,
// with a lazily-opened SCSI fallback for operations the block layer
// does not expose (e.g. an older kernel without BLKOPENZONE).
type Device struct {
	fd           int
	path         string
	info         transport.Info
	partOffset   uint64 // sector offset of this partition within its holder
	fallback     *scsi.Device
	fallbackErr  error
	fallbackTried bool
	lastError    transport.SenseError
}

// Open opens path (a whole-disk or partition block device node) and
// discovers its geometry via BLKGETSIZE64/BLKSSZGET/BLKPBSZGET.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	d := &Device{fd: fd, path: path}
	if err := d.probe(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return d, nil
}

func (d *Device) Info() transport.Info            { return d.info }
func (d *Device) LastError() transport.SenseError { return d.lastError }

func (d *Device) Close() error {
	if d.fallback != nil {
		d.fallback.Close()
	}
	return unix.Close(d.fd)
}

func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// ErrNotZoned is returned by Open when the kernel reports the device's
// queue/zoned sysfs attribute as "none", so the dispatcher can move on
// to the next backend instead of treating a regular disk as zoned.
var ErrNotZoned = fmt.Errorf("block: device is not a zoned block device")

func (d *Device) probe() error {
	d.info = transport.Info{Type: transport.DeviceTypeBlock, Path: d.path, Model: zonedModel(d.path)}
	if d.info.Model == transport.ZoneModelUnknown {
		return ErrNotZoned
	}

	var sizeBytes uint64
	if err := d.ioctl(ioctlBLKGETSIZE64, unsafe.Pointer(&sizeBytes)); err != nil {
		return fmt.Errorf("block: BLKGETSIZE64: %w", err)
	}
	d.info.Sectors = sizeBytes / constants.SectorSize

	var lblockSize uint32
	if err := d.ioctl(ioctlBLKSSZGET, unsafe.Pointer(&lblockSize)); err == nil {
		d.info.LBlockSize = lblockSize
	} else {
		d.info.LBlockSize = constants.SectorSize
	}
	d.info.LBlocks = sizeBytes / uint64(d.info.LBlockSize)

	var pblockSize uint32
	if err := d.ioctl(ioctlBLKPBSZGET, unsafe.Pointer(&pblockSize)); err == nil {
		d.info.PBlockSize = pblockSize
		if pblockSize > 0 {
			d.info.PBlocks = sizeBytes / uint64(pblockSize)
		}
	}

	d.partOffset = partitionStartSector(d.path)

	return nil
}

// zonedModel reads the queue/zoned sysfs attribute for path's block
// device and maps it to a ZoneModel. A partition inherits its holder's
// attribute, so this reads from the partition's own sysfs entry, which
// the kernel populates identically.
func zonedModel(path string) transport.ZoneModel {
	base := filepath.Base(path)
	data, err := os.ReadFile(filepath.Join("/sys/class/block", base, "queue", "zoned"))
	if err != nil {
		return transport.ZoneModelUnknown
	}
	switch strings.TrimSpace(string(data)) {
	case "host-managed":
		return transport.ZoneModelHostManaged
	case "host-aware":
		return transport.ZoneModelHostAware
	default:
		return transport.ZoneModelUnknown
	}
}

// partitionStartSector resolves path to its /sys/class/block entry and
// reads the "start" attribute, which is the sector offset of a
// partition within its holder device. It returns 0 for a whole-disk
// node or when the sysfs lookup fails.
func partitionStartSector(path string) uint64 {
	base := filepath.Base(path)
	sysPath := filepath.Join("/sys/class/block", base, "start")
	data, err := os.ReadFile(sysPath)
	if err != nil {
		return 0
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// absSector returns sector unchanged: the sector numbers handed to the
// ioctls are those of the opened node, and partOffset is not applied.
func (d *Device) absSector(sector uint64) uint64 { return sector }

func (d *Device) ReportZones(startSector uint64, opt transport.ReportOption, buf []transport.Zone) (int, error) {
	total := 0
	sector := startSector
	for sector < d.info.Sectors && (buf == nil || total < len(buf)) {
		chunk := constants.BlockReportZonesChunk

		raw := make([]byte, zoneReportHeaderSize+chunk*blkZoneSize)
		hdr := (*blkZoneReportHeader)(unsafe.Pointer(&raw[0]))
		hdr.sector = d.absSector(sector)
		hdr.nrZones = uint32(chunk)

		if err := d.ioctl(ioctlBLKREPORTZONE, unsafe.Pointer(&raw[0])); err != nil {
			return total, fmt.Errorf("block: BLKREPORTZONE: %w", err)
		}

		n := int(hdr.nrZones)
		if n == 0 {
			break
		}

		for i := 0; i < n; i++ {
			off := zoneReportHeaderSize + i*blkZoneSize
			bz := (*blkZone)(unsafe.Pointer(&raw[off]))
			z := transport.Zone{
				Start:     bz.start,
				Length:    bz.length,
				WritePtr:  bz.wp,
				Type:      transport.ZoneType(bz.zType),
				Condition: transport.ZoneCondition(bz.cond),
			}
			if bz.nonSeq != 0 {
				z.Attributes |= transport.ZoneAttrNonSeq
			}
			if bz.reset != 0 {
				z.Attributes |= transport.ZoneAttrRWPRecommended
			}
			sector = z.End()
			if !matchesFilter(z, opt) {
				continue
			}
			if buf != nil {
				if total >= len(buf) {
					break
				}
				buf[total] = z
			}
			total++
		}

		if n < chunk {
			break
		}
	}
	return total, nil
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
	var req uintptr
	switch kind {
	case transport.ZoneOpOpen:
		req = ioctlBLKOPENZONE
	case transport.ZoneOpClose:
		req = ioctlBLKCLOSEZONE
	case transport.ZoneOpFinish:
		req = ioctlBLKFINISHZONE
	case transport.ZoneOpResetWP:
		req = ioctlBLKRESETZONE
	default:
		return fmt.Errorf("block: unknown zone op %v", kind)
	}

	zr := blkZoneRange{sector: d.absSector(startSector)}
	if all {
		zr.nSectors = d.info.Sectors - zr.sector
	} else {
		var one [1]transport.Zone
		if n, err := d.ReportZones(startSector, transport.ReportOptionAll, one[:]); err == nil && n == 1 {
			zr.nSectors = one[0].Length
		} else {
			return fmt.Errorf("block: zone op %v: could not determine zone length at sector %d", kind, startSector)
		}
	}

	if err := d.ioctl(req, unsafe.Pointer(&zr)); err != nil {
		if err == unix.EOPNOTSUPP || err == unix.ENOTTY {
			fb, ferr := d.scsiFallback()
			if ferr != nil {
				return fmt.Errorf("block: %v not supported and SCSI fallback unavailable: %w", kind, ferr)
			}
			return fb.ZoneOp(kind, startSector, all)
		}
		return fmt.Errorf("block: zone op %v: %w", kind, err)
	}
	return nil
}

// scsiFallback lazily opens a SCSI pass-through backend against the
// same device node, used when the running kernel lacks a zone ioctl
// this library needs (e.g. BLKOPENZONE on kernels older than 5.5).
func (d *Device) scsiFallback() (*scsi.Device, error) {
	if d.fallback != nil {
		return d.fallback, nil
	}
	if d.fallbackTried {
		return nil, d.fallbackErr
	}
	d.fallbackTried = true
	fb, err := scsi.Open(d.path)
	if err != nil {
		d.fallbackErr = err
		return nil, err
	}
	d.fallback = fb
	return fb, nil
}

// ReportDomains, ReportRealms, ZoneActivate and ActivationCtl have no
// block-ioctl equivalent; the Linux zoned block layer does not expose
// zone domains, realms or activation. Each of them is forwarded to a
// SCSI pass-through backend opened lazily on the same device node (see
// scsiFallback).
func (d *Device) ReportDomains(startSector uint64, buf []transport.ZoneDomain) (int, error) {
	fb, err := d.scsiFallback()
	if err != nil {
		return 0, fmt.Errorf("block: report_domains requires SCSI fallback: %w", err)
	}
	return fb.ReportDomains(startSector, buf)
}

func (d *Device) ReportRealms(startSector uint64, buf []transport.ZoneRealm) (int, error) {
	fb, err := d.scsiFallback()
	if err != nil {
		return 0, fmt.Errorf("block: report_realms requires SCSI fallback: %w", err)
	}
	return fb.ReportRealms(startSector, buf)
}

func (d *Device) ZoneActivate(req transport.ActivateRequest, recs []transport.ActivationRecord) (int, error) {
	fb, err := d.scsiFallback()
	if err != nil {
		return 0, fmt.Errorf("block: zone_activate requires SCSI fallback: %w", err)
	}
	return fb.ZoneActivate(req, recs)
}

func (d *Device) ActivationCtl(ctl transport.ActivationCtl, set bool) (transport.ActivationCtl, error) {
	fb, err := d.scsiFallback()
	if err != nil {
		return transport.ActivationCtl{}, fmt.Errorf("block: zone_activation_ctl requires SCSI fallback: %w", err)
	}
	return fb.ActivationCtl(ctl, set)
}

func (d *Device) Pread(p []byte, sectorOffset uint64) (int, error) {
	return unix.Pread(d.fd, p, int64(sectorOffset*constants.SectorSize))
}

func (d *Device) Pwrite(p []byte, sectorOffset uint64) (int, error) {
	return unix.Pwrite(d.fd, p, int64(sectorOffset*constants.SectorSize))
}

func (d *Device) Preadv(vecs []transport.IOVec, sectorOffset uint64) (int, error) {
	iov := toSysIovec(vecs)
	if len(iov) == 0 {
		return 0, nil
	}
	n, _, errno := unix.Syscall6(unix.SYS_PREADV, uintptr(d.fd), uintptr(unsafe.Pointer(&iov[0])), uintptr(len(iov)), uintptr(sectorOffset*constants.SectorSize), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

func (d *Device) Pwritev(vecs []transport.IOVec, sectorOffset uint64) (int, error) {
	iov := toSysIovec(vecs)
	if len(iov) == 0 {
		return 0, nil
	}
	n, _, errno := unix.Syscall6(unix.SYS_PWRITEV, uintptr(d.fd), uintptr(unsafe.Pointer(&iov[0])), uintptr(len(iov)), uintptr(sectorOffset*constants.SectorSize), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

func toSysIovec(vecs []transport.IOVec) []unix.Iovec {
	iov := make([]unix.Iovec, 0, len(vecs))
	for _, v := range vecs {
		if len(v.Buf) == 0 {
			continue
		}
		var e unix.Iovec
		e.Base = &v.Buf[0]
		e.SetLen(len(v.Buf))
		iov = append(iov, e)
	}
	return iov
}

func (d *Device) Flush() error {
	return unix.Fsync(d.fd)
}

var _ transport.Backend = (*Device)(nil)
