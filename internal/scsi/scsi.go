// Package scsi implements the native ZBC SCSI command encoder (C3):
// INQUIRY (standard and VPD), READ CAPACITY(16), READ/WRITE(16),
// SYNCHRONIZE CACHE(16), REPORT ZONES, ZBC IN/OUT zone management,
// REPORT REALMS, REPORT ZONE DOMAINS, and ZONE ACTIVATE/QUERY.
package scsi

import (
	"fmt"

	"github.com/dswarbrick/go-zbc/internal/constants"
	"github.com/dswarbrick/go-zbc/internal/sgio"
	"github.com/dswarbrick/go-zbc/internal/transport"
	"github.com/dswarbrick/go-zbc/internal/wire"
)

// SCSI opcodes used by the zone-management command set.
const (
	opInquiry            = 0x12
	opReadCapacity16     = 0x9e
	saReadCapacity16     = 0x10
	opRead16             = 0x88
	opWrite16            = 0x8a
	opSyncCache16        = 0x91
	opZBCIn              = 0x95
	opZBCOut             = 0x94
	saReportZones        = 0x00
	saReportRealms       = 0x06
	saReportDomains      = 0x07
	saZoneActivate       = 0x08
	saZoneQuery          = 0x09
	saOpenZone           = 0x03
	saCloseZone          = 0x01
	saFinishZone         = 0x02
	saResetWP            = 0x04
)

// Device wraps a raw command transport with the native SCSI encoding.
type Device struct {
	sg        *sgio.Device
	info      transport.Info
	lastError transport.SenseError
}

// Open opens path for native SCSI pass-through and performs device
// classification via standard INQUIRY plus VPD pages B1h/B6h.
func Open(path string) (*Device, error) {
	sg, err := sgio.Open(path)
	if err != nil {
		return nil, err
	}
	d := &Device{sg: sg}
	if err := d.classify(path); err != nil {
		sg.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) Info() transport.Info { return d.info }

func (d *Device) LastError() transport.SenseError { return d.lastError }

func (d *Device) Close() error { return d.sg.Close() }

func (d *Device) submit(cdb []byte, dir int32, buf []byte) (sgio.Outcome, error) {
	out, err := d.sg.Submit(sgio.Command{CDB: cdb, Dir: dir, Buf: buf, Timeout: uint32(constants.DefaultCommandTimeout.Milliseconds())})
	if err != nil {
		return out, err
	}
	if out.Result == sgio.ResultDeviceError {
		d.lastError = out.SenseError
	} else {
		d.lastError = transport.SenseError{}
	}
	return out, nil
}

// submitv is submit's scatter/gather counterpart, handing the vector
// straight to SG_IO instead of copying it into one linear buffer.
func (d *Device) submitv(cdb []byte, dir int32, vecs []transport.IOVec) (sgio.Outcome, error) {
	out, err := d.sg.Submit(sgio.Command{CDB: cdb, Dir: dir, Vecs: vecs, Timeout: uint32(constants.DefaultCommandTimeout.Milliseconds())})
	if err != nil {
		return out, err
	}
	if out.Result == sgio.ResultDeviceError {
		d.lastError = out.SenseError
	} else {
		d.lastError = transport.SenseError{}
	}
	return out, nil
}

// classify issues a standard INQUIRY and, if the device is zoned, VPD
// page B1h (block device characteristics) and B6h (zoned block device
// characteristics) to fill transport.Info.
func (d *Device) classify(path string) error {
	std := make([]byte, 96)
	out, err := d.submit(buildInquiry(false, 0, len(std)), sgio.DirFromDev, std)
	if err != nil {
		return err
	}
	if out.Result != sgio.ResultOK {
		return fmt.Errorf("scsi: INQUIRY failed: status=%#x", out.Status)
	}

	r := wire.NewReader(std)
	peripheralType := r.Uint8(0) & 0x1f
	vendorID := string(r.Slice(8, 8))

	d.info = transport.Info{
		Type:     transport.DeviceTypeSCSI,
		Path:     path,
		VendorID: vendorID,
	}

	switch peripheralType {
	case 0x14:
		d.info.Model = transport.ZoneModelHostManaged
	case 0x00:
		d.info.Model = transport.ZoneModelStandard
		if zoned, ok := d.readZonedField(); ok {
			switch zoned {
			case 1:
				d.info.Model = transport.ZoneModelHostAware
			case 2:
				d.info.Model = transport.ZoneModelDeviceManaged
			}
		}
	default:
		d.info.Model = transport.ZoneModelUnknown
	}

	if err := d.fillCapacity(); err != nil {
		return err
	}
	if d.info.Model != transport.ZoneModelStandard {
		d.fillZoneCapabilities()
	}
	return nil
}

func buildInquiry(vpd bool, page uint8, allocLen int) []byte {
	w := wire.NewWriter(6)
	w.PutUint8(0, opInquiry)
	if vpd {
		w.PutBits(1, 0, 1, 1)
		w.PutUint8(2, page)
	}
	w.PutUint16(3, uint16(allocLen))
	return w.Bytes()
}

// readZonedField issues VPD page B1h and returns the ZONED field
// (bits 5:4 of byte 8).
func (d *Device) readZonedField() (uint8, bool) {
	buf := make([]byte, 64)
	out, err := d.submit(buildInquiry(true, 0xB1, len(buf)), sgio.DirFromDev, buf)
	if err != nil || out.Result != sgio.ResultOK {
		return 0, false
	}
	r := wire.NewReader(buf)
	return (r.Uint8(8) >> 4) & 0x3, true
}

func (d *Device) fillCapacity() error {
	buf := make([]byte, 32)
	w := wire.NewWriter(16)
	w.PutUint8(0, opReadCapacity16)
	w.PutBits(1, 0, 5, saReadCapacity16)
	w.PutUint32(10, uint32(len(buf)))

	out, err := d.submit(w.Bytes(), sgio.DirFromDev, buf)
	if err != nil {
		return err
	}
	if out.Result != sgio.ResultOK {
		return fmt.Errorf("scsi: READ CAPACITY(16) failed: status=%#x", out.Status)
	}

	r := wire.NewReader(buf)
	lastLBA := r.Uint64(0)
	lblockSize := r.Uint32(8)

	d.info.LBlockSize = lblockSize
	d.info.LBlocks = lastLBA + 1
	d.info.PBlockSize = lblockSize << (r.Uint8(13) & 0xf)
	d.info.PBlocks = d.info.LBlocks * uint64(lblockSize) / uint64(d.info.PBlockSize)
	d.info.Sectors = d.info.LBlocks * uint64(lblockSize) / constants.SectorSize
	return nil
}

// fillZoneCapabilities reads VPD page B6h (zoned block device
// characteristics), filling URSWRZ and open-zone counts.
func (d *Device) fillZoneCapabilities() {
	buf := make([]byte, 64)
	out, err := d.submit(buildInquiry(true, 0xB6, len(buf)), sgio.DirFromDev, buf)
	if err != nil || out.Result != sgio.ResultOK {
		return
	}
	r := wire.NewReader(buf)
	if r.Bits(4, 0, 1) != 0 {
		d.info.Flags |= transport.FlagUnrestrictedRead
	}
	d.info.OptNrOpenSeqPref = r.Uint32(8)
	d.info.OptNrNonSeqWriteSeqPref = r.Uint32(12)
	d.info.MaxNrOpenSeqReq = r.Uint32(16)
}

// ReportZones issues REPORT ZONES(95h/00h) once. The caller's
// report.go driver handles paging across multiple calls.
func (d *Device) ReportZones(startSector uint64, opt transport.ReportOption, buf []transport.Zone) (int, error) {
	startLBA := d.info.Sector2LBA(startSector)

	allocLen := 64 + len(buf)*64
	if allocLen < 64 {
		allocLen = 64
	}
	reply := make([]byte, allocLen)

	w := wire.NewWriter(16)
	w.PutUint8(0, opZBCIn)
	w.PutBits(1, 0, 5, saReportZones)
	w.PutUint64(2, startLBA)
	w.PutUint32(10, uint32(allocLen))
	w.PutUint8(14, uint8(opt))

	out, err := d.submit(w.Bytes(), sgio.DirFromDev, reply)
	if err != nil {
		return 0, err
	}
	if out.Result != sgio.ResultOK {
		return 0, fmt.Errorf("scsi: REPORT ZONES failed: status=%#x sense=%+v", out.Status, out.SenseError)
	}

	r := wire.NewReader(reply)
	listLen := r.Uint32(0)
	total := int(listLen / 64)

	if buf == nil {
		return total, nil
	}

	n := 0
	for off := 64; off+64 <= len(reply) && n < len(buf); off += 64 {
		buf[n] = decodeZoneDescriptor(wire.NewReader(reply[off:off+64]), d.info)
		n++
	}
	return n, nil
}

func decodeZoneDescriptor(r *wire.Reader, info transport.Info) transport.Zone {
	return transport.Zone{
		Type:       transport.ZoneType(r.Bits(0, 0, 4)),
		Condition:  transport.ZoneCondition(r.Bits(1, 4, 4)),
		Attributes: transport.ZoneAttributes(r.Bits(1, 0, 2)),
		Length:     info.LBA2Sector(r.Uint64(8)),
		Start:      info.LBA2Sector(r.Uint64(16)),
		WritePtr:   lbaWPToSector(r.Uint64(24), info),
	}
}

func lbaWPToSector(lba uint64, info transport.Info) uint64 {
	if lba == constants.SectorInvalid {
		return constants.SectorInvalid
	}
	return info.LBA2Sector(lba)
}

// ZoneOp issues ZBC OUT with the service action for kind.
func (d *Device) ZoneOp(kind transport.ZoneOpKind, startSector uint64, all bool) error {
	var sa uint8
	switch kind {
	case transport.ZoneOpOpen:
		sa = saOpenZone
	case transport.ZoneOpClose:
		sa = saCloseZone
	case transport.ZoneOpFinish:
		sa = saFinishZone
	case transport.ZoneOpResetWP:
		sa = saResetWP
	default:
		return fmt.Errorf("scsi: unknown zone op %v", kind)
	}

	w := wire.NewWriter(16)
	w.PutUint8(0, opZBCOut)
	w.PutBits(1, 0, 5, sa)
	w.PutUint64(2, d.info.Sector2LBA(startSector))
	if all {
		w.PutBits(14, 0, 1, 1)
	}

	out, err := d.submit(w.Bytes(), sgio.DirNone, nil)
	if err != nil {
		return err
	}
	if out.Result != sgio.ResultOK {
		return fmt.Errorf("scsi: zone op %v failed: status=%#x sense=%+v", kind, out.Status, out.SenseError)
	}
	return nil
}

// ReportDomains issues REPORT ZONE DOMAINS(95h/07h).
func (d *Device) ReportDomains(startSector uint64, buf []transport.ZoneDomain) (int, error) {
	allocLen := 64 + len(buf)*96
	if allocLen < 64 {
		allocLen = 64
	}
	reply := make([]byte, allocLen)

	w := wire.NewWriter(16)
	w.PutUint8(0, opZBCIn)
	w.PutBits(1, 0, 5, saReportDomains)
	w.PutUint64(2, d.info.Sector2LBA(startSector))
	w.PutUint32(10, uint32(allocLen))

	out, err := d.submit(w.Bytes(), sgio.DirFromDev, reply)
	if err != nil {
		return 0, err
	}
	if out.Result != sgio.ResultOK {
		return 0, fmt.Errorf("scsi: REPORT ZONE DOMAINS failed: status=%#x", out.Status)
	}
	if buf == nil {
		return int(reply[9]), nil
	}

	n := 0
	for off := 64; off+96 <= len(reply) && n < len(buf); off += 96 {
		dr := wire.NewReader(reply[off : off+96])
		buf[n] = transport.ZoneDomain{
			ID:          dr.Uint8(0),
			NrZones:     uint32(dr.Uint64(16)),
			StartSector: d.info.LBA2Sector(dr.Uint64(24)),
			EndSector:   d.info.LBA2Sector(dr.Uint64(32)),
			Type:        transport.ZoneType(dr.Bits(40, 0, 4)),
			Flags:       dr.Uint32(42),
		}
		n++
	}
	return n, nil
}

// ReportRealms issues REPORT REALMS(95h/06h).
func (d *Device) ReportRealms(startSector uint64, buf []transport.ZoneRealm) (int, error) {
	allocLen := 64 + len(buf)*128
	if allocLen < 64 {
		allocLen = 64
	}
	reply := make([]byte, allocLen)

	w := wire.NewWriter(16)
	w.PutUint8(0, opZBCIn)
	w.PutBits(1, 0, 5, saReportRealms)
	w.PutUint64(2, d.info.Sector2LBA(startSector))
	w.PutUint32(10, uint32(allocLen))

	out, err := d.submit(w.Bytes(), sgio.DirFromDev, reply)
	if err != nil {
		return 0, err
	}
	if out.Result != sgio.ResultOK {
		return 0, fmt.Errorf("scsi: REPORT REALMS failed: status=%#x", out.Status)
	}
	if buf == nil {
		return int(wire.NewReader(reply).Uint32(0)), nil
	}

	n := 0
	for off := 64; off+128 <= len(reply) && n < len(buf); off += 128 {
		dr := wire.NewReader(reply[off : off+128])
		realm := transport.ZoneRealm{
			Number:   dr.Uint32(0),
			DomainID: dr.Uint8(7),
		}
		for po := 16; po+16 <= 128; po += 16 {
			pr := wire.NewReader(reply[off+po : off+po+16])
			startLBA := pr.Uint64(0)
			endLBA := pr.Uint64(8)
			if startLBA == 0 && endLBA == 0 {
				break
			}
			realm.Restrictions = append(realm.Restrictions, transport.RealmDomainRestriction{
				StartSector: d.info.LBA2Sector(startLBA),
				EndSector:   d.info.LBA2Sector(endLBA),
			})
		}
		buf[n] = realm
		n++
	}
	return n, nil
}

// ZoneActivate issues ZONE ACTIVATE(94h/08h) or ZONE QUERY(94h/09h).
func (d *Device) ZoneActivate(req transport.ActivateRequest, recs []transport.ActivationRecord) (int, error) {
	sa := saZoneActivate
	if req.Query {
		sa = saZoneQuery
	}

	allocLen := 64 + len(recs)*32
	if allocLen < 64 {
		allocLen = 64
	}
	reply := make([]byte, allocLen)

	w := wire.NewWriter(16)
	w.PutUint8(0, opZBCOut)
	w.PutBits(1, 0, 5, uint8(sa))
	if req.ByZoneSector {
		w.PutUint64(2, d.info.Sector2LBA(req.ZoneStartSector))
	} else {
		w.PutUint32(2, uint32(req.ZoneStartSector)) // realm number
	}
	if req.AllZones {
		w.PutBits(14, 0, 1, 1)
	}
	if !req.ZSRC {
		w.PutUint16(12, uint16(req.NrZones))
	}
	w.PutBits(14, 4, 4, uint8(req.Type))

	out, err := d.sg.Submit(sgio.Command{CDB: w.Bytes(), Dir: sgio.DirFromDev, Buf: reply, Timeout: uint32(constants.ZoneActivateTimeout.Milliseconds())})
	if err != nil {
		return 0, err
	}
	if out.Result == sgio.ResultDeviceError {
		d.lastError = out.SenseError
	} else {
		d.lastError = transport.SenseError{}
	}
	if out.Result != sgio.ResultOK && out.Result != sgio.ResultDeviceError {
		return 0, fmt.Errorf("scsi: ZONE ACTIVATE/QUERY failed: status=%#x", out.Status)
	}

	r := wire.NewReader(reply)
	n := 0
	for off := 64; off+32 <= len(reply) && n < len(recs); off += 32 {
		rr := wire.NewReader(reply[off : off+32])
		recs[n] = transport.ActivationRecord{
			Type:            transport.ZoneType(rr.Bits(0, 0, 4)),
			Condition:       transport.ZoneCondition(rr.Bits(1, 4, 4)),
			DomainID:        rr.Uint8(2),
			NrZones:         uint32(rr.Uint64(8)),
			StartZoneSector: d.info.LBA2Sector(rr.Uint64(16) & 0xFFFFFFFFFFFF),
		}
		n++
	}
	_ = r

	if out.Result == sgio.ResultDeviceError {
		return n, fmt.Errorf("scsi: activation refused: sense=%+v", out.SenseError)
	}
	return n, nil
}

// ActivationCtl is not implemented natively on the SCSI transport in
// this library; it is driven via MODE SELECT on devices that support
// it, which is out of scope for the initial encoder (see DESIGN.md).
func (d *Device) ActivationCtl(ctl transport.ActivationCtl, set bool) (transport.ActivationCtl, error) {
	return transport.ActivationCtl{}, fmt.Errorf("scsi: zone_activation_ctl: %w", errNotSupported)
}

var errNotSupported = fmt.Errorf("not supported")

func (d *Device) Pread(p []byte, sectorOffset uint64) (int, error) {
	return d.rw(opRead16, p, sectorOffset, sgio.DirFromDev)
}

func (d *Device) Pwrite(p []byte, sectorOffset uint64) (int, error) {
	return d.rw(opWrite16, p, sectorOffset, sgio.DirToDevice)
}

func (d *Device) rw(opcode uint8, p []byte, sectorOffset uint64, dir int32) (int, error) {
	if d.info.LBlockSize == 0 {
		return 0, fmt.Errorf("scsi: device not classified")
	}
	lba := d.info.Sector2LBA(sectorOffset)
	nblocks := uint32(len(p)) / d.info.LBlockSize

	w := wire.NewWriter(16)
	w.PutUint8(0, opcode)
	w.PutBits(1, 3, 1, 1) // FUA
	w.PutUint64(2, lba)
	w.PutUint32(10, nblocks)

	out, err := d.submit(w.Bytes(), dir, p)
	if err != nil {
		return 0, err
	}
	if out.Result != sgio.ResultOK {
		return 0, fmt.Errorf("scsi: read/write(16) failed: status=%#x sense=%+v", out.Status, out.SenseError)
	}
	// Pread/Pwrite report bytes transferred, matching io.ReaderAt/
	// io.WriterAt convention; callers convert to sectors as needed.
	return len(p) - int(out.Resid), nil
}

func (d *Device) Preadv(vecs []transport.IOVec, sectorOffset uint64) (int, error) {
	return d.rwv(opRead16, vecs, sectorOffset, sgio.DirFromDev)
}

func (d *Device) Pwritev(vecs []transport.IOVec, sectorOffset uint64) (int, error) {
	return d.rwv(opWrite16, vecs, sectorOffset, sgio.DirToDevice)
}

// rwv issues a single READ(16)/WRITE(16) across the whole vector using
// SG_IO's iovec scatter/gather, rather than one command per segment.
func (d *Device) rwv(opcode uint8, vecs []transport.IOVec, sectorOffset uint64, dir int32) (int, error) {
	if d.info.LBlockSize == 0 {
		return 0, fmt.Errorf("scsi: device not classified")
	}
	total := 0
	for _, v := range vecs {
		total += len(v.Buf)
	}
	if total == 0 {
		return 0, nil
	}

	lba := d.info.Sector2LBA(sectorOffset)
	nblocks := uint32(total) / d.info.LBlockSize

	w := wire.NewWriter(16)
	w.PutUint8(0, opcode)
	w.PutBits(1, 3, 1, 1) // FUA
	w.PutUint64(2, lba)
	w.PutUint32(10, nblocks)

	out, err := d.submitv(w.Bytes(), dir, vecs)
	if err != nil {
		return 0, err
	}
	if out.Result != sgio.ResultOK {
		return 0, fmt.Errorf("scsi: read/write(16) failed: status=%#x sense=%+v", out.Status, out.SenseError)
	}
	return total - int(out.Resid), nil
}

func (d *Device) Flush() error {
	w := wire.NewWriter(16)
	w.PutUint8(0, opSyncCache16)
	w.PutBits(1, 1, 1, 1) // IMMED

	out, err := d.sg.Submit(sgio.Command{CDB: w.Bytes(), Dir: sgio.DirNone, Timeout: uint32(constants.SyncCacheTimeout.Milliseconds())})
	if err != nil {
		return err
	}
	if out.Result == sgio.ResultDeviceError {
		d.lastError = out.SenseError
	} else {
		d.lastError = transport.SenseError{}
	}
	if out.Result != sgio.ResultOK {
		return fmt.Errorf("scsi: SYNCHRONIZE CACHE(16) failed: status=%#x", out.Status)
	}
	return nil
}

var _ transport.Backend = (*Device)(nil)
