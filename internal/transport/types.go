// Package transport defines the backend-independent data model (zones,
// domains, realms, activation records, device info, sense errors) and
// the Backend interface that the SCSI, ATA, block and fake transports
// implement. The root zbc package is a thin, documented façade over
// this package: it type-aliases every exported type here so that
// application code never imports internal/transport directly.
package transport

import "github.com/dswarbrick/go-zbc/internal/constants"

// ZoneType identifies the write discipline of a zone.
type ZoneType uint8

const (
	ZoneTypeConventional ZoneType = 0x1
	ZoneTypeSeqWriteReq  ZoneType = 0x2
	ZoneTypeSeqWritePref ZoneType = 0x3
	ZoneTypeSeqOrBefore  ZoneType = 0x4 // SOBR, treated as a write-pointer zone
	ZoneTypeGap          ZoneType = 0x5
	ZoneTypeUnknown      ZoneType = 0x0
)

func (t ZoneType) String() string {
	switch t {
	case ZoneTypeConventional:
		return "conventional"
	case ZoneTypeSeqWriteReq:
		return "sequential-write-required"
	case ZoneTypeSeqWritePref:
		return "sequential-write-preferred"
	case ZoneTypeSeqOrBefore:
		return "sequential-or-before-required"
	case ZoneTypeGap:
		return "gap"
	default:
		return "unknown"
	}
}

// IsWritePointer reports whether zones of this type carry a meaningful
// write pointer. SOBR zones are treated as write-pointer zones whose
// random writes below the pointer are device-accepted (an Open
// Question from the spec).
func (t ZoneType) IsWritePointer() bool {
	switch t {
	case ZoneTypeSeqWriteReq, ZoneTypeSeqWritePref, ZoneTypeSeqOrBefore:
		return true
	default:
		return false
	}
}

// ZoneCondition is the current state of a zone.
type ZoneCondition uint8

const (
	ZoneCondNotWP    ZoneCondition = 0x0
	ZoneCondEmpty    ZoneCondition = 0x1
	ZoneCondImpOpen  ZoneCondition = 0x2
	ZoneCondExpOpen  ZoneCondition = 0x3
	ZoneCondClosed   ZoneCondition = 0x4
	ZoneCondInactive ZoneCondition = 0x5
	ZoneCondReadOnly ZoneCondition = 0xD
	ZoneCondFull     ZoneCondition = 0xE
	ZoneCondOffline  ZoneCondition = 0xF
)

func (c ZoneCondition) String() string {
	switch c {
	case ZoneCondNotWP:
		return "not_wp"
	case ZoneCondEmpty:
		return "empty"
	case ZoneCondImpOpen:
		return "implicit_open"
	case ZoneCondExpOpen:
		return "explicit_open"
	case ZoneCondClosed:
		return "closed"
	case ZoneCondInactive:
		return "inactive"
	case ZoneCondReadOnly:
		return "read_only"
	case ZoneCondFull:
		return "full"
	case ZoneCondOffline:
		return "offline"
	default:
		return "reserved"
	}
}

// ZoneAttributes is a bitset of per-zone attributes.
type ZoneAttributes uint8

const (
	// ZoneAttrRWPRecommended indicates the device recommends resetting
	// the zone's write pointer.
	ZoneAttrRWPRecommended ZoneAttributes = 1 << 0
	// ZoneAttrNonSeq indicates at least one write has been made to the
	// zone at an LBA other than the write pointer.
	ZoneAttrNonSeq ZoneAttributes = 1 << 1
)

// Zone describes one contiguous range of a device's address space, in
// 512-byte sectors.
type Zone struct {
	Start      uint64
	Length     uint64
	WritePtr   uint64
	Type       ZoneType
	Condition  ZoneCondition
	Attributes ZoneAttributes
}

// End returns Start+Length, the sector immediately past the zone.
func (z Zone) End() uint64 { return z.Start + z.Length }

// Full reports whether the zone condition is ZoneCondFull.
func (z Zone) Full() bool { return z.Condition == ZoneCondFull }

// RWPRecommended reports whether the device recommends a write-pointer
// reset for this zone.
func (z Zone) RWPRecommended() bool {
	return z.Attributes&ZoneAttrRWPRecommended != 0
}

// NonSeq reports whether the zone has received a write out of
// sequential order relative to its write pointer.
func (z Zone) NonSeq() bool {
	return z.Attributes&ZoneAttrNonSeq != 0
}

// WritePointerValid reports whether WritePtr carries meaning. Per the
// data model invariants, conventional and gap zones never have a valid
// write pointer, and some transports report the pointer of a full zone
// as the sentinel rather than start+length; callers must tolerate both
// forms on full zones and should prefer z.End() in that case.
func (z Zone) WritePointerValid() bool {
	if z.Type == ZoneTypeConventional || z.Type == ZoneTypeGap {
		return false
	}
	return z.WritePtr != constants.SectorInvalid
}

// ReportOption selects which zones REPORT ZONES returns. The low 6
// bits select a condition/attribute filter; ReportOptionPartial (bit
// 7) may be ORed in to permit a short reply.
type ReportOption uint8

const (
	ReportOptionAll            ReportOption = 0x00
	ReportOptionEmpty          ReportOption = 0x01
	ReportOptionImpOpen        ReportOption = 0x02
	ReportOptionExpOpen        ReportOption = 0x03
	ReportOptionClosed         ReportOption = 0x04
	ReportOptionFull           ReportOption = 0x05
	ReportOptionReadOnly       ReportOption = 0x06
	ReportOptionOffline        ReportOption = 0x07
	ReportOptionInactive       ReportOption = 0x08
	ReportOptionRWPRecommended ReportOption = 0x10
	ReportOptionNonSeq         ReportOption = 0x11
	ReportOptionGap            ReportOption = 0x12
	ReportOptionNotWP          ReportOption = 0x3F
	ReportOptionPartial        ReportOption = 0x80

	reportOptionFilterMask ReportOption = 0x3F
)

// WithPartial returns the option with the partial bit set, permitting
// the device to return fewer zones than the reply buffer allows.
func (o ReportOption) WithPartial() ReportOption {
	return o | ReportOptionPartial
}

// Filter returns the low 6 bits, excluding the partial flag.
func (o ReportOption) Filter() ReportOption {
	return o & reportOptionFilterMask
}

// Partial reports whether the partial bit is set.
func (o ReportOption) Partial() bool {
	return o&ReportOptionPartial != 0
}

// DeviceType identifies the transport selected for an open handle.
type DeviceType uint8

const (
	DeviceTypeBlock DeviceType = iota
	DeviceTypeSCSI
	DeviceTypeATA
	DeviceTypeFake
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeBlock:
		return "block"
	case DeviceTypeSCSI:
		return "scsi"
	case DeviceTypeATA:
		return "ata"
	case DeviceTypeFake:
		return "fake"
	default:
		return "unknown"
	}
}

// ZoneModel classifies who enforces zone-write ordering.
type ZoneModel uint8

const (
	ZoneModelUnknown ZoneModel = iota
	ZoneModelHostManaged
	ZoneModelHostAware
	ZoneModelDeviceManaged
	ZoneModelStandard
)

func (m ZoneModel) String() string {
	switch m {
	case ZoneModelHostManaged:
		return "host-managed"
	case ZoneModelHostAware:
		return "host-aware"
	case ZoneModelDeviceManaged:
		return "device-managed"
	case ZoneModelStandard:
		return "standard"
	default:
		return "unknown"
	}
}

// InfoFlags is a bitset of device capability/behaviour flags.
type InfoFlags uint32

const (
	FlagUnrestrictedRead    InfoFlags = 1 << 0
	FlagZoneDomainsSupport  InfoFlags = 1 << 1
	FlagZoneRealmsSupport   InfoFlags = 1 << 2
	FlagURSWRZSetSupport    InfoFlags = 1 << 3
	FlagZAControlSupport    InfoFlags = 1 << 4
	FlagConvShiftingBoundary InfoFlags = 1 << 5
	FlagSeqShiftingBoundary  InfoFlags = 1 << 6
)

// Info describes an opened device's identity, geometry and limits.
type Info struct {
	Type      DeviceType
	Model     ZoneModel
	VendorID  string
	Flags     InfoFlags
	Path      string

	Sectors   uint64 // device capacity in 512-byte sectors
	LBlockSize uint32
	LBlocks   uint64
	PBlockSize uint32
	PBlocks   uint64

	MaxRWSectors               uint64 // 0, constants.NoLimit32 or constants.SectorInvalid if unknown
	OptNrOpenSeqPref           uint32
	OptNrNonSeqWriteSeqPref    uint32
	MaxNrOpenSeqReq            uint32
	MaxActivation              uint32
}

// HasFlag reports whether all bits of f are set.
func (i Info) HasFlag(f InfoFlags) bool { return i.Flags&f == f }

// LBA2Sector converts a device logical block address to a 512-byte
// sector offset.
func (i Info) LBA2Sector(lba uint64) uint64 {
	if i.LBlockSize == 0 {
		return lba
	}
	return lba * uint64(i.LBlockSize) / constants.SectorSize
}

// Sector2LBA converts a 512-byte sector offset to a device logical
// block address. Round-trips with LBA2Sector for any sector aligned to
// LBlockSize.
func (i Info) Sector2LBA(sector uint64) uint64 {
	if i.LBlockSize == 0 {
		return sector
	}
	return sector * constants.SectorSize / uint64(i.LBlockSize)
}

// ZoneDomain groups a contiguous run of zones of one type.
type ZoneDomain struct {
	ID          uint8
	Type        ZoneType
	NrZones     uint32
	StartSector uint64
	EndSector   uint64
	Flags       uint32 // REPORT ZONE DOMAINS descriptor bytes 42..45
}

// ZoneDomain descriptor flags bits (bytes 42..45 of the REPORT ZONE
// DOMAINS descriptor).
const (
	// ZoneDomainFlagValidType indicates the descriptor's Type field is
	// meaningful; some domains report a variable zone type and leave
	// this clear.
	ZoneDomainFlagValidType uint32 = 1 << 0
	// ZoneDomainFlagShiftingBoundaries indicates the domain's realms
	// may change start/end LBA across activations of other domains.
	ZoneDomainFlagShiftingBoundaries uint32 = 1 << 1
)

// RealmDomainRestriction describes one domain's addressable extent
// inside a realm, and the zone type it would have in that domain.
type RealmDomainRestriction struct {
	StartSector   uint64
	EndSector     uint64
	LengthInZones uint32
	Type          ZoneType
	DomainID      uint8
}

// ZoneRealm is a region of the medium that can be activated into one
// of several zone types.
type ZoneRealm struct {
	Number           uint32
	Type             ZoneType
	DomainID         uint8
	ActivationFlags  uint64 // bitmask of targetable domain ids
	Restrictions     []RealmDomainRestriction
}

// ActivationRecord describes the post-activation (or, for a query,
// predicted) layout of one affected range.
type ActivationRecord struct {
	StartZoneSector uint64
	NrZones         uint32
	Type            ZoneType
	Condition       ZoneCondition
	DomainID        uint8
}

// SenseError is the thread-local-equivalent error record populated by
// any failing operation. On a single-threaded-per-handle Device
// (see DESIGN.md's resolution of "thread-local" for Go), this is
// stored on the handle itself rather than in real TLS.
type SenseError struct {
	SenseKey uint8
	ASC      uint8
	ASCQ     uint8
	ErrZA    uint8  // valid only for activation failures
	ErrCBF   uint64 // "check boundary first" sector, activation only
}

func (e SenseError) ASCASCQ() uint16 { return uint16(e.ASC)<<8 | uint16(e.ASCQ) }

// IsZero reports whether no sense data has been recorded.
func (e SenseError) IsZero() bool { return e == SenseError{} }

// ZoneOpKind identifies one of the four zone-management operations
// sharing a single opcode family on every transport.
type ZoneOpKind uint8

const (
	ZoneOpOpen ZoneOpKind = iota
	ZoneOpClose
	ZoneOpFinish
	ZoneOpResetWP
)

func (k ZoneOpKind) String() string {
	switch k {
	case ZoneOpOpen:
		return "OPEN_ZONE"
	case ZoneOpClose:
		return "CLOSE_ZONE"
	case ZoneOpFinish:
		return "FINISH_ZONE"
	case ZoneOpResetWP:
		return "RESET_WRITE_POINTER"
	default:
		return "UNKNOWN_ZONE_OP"
	}
}

// ActivateRequest carries the parameters of a ZONE ACTIVATE / ZONE
// QUERY command.
type ActivateRequest struct {
	ZoneStartSector uint64 // realm number if !ByZoneSector
	ByZoneSector    bool   // address by zone LBA instead of realm number
	AllZones        bool
	NrZones         uint32 // ignored when ZSRC is true
	ZSRC            bool   // zone source count travels via FSNOZ, not the CDB
	Use32ByteCDB    bool
	Query           bool // query (no state change) vs activate
	Type            ZoneType
	DomainID        uint8
}

// ActivationCtl is the (FSNOZ, URSWRZ, MaxActivation) triple managed by
// zone_activation_ctl. A field holding its sentinel ("do not change")
// width-appropriate all-ones value is left untouched by a Set call.
type ActivationCtl struct {
	FSNOZ         uint16
	URSWRZ        uint8 // 0, 1, or constants.NoLimit16&0xff sentinel meaning "no change"
	MaxActivation uint32
}

// IOVec is one scatter/gather segment for Preadv/Pwritev.
type IOVec struct {
	Buf []byte
}

// Backend is the operation vtable every transport (block, scsi, ata,
// fake) implements. Device dispatches every public operation to one
// Backend value chosen at Open time; callers never observe which
// concrete transport is in use, only whether the operation succeeded.
type Backend interface {
	Info() Info

	// ReportZones issues one or more REPORT ZONES (or BLKREPORTZONE)
	// calls starting at startSector, filling buf with up to len(buf)
	// zones and returning the number filled. If buf is nil, it returns
	// the total count of matching zones without transferring
	// descriptors.
	ReportZones(startSector uint64, opt ReportOption, buf []Zone) (int, error)

	// ZoneOp performs OPEN/CLOSE/FINISH/RESET WP on one zone (or, when
	// all is true, the "all zones" variant).
	ZoneOp(kind ZoneOpKind, startSector uint64, all bool) error

	// ReportDomains fills buf with up to len(buf) zone domains starting
	// at startSector and returns the number filled. If buf is nil, the
	// SCSI and ATA transports return the domain count from the reply
	// header without decoding descriptors.
	ReportDomains(startSector uint64, buf []ZoneDomain) (int, error)

	// ReportRealms fills buf with up to len(buf) zone realms starting at
	// startSector and returns the number filled. If buf is nil, the SCSI
	// and ATA transports return the realm count from the reply header
	// without decoding descriptors.
	ReportRealms(startSector uint64, buf []ZoneRealm) (int, error)

	// ZoneActivate performs ZONE ACTIVATE or ZONE QUERY and fills recs
	// with the activation records the device returns (which may be
	// present even on failure).
	ZoneActivate(req ActivateRequest, recs []ActivationRecord) (int, error)

	// ActivationCtl gets (set==false) or sets (set==true) the device's
	// FSNOZ/URSWRZ/MaxActivation triple.
	ActivationCtl(ctl ActivationCtl, set bool) (ActivationCtl, error)

	Pread(p []byte, sectorOffset uint64) (int, error)
	Pwrite(p []byte, sectorOffset uint64) (int, error)
	Preadv(vecs []IOVec, sectorOffset uint64) (int, error)
	Pwritev(vecs []IOVec, sectorOffset uint64) (int, error)
	Flush() error

	// LastError returns the sense data populated by the most recent
	// failing call on this backend.
	LastError() SenseError

	Close() error
}
