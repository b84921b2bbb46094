// Package zbc provides host-side access to zoned block devices (ZBC/ZAC):
// zone reporting, zone management, zone domains and realms, zone
// activation, and sector-addressed I/O, dispatched across a SCSI, ATA,
// Linux block-ioctl, or in-memory fake transport depending on what the
// target device node supports.
package zbc

import "github.com/dswarbrick/go-zbc/internal/transport"

// Re-exported data model types. Application code never imports
// internal/transport directly; every public operation here speaks in
// terms of these aliases.
type (
	ZoneType               = transport.ZoneType
	ZoneCondition          = transport.ZoneCondition
	ZoneAttributes         = transport.ZoneAttributes
	Zone                   = transport.Zone
	ReportOption           = transport.ReportOption
	DeviceType             = transport.DeviceType
	ZoneModel              = transport.ZoneModel
	InfoFlags              = transport.InfoFlags
	Info                   = transport.Info
	ZoneDomain             = transport.ZoneDomain
	RealmDomainRestriction = transport.RealmDomainRestriction
	ZoneRealm              = transport.ZoneRealm
	ActivationRecord       = transport.ActivationRecord
	ZoneOpKind             = transport.ZoneOpKind
	ActivateRequest        = transport.ActivateRequest
	ActivationCtl          = transport.ActivationCtl
	IOVec                  = transport.IOVec
	SenseError             = transport.SenseError
)

const (
	ZoneTypeConventional = transport.ZoneTypeConventional
	ZoneTypeSeqWriteReq  = transport.ZoneTypeSeqWriteReq
	ZoneTypeSeqWritePref = transport.ZoneTypeSeqWritePref
	ZoneTypeSeqOrBefore  = transport.ZoneTypeSeqOrBefore
	ZoneTypeGap          = transport.ZoneTypeGap
	ZoneTypeUnknown      = transport.ZoneTypeUnknown

	ZoneCondNotWP    = transport.ZoneCondNotWP
	ZoneCondEmpty    = transport.ZoneCondEmpty
	ZoneCondImpOpen  = transport.ZoneCondImpOpen
	ZoneCondExpOpen  = transport.ZoneCondExpOpen
	ZoneCondClosed   = transport.ZoneCondClosed
	ZoneCondInactive = transport.ZoneCondInactive
	ZoneCondReadOnly = transport.ZoneCondReadOnly
	ZoneCondFull     = transport.ZoneCondFull
	ZoneCondOffline  = transport.ZoneCondOffline

	ZoneAttrRWPRecommended = transport.ZoneAttrRWPRecommended
	ZoneAttrNonSeq         = transport.ZoneAttrNonSeq

	ReportOptionAll            = transport.ReportOptionAll
	ReportOptionEmpty          = transport.ReportOptionEmpty
	ReportOptionImpOpen        = transport.ReportOptionImpOpen
	ReportOptionExpOpen        = transport.ReportOptionExpOpen
	ReportOptionClosed         = transport.ReportOptionClosed
	ReportOptionFull           = transport.ReportOptionFull
	ReportOptionReadOnly       = transport.ReportOptionReadOnly
	ReportOptionOffline        = transport.ReportOptionOffline
	ReportOptionInactive       = transport.ReportOptionInactive
	ReportOptionRWPRecommended = transport.ReportOptionRWPRecommended
	ReportOptionNonSeq         = transport.ReportOptionNonSeq
	ReportOptionGap            = transport.ReportOptionGap
	ReportOptionNotWP          = transport.ReportOptionNotWP
	ReportOptionPartial        = transport.ReportOptionPartial

	DeviceTypeBlock = transport.DeviceTypeBlock
	DeviceTypeSCSI  = transport.DeviceTypeSCSI
	DeviceTypeATA   = transport.DeviceTypeATA
	DeviceTypeFake  = transport.DeviceTypeFake

	ZoneModelUnknown       = transport.ZoneModelUnknown
	ZoneModelHostManaged   = transport.ZoneModelHostManaged
	ZoneModelHostAware     = transport.ZoneModelHostAware
	ZoneModelDeviceManaged = transport.ZoneModelDeviceManaged
	ZoneModelStandard      = transport.ZoneModelStandard

	FlagUnrestrictedRead     = transport.FlagUnrestrictedRead
	FlagZoneDomainsSupport   = transport.FlagZoneDomainsSupport
	FlagZoneRealmsSupport    = transport.FlagZoneRealmsSupport
	FlagURSWRZSetSupport     = transport.FlagURSWRZSetSupport
	FlagZAControlSupport     = transport.FlagZAControlSupport
	FlagConvShiftingBoundary = transport.FlagConvShiftingBoundary
	FlagSeqShiftingBoundary  = transport.FlagSeqShiftingBoundary

	ZoneOpOpen    = transport.ZoneOpOpen
	ZoneOpClose   = transport.ZoneOpClose
	ZoneOpFinish  = transport.ZoneOpFinish
	ZoneOpResetWP = transport.ZoneOpResetWP
)
