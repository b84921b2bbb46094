package fake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/go-zbc/internal/transport"
)

func testDevice() *Device {
	return New("/fake/zbc0", []ZoneSpec{
		{Length: 0x10000, Type: transport.ZoneTypeConventional},
		{Length: 0x10000, Type: transport.ZoneTypeSeqWriteReq},
		{Length: 0x10000, Type: transport.ZoneTypeSeqWriteReq},
	}, 0)
}

func TestNewSeedsZoneTable(t *testing.T) {
	d := testDevice()

	require.Len(t, d.zones, 3)
	assert.Equal(t, transport.ZoneCondNotWP, d.zones[0].Condition)
	assert.Equal(t, transport.ZoneCondEmpty, d.zones[1].Condition)
	assert.Equal(t, uint64(0x10000), d.zones[1].Start)
	assert.Equal(t, d.zones[1].Start, d.zones[1].WritePtr)
}

func TestReportZonesFilters(t *testing.T) {
	d := testDevice()
	require.NoError(t, d.ZoneOp(transport.ZoneOpOpen, 0x10000, false))

	var buf [8]transport.Zone
	n, err := d.ReportZones(0, transport.ReportOptionExpOpen, buf[:])
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, uint64(0x10000), buf[0].Start)
}

func TestReportZonesNilBufferCountsOnly(t *testing.T) {
	d := testDevice()
	n, err := d.ReportZones(0, transport.ReportOptionAll, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestZoneOpOpenRejectsFullZone(t *testing.T) {
	d := testDevice()
	require.NoError(t, d.ZoneOp(transport.ZoneOpFinish, 0x10000, false))

	err := d.ZoneOp(transport.ZoneOpOpen, 0x10000, false)
	require.Error(t, err)
	assert.Equal(t, uint8(senseIllegalRequest), d.LastError().SenseKey)
}

func TestZoneOpResetClearsWritePointerAndAttributes(t *testing.T) {
	d := testDevice()
	buf := make([]byte, 512)
	_, err := d.Pwrite(buf, 0x10001) // write off the write pointer: sets non-seq
	require.NoError(t, err)

	require.NoError(t, d.ZoneOp(transport.ZoneOpResetWP, 0x10000, false))
	z := d.zones[1]
	assert.Equal(t, transport.ZoneCondEmpty, z.Condition)
	assert.Equal(t, z.Start, z.WritePtr)
	assert.False(t, z.NonSeq())
}

func TestZoneOpAllAppliesToEverySequentialZone(t *testing.T) {
	d := testDevice()
	require.NoError(t, d.ZoneOp(transport.ZoneOpFinish, 0, true))

	assert.Equal(t, transport.ZoneCondNotWP, d.zones[0].Condition) // conventional zone untouched
	assert.Equal(t, transport.ZoneCondFull, d.zones[1].Condition)
	assert.Equal(t, transport.ZoneCondFull, d.zones[2].Condition)
}

func TestPwriteAdvancesWritePointer(t *testing.T) {
	d := testDevice()
	buf := make([]byte, 1024)
	n, err := d.Pwrite(buf, 0x10000)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, uint64(0x10000+2), d.zones[1].WritePtr)
	assert.Equal(t, transport.ZoneCondImpOpen, d.zones[1].Condition)
}

func TestPwriteOffWritePointerFlagsNonSeq(t *testing.T) {
	d := testDevice()
	buf := make([]byte, 512)
	_, err := d.Pwrite(buf, 0x10001)
	require.NoError(t, err)
	assert.True(t, d.zones[1].NonSeq())
}

func TestPwriteBeyondZoneEndFinishesZone(t *testing.T) {
	d := testDevice()
	buf := make([]byte, 512)
	lastSector := d.zones[1].End() - 1
	_, err := d.Pwrite(buf, lastSector)
	require.NoError(t, err)
	assert.Equal(t, transport.ZoneCondFull, d.zones[1].Condition)
	assert.Equal(t, d.zones[1].End(), d.zones[1].WritePtr)
}

func TestPreadPastEndOfDeviceReturnsZero(t *testing.T) {
	d := testDevice()
	buf := make([]byte, 512)
	n, err := d.Pread(buf, d.info.Sectors+1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDomainsRealmsActivationNotSupported(t *testing.T) {
	d := testDevice()

	_, err := d.ReportDomains(0, nil)
	assert.Error(t, err)

	_, err = d.ReportRealms(0, nil)
	assert.Error(t, err)

	_, err = d.ZoneActivate(transport.ActivateRequest{}, nil)
	assert.Error(t, err)

	_, err = d.ActivationCtl(transport.ActivationCtl{}, false)
	assert.Error(t, err)
}

var _ transport.Backend = (*Device)(nil)
