package zbc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zbc "github.com/dswarbrick/go-zbc"
	"github.com/dswarbrick/go-zbc/internal/fake"
)

func openFakeDevice(t *testing.T) *zbc.Device {
	t.Helper()
	dev, err := zbc.Open("/nonexistent/zbc-test0", zbc.OpenOptions{
		Flags: zbc.AllowFake,
		FakeSpec: []fake.ZoneSpec{
			{Length: 0x8000, Type: zbc.ZoneTypeConventional},
			{Length: 0x8000, Type: zbc.ZoneTypeSeqWriteReq},
			{Length: 0x8000, Type: zbc.ZoneTypeSeqWriteReq},
			{Length: 0x8000, Type: zbc.ZoneTypeSeqWriteReq},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestOpenDispatchesToFakeBackend(t *testing.T) {
	dev := openFakeDevice(t)
	info := dev.Info()
	assert.Equal(t, zbc.DeviceTypeFake, info.Type)
	assert.Equal(t, uint64(0x20000), info.Sectors)
}

func TestOpenFailsWithoutAnyMatchingBackend(t *testing.T) {
	_, err := zbc.Open("/nonexistent/zbc-test1", zbc.OpenOptions{Flags: zbc.AllowBlock | zbc.AllowSCSI | zbc.AllowATA})
	require.Error(t, err)
}

func TestListZonesReturnsExactCount(t *testing.T) {
	dev := openFakeDevice(t)
	zones, err := dev.ListZones(0, zbc.ReportOptionAll)
	require.NoError(t, err)
	assert.Len(t, zones, 4)
	assert.Equal(t, zbc.ZoneTypeConventional, zones[0].Type)
}

func TestZoneLifecycleTransitions(t *testing.T) {
	dev := openFakeDevice(t)

	require.NoError(t, dev.OpenZone(0x8000, false))
	zones, err := dev.ListZones(0x8000, zbc.ReportOptionExpOpen)
	require.NoError(t, err)
	require.Len(t, zones, 1)

	require.NoError(t, dev.CloseZone(0x8000, false))
	zones, err = dev.ListZones(0x8000, zbc.ReportOptionClosed)
	require.NoError(t, err)
	require.Len(t, zones, 1)

	require.NoError(t, dev.FinishZone(0x8000, false))
	zones, err = dev.ListZones(0x8000, zbc.ReportOptionFull)
	require.NoError(t, err)
	require.Len(t, zones, 1)

	require.NoError(t, dev.ResetZone(0x8000, false))
	zones, err = dev.ListZones(0x8000, zbc.ReportOptionEmpty)
	require.NoError(t, err)
	// The reset zone and the two untouched sequential zones after it.
	require.Len(t, zones, 3)
	assert.Equal(t, uint64(0x8000), zones[0].Start)
}

func TestPwriteThenPreadRoundTrips(t *testing.T) {
	dev := openFakeDevice(t)

	want := make([]byte, 4096)
	for i := range want {
		want[i] = byte(i)
	}
	n, err := dev.Pwrite(want, 0x8000)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)

	got := make([]byte, 4096)
	n, err = dev.Pread(got, 0x8000)
	require.NoError(t, err)
	assert.Equal(t, len(got), n)
	assert.Equal(t, want, got)
}

func TestPwriteRejectsMisalignedLength(t *testing.T) {
	dev := openFakeDevice(t)
	_, err := dev.Pwrite(make([]byte, 511), 0x8000)
	require.Error(t, err)
	assert.True(t, zbc.IsCode(err, zbc.ErrCodeInvalidArgument))
}

func TestActivationNotSupportedOnFakeBackend(t *testing.T) {
	dev := openFakeDevice(t)

	_, err := dev.ZoneActivate(zbc.ActivateRequest{}, nil)
	require.Error(t, err)

	_, err = dev.ListDomains(0)
	require.Error(t, err)
}
