package zbc

import (
	"time"

	"github.com/dswarbrick/go-zbc/internal/constants"
)

const defaultMaxRWSectors = 65536 // used when the transport does not report a limit

func (d *Device) maxRWSectors() uint64 {
	info := d.Info()
	if info.MaxRWSectors == 0 || info.MaxRWSectors == uint64(constants.NoLimit32) || info.MaxRWSectors == constants.SectorInvalid {
		return defaultMaxRWSectors
	}
	return info.MaxRWSectors
}

func (d *Device) checkAlignment(op string, p []byte, sectorOffset uint64) error {
	info := d.Info()
	blockSectors := uint64(info.LBlockSize) / constants.SectorSize
	if blockSectors == 0 {
		blockSectors = 1
	}
	if sectorOffset%blockSectors != 0 {
		return NewError(op, ErrCodeInvalidArgument, "offset not aligned to a logical block")
	}
	if uint64(len(p))%(blockSectors*constants.SectorSize) != 0 {
		return NewError(op, ErrCodeInvalidArgument, "length not a multiple of the logical block size")
	}
	return nil
}

// Pread reads len(p)/512 sectors starting at sectorOffset, splitting
// the request into at most maxRWSectors-sized sub-commands and summing
// their results. Partial completion of any sub-command stops the read
// and returns what has been transferred so far.
func (d *Device) Pread(p []byte, sectorOffset uint64) (int, error) {
	if err := d.checkAlignment("PREAD", p, sectorOffset); err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := d.splitRW(p, sectorOffset, d.backend.Pread)
	d.metrics.RecordRead(uint64(n), uint64(time.Since(start).Nanoseconds()), err == nil)
	return n, err
}

// Pwrite writes len(p)/512 sectors starting at sectorOffset. Writes to
// a sequential-write-required zone must land exactly at the zone's
// current write pointer; the device enforces this and the failure
// surfaces as an unaligned-write or write-boundary-violation sense.
func (d *Device) Pwrite(p []byte, sectorOffset uint64) (int, error) {
	if err := d.checkAlignment("PWRITE", p, sectorOffset); err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := d.splitRW(p, sectorOffset, d.backend.Pwrite)
	d.metrics.RecordWrite(uint64(n), uint64(time.Since(start).Nanoseconds()), err == nil)
	return n, err
}

func (d *Device) splitRW(p []byte, sectorOffset uint64, call func([]byte, uint64) (int, error)) (int, error) {
	maxBytes := int(d.maxRWSectors() * constants.SectorSize)
	total := 0
	for total < len(p) {
		chunk := p[total:]
		if len(chunk) > maxBytes {
			chunk = chunk[:maxBytes]
		}
		n, err := call(chunk, sectorOffset+uint64(total)/constants.SectorSize)
		total += n
		if err != nil {
			return total, d.deviceErr("PREAD_PWRITE", err)
		}
		if n == 0 {
			if total == 0 {
				return 0, NewError("PREAD_PWRITE", ErrCodeDevice, "zero-sector transfer with no error reported")
			}
			break
		}
		if n < len(chunk) {
			break
		}
	}
	return total, nil
}

// Preadv and Pwritev carry out a Pread/Pwrite-style request across a
// scatter/gather vector without copying data. A vector of more than
// constants.DefaultMaxSegments entries is submitted in groups of at
// most that many entries, each group a sub-slice of the caller's
// vector. Individual buffers are never split, the group size does not
// follow the transport's own segment or sector limits, and no
// alignment check is made on the vector.
func (d *Device) Preadv(vecs []IOVec, sectorOffset uint64) (int, error) {
	start := time.Now()
	n, err := d.splitVector(vecs, sectorOffset, d.backend.Preadv)
	d.metrics.RecordRead(uint64(n), uint64(time.Since(start).Nanoseconds()), err == nil)
	return n, err
}

func (d *Device) Pwritev(vecs []IOVec, sectorOffset uint64) (int, error) {
	start := time.Now()
	n, err := d.splitVector(vecs, sectorOffset, d.backend.Pwritev)
	d.metrics.RecordWrite(uint64(n), uint64(time.Since(start).Nanoseconds()), err == nil)
	return n, err
}

func (d *Device) splitVector(vecs []IOVec, sectorOffset uint64, call func([]IOVec, uint64) (int, error)) (int, error) {
	const maxSegments = constants.DefaultMaxSegments

	total := 0
	i := 0
	for i < len(vecs) {
		group := vecs[i:]
		if len(group) > maxSegments {
			group = group[:maxSegments]
		}
		n, err := call(group, sectorOffset+uint64(total)/constants.SectorSize)
		total += n
		groupBytes := 0
		for _, v := range group {
			groupBytes += len(v.Buf)
		}
		if err != nil {
			return total, d.deviceErr("PREADV_PWRITEV", err)
		}
		if n < groupBytes {
			break
		}
		i += len(group)
	}
	return total, nil
}

// Flush issues a synchronous cache-flush command (SYNCHRONIZE CACHE(16)
// or FLUSH CACHE EXT).
func (d *Device) Flush() error {
	start := time.Now()
	err := d.backend.Flush()
	d.metrics.RecordFlush(uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		return d.deviceErr("FLUSH", err)
	}
	return nil
}
