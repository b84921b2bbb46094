// Package sgio implements command transport (C1): it submits a CDB to
// the Linux generic SCSI interface (SG_IO) over a raw file descriptor,
// decodes the returned sense buffer, and classifies the result into
// the library's error kinds. ATA pass-through commands ride the same
// ioctl wrapped inside a SCSI ATA PASS-THROUGH(16) CDB, so this package
// is shared by internal/scsi and internal/ata.
package sgio

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/dswarbrick/go-zbc/internal/constants"
	"github.com/dswarbrick/go-zbc/internal/transport"
)

// Data transfer directions for sgIoHdr.dxferDirection.
const (
	DirNone     = -1
	DirToDevice = -2
	DirFromDev  = -3
	DirToFromDev = -4
)

const (
	sgIO           = 0x2285
	sgGetTableSize = 0x227f // SG_GET_SG_TABLESIZE
	infoOKMask     = 0x1
	infoOK         = 0x0
)

// sgIoHdr mirrors sg_io_hdr_t from <scsi/sg.h>, field for field. Go
// struct layout matches the C layout on amd64/arm64 without padding
// directives because every field here is naturally aligned.
type sgIoHdr struct {
	interfaceID   int32
	dxferDir      int32
	cmdLen        uint8
	mxSbLen       uint8
	iovecCount    uint16
	dxferLen      uint32
	dxferp        uintptr
	cmdp          uintptr
	sbp           uintptr
	timeout       uint32
	flags         uint32
	packID        int32
	usrPtr        uintptr
	status        uint8
	maskedStatus  uint8
	msgStatus     uint8
	sbLenWr       uint8
	hostStatus    uint16
	driverStatus  uint16
	resid         int32
	duration      uint32
	info          uint32
}

// Result classifies the outcome of a submitted command.
type Result int

const (
	ResultOK Result = iota
	ResultTimeout
	ResultTransportError
	ResultDeviceError
)

// Command is one CDB submission: the encoded CDB, its data direction,
// an optional single buffer or scatter/gather vector, and a timeout.
// Exactly one of Buf or Vecs should be set for a data-carrying command.
type Command struct {
	CDB     []byte
	Dir     int32
	Buf     []byte
	Vecs    []transport.IOVec
	Timeout uint32 // milliseconds
	DirectIO bool
}

// Outcome is the decoded result of submitting a Command.
type Outcome struct {
	Result      Result
	Status      uint8
	HostStatus  uint16
	DriverStatus uint16
	Resid       int32
	Sense       []byte
	SenseError  transport.SenseError
}

// Device wraps an open file descriptor for SG_IO submission.
type Device struct {
	fd   int
	path string
}

// Open opens path for generic SCSI pass-through.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Device{fd: fd, path: path}, nil
}

// FD returns the underlying file descriptor.
func (d *Device) FD() int { return d.fd }

// Close closes the underlying file descriptor.
func (d *Device) Close() error {
	return unix.Close(d.fd)
}

// Submit issues one SG_IO ioctl and decodes the result.
func (d *Device) Submit(cmd Command) (Outcome, error) {
	if len(cmd.CDB) == 0 || len(cmd.CDB) > 16 {
		return Outcome{}, fmt.Errorf("sgio: CDB length %d out of range", len(cmd.CDB))
	}

	sense := make([]byte, 64)
	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = uint32(constants.DefaultCommandTimeout.Milliseconds())
	}

	hdr := sgIoHdr{
		interfaceID: 'S',
		dxferDir:    cmd.Dir,
		cmdLen:      uint8(len(cmd.CDB)),
		mxSbLen:     uint8(len(sense)),
		timeout:     timeout,
		cmdp:        uintptr(unsafe.Pointer(&cmd.CDB[0])),
		sbp:         uintptr(unsafe.Pointer(&sense[0])),
	}

	switch {
	case len(cmd.Vecs) > 0:
		iov := make([]unix.Iovec, len(cmd.Vecs))
		total := 0
		for i, v := range cmd.Vecs {
			if len(v.Buf) == 0 {
				continue
			}
			iov[i].Base = &v.Buf[0]
			iov[i].SetLen(len(v.Buf))
			total += len(v.Buf)
		}
		hdr.iovecCount = uint16(len(iov))
		hdr.dxferLen = uint32(total)
		if len(iov) > 0 {
			hdr.dxferp = uintptr(unsafe.Pointer(&iov[0]))
		}
	case len(cmd.Buf) > 0:
		hdr.dxferLen = uint32(len(cmd.Buf))
		hdr.dxferp = uintptr(unsafe.Pointer(&cmd.Buf[0]))
		if cmd.DirectIO {
			hdr.flags |= 0x1 // SG_FLAG_DIRECT_IO
		}
	default:
		hdr.dxferDir = DirNone
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), sgIO, uintptr(unsafe.Pointer(&hdr)))
	if errno != 0 {
		if errno == unix.ETIMEDOUT {
			return Outcome{Result: ResultTimeout}, nil
		}
		return Outcome{}, errno
	}

	out := Outcome{
		Status:       hdr.status,
		HostStatus:   hdr.hostStatus,
		DriverStatus: hdr.driverStatus,
		Resid:        hdr.resid,
		Sense:        sense[:hdr.sbLenWr],
	}

	if hdr.info&infoOKMask == infoOK {
		out.Result = ResultOK
		return out, nil
	}

	const samStatCheckCondition = 0x02
	if out.Status == samStatCheckCondition {
		out.Result = ResultDeviceError
		out.SenseError = ParseSense(out.Sense)
		return out, nil
	}

	out.Result = ResultTransportError
	return out, nil
}

// ParseSense decodes a fixed (70h/71h) or descriptor (72h/73h) format
// sense buffer into a SenseError.
func ParseSense(sense []byte) transport.SenseError {
	if len(sense) < 1 {
		return transport.SenseError{}
	}
	responseCode := sense[0] & 0x7f

	switch responseCode {
	case 0x70, 0x71: // fixed format
		if len(sense) < 14 {
			return transport.SenseError{}
		}
		return transport.SenseError{
			SenseKey: sense[2] & 0x0f,
			ASC:      sense[12],
			ASCQ:     sense[13],
		}
	case 0x72, 0x73: // descriptor format
		if len(sense) < 8 {
			return transport.SenseError{}
		}
		se := transport.SenseError{
			SenseKey: sense[1] & 0x0f,
			ASC:      sense[2],
			ASCQ:     sense[3],
		}
		parseATADescriptor(sense, &se)
		return se
	default:
		return transport.SenseError{}
	}
}

// parseATADescriptor extracts the ATA status/error pair when the sense
// data carries an ATA Status Return descriptor (descriptor type 0x09),
// used by internal/ata to detect a failed pass-through command.
func parseATADescriptor(sense []byte, se *transport.SenseError) {
	if len(sense) < 8 {
		return
	}
	addlLen := int(sense[7])
	off := 8
	for off+1 < 8+addlLen && off+1 < len(sense) {
		descType := sense[off]
		descLen := int(sense[off+1])
		if descType == 0x09 && off+13 < len(sense) {
			// byte 3 of the descriptor is the ATA error register; bit 0
			// of the ATA status register (byte 13) marks a failure.
			se.ErrZA = sense[off+13]
		}
		off += 2 + descLen
		if descLen == 0 {
			break
		}
	}
}

// DiscoverLimits learns the per-command byte and segment limits for
// path, combining sysfs queue attributes with an SG_GET_SG_TABLESIZE
// ioctl fallback, per the command-transport bring-up order.
func DiscoverLimits(d *Device, sysfsQueueDir string) (maxSegments int, maxSectorsKB int) {
	maxSegments = constants.DefaultMaxSegments
	maxSectorsKB = 0

	if sysfsQueueDir != "" {
		if v, ok := readSysfsInt(sysfsQueueDir + "/max_segments"); ok {
			maxSegments = v
		}
		if v, ok := readSysfsInt(sysfsQueueDir + "/max_sectors_kb"); ok {
			maxSectorsKB = v
		}
	}

	if maxSectorsKB == 0 {
		var tableSize int
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), sgGetTableSize, uintptr(unsafe.Pointer(&tableSize)))
		if errno == 0 && tableSize > 0 {
			maxSegments = tableSize
		}
	}

	return maxSegments, maxSectorsKB
}

func readSysfsInt(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	var v int
	if _, err := fmt.Sscanf(string(data), "%d", &v); err != nil {
		return 0, false
	}
	return v, true
}
