//go:build linux && (mips || mipsle || mips64 || mips64le || ppc64 || ppc64le || sparc64)

package linux

// ioctl encoding of architectures with a 13-bit size field.
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 13

	iocNone  = 1
	iocRead  = 2
	iocWrite = 4
)
