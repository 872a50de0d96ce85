//go:build linux && !(mips || mipsle || mips64 || mips64le || ppc64 || ppc64le || sparc64)

package linux

// asm-generic ioctl encoding.
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)
