// Package regmap defines the register protocol shared by the fan firmware
// and its hosts.
//
// A fan controller exposes a flat map of 8-bit register addresses. Hosts
// read a register with a vendor, interface-recipient, device-to-host
// control transfer whose bRequest is the address, and write one with the
// host-to-device form carrying the 16-bit value in wValue. Multi-byte
// values are little-endian.
//
// # Discovery
//
// Devices advertise the protocol through a BOS platform capability keyed by
// [CapabilityUUID]. The capability data names the interface version and the
// interface number that accepts register requests:
//
//	for _, c := range regmap.FindCapabilities(bos, regmap.CapabilityUUID) {
//	    if c.Version.Compatible() { ... }
//	}
//
// # Timing
//
// PWM periods and duties are expressed in cycles of [ClockFrequency].
// [PeriodForFrequency] and [FrequencyForPeriod] convert to and from
// physic.Frequency.
package regmap
