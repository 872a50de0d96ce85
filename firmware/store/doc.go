// Package store persists the fan controller's user settings.
//
// The settings live in a single packed [Record] at offset 0 of the board's
// non-volatile memory:
//
//	[revision:1][led_mode:1][period:2][duty0:2][duty1:2][crc:1]
//
// Multi-byte fields are little-endian. The trailing byte is a CRC-8 over the
// first eight bytes, so the CRC over all nine bytes of a valid record is 0.
// A record with the wrong revision or a bad CRC is replaced in memory by
// [Default]; storage is only written on an explicit [Store.Commit].
package store
