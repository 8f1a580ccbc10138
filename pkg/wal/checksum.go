package wal

import "hash/crc32"

// castagnoliTable is the CRC32C polynomial table, faster than IEEE on
// hardware with a CRC32C instruction (SSE4.2, ARMv8).
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CalculateCRC32 checksums data.
func CalculateCRC32(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// ValidateCRC32 reports whether data's checksum matches expected.
func ValidateCRC32(data []byte, expected uint32) bool {
	return CalculateCRC32(data) == expected
}
