// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package foclink

var crcTable = func() [256]uint32 {
	var table [256]uint32
	for i := range table {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}()

// CalculateCRC computes the frame checksum: CRC-32/MPEG-2 over data
// zero-padded to a multiple of 4 bytes, matching the controller's hardware
// CRC unit which consumes whole words.
func CalculateCRC(data []byte) uint32 {
	crc := uint32(crcInitial)
	pad := (4 - len(data)%4) % 4
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>24)^b]
	}
	for i := 0; i < pad; i++ {
		crc = (crc << 8) ^ crcTable[byte(crc>>24)]
	}
	return crc
}

// crc32MPEG2 is the unpadded algorithm, used to check against the catalogue
// check value.
func crc32MPEG2(data []byte) uint32 {
	crc := uint32(crcInitial)
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}
