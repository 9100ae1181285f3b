// Package checksum implements the small checksum primitives the archive
// format is defined in terms of: Fletcher-32 over dictionary and volume
// descriptor payloads (SPEC_FULL.md §3, §6), and MD5 over FEC packets and
// whole file contents (§3, §4.4). Neither is a generic enough concern to
// reach for a third-party library: Fletcher-32 is a specific legacy
// checksum the wire format mandates byte-for-byte, and MD5 is already in
// the standard library's crypto/md5.
package checksum

// Fletcher32 computes the Fletcher-32 checksum of data, treating it as a
// sequence of little-endian 16-bit words. An odd trailing byte is treated as
// if padded with a zero high byte, matching the reference C implementation
// this format was distilled from.
func Fletcher32(data []byte) uint32 {
	var sum1, sum2 uint32 = 0xffff, 0xffff
	i := 0
	n := len(data)
	for i < n {
		// Process in chunks to defer the modulo reduction, same trick the
		// canonical Fletcher-32 implementations use for throughput.
		chunkLen := 360 * 2
		if n-i < chunkLen {
			chunkLen = n - i
		}
		end := i + chunkLen
		for i < end {
			var word uint32
			if i+1 < n {
				word = uint32(data[i]) | uint32(data[i+1])<<8
				i += 2
			} else {
				word = uint32(data[i])
				i++
			}
			sum1 += word
			sum2 += sum1
		}
		sum1 = (sum1 & 0xffff) + (sum1 >> 16)
		sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	}
	sum1 = (sum1 & 0xffff) + (sum1 >> 16)
	sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	return (sum2 << 16) | sum1
}
