package checksum

import (
	"crypto/md5"
)

// MD5Sum returns the 16-byte MD5 digest of data, used for FEC packet
// trailers and whole-file integrity (file-footer / small-file-group
// records, §3).
func MD5Sum(data []byte) [16]byte {
	return md5.Sum(data)
}

// MD5Equal compares two digests by direct array equality; these are
// integrity checks, not secrets, so a non-constant-time compare is fine.
func MD5Equal(a, b [16]byte) bool {
	return a == b
}
