package wire

import (
	"crypto/md5"
	"encoding/hex"
)

// md5Hex is lower_hex(md5(data)) — the protocol spells out a specific,
// non-negotiable digest, so crypto/md5 (not a design choice with
// ecosystem alternatives) is used directly.
func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// MD5PasswordDigest computes the "md5"-prefixed digest PostgreSQL expects
// in response to an AuthenticationMD5Password challenge:
// "md5" + lower_hex(md5(lower_hex(md5(password||user)) || salt)).
func MD5PasswordDigest(user, password string, salt [4]byte) string {
	inner := md5Hex([]byte(password + user))
	outer := md5Hex(append([]byte(inner), salt[:]...))
	return "md5" + outer
}
