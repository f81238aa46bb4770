package utils

import (
	"crypto/md5"
	"encoding/hex"
)

// BytesMD5 fingerprints an image payload for log correlation
func BytesMD5(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}
