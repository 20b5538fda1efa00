package uploader

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"log"
)

// checksumOf hashes data with the named algorithm. This is client-side
// bookkeeping only; the resumable wire protocol itself carries no content
// hash.
func checksumOf(data []byte, algorithm string, logger *log.Logger) (string, error) {
	switch algorithm {
	case Sha256Sum, "":
		hash := sha256.Sum256(data)
		return hex.EncodeToString(hash[:]), nil
	case Md5Sum:
		hash := md5.Sum(data)
		return hex.EncodeToString(hash[:]), nil
	default:
		if logger != nil {
			logger.Printf("Unsupported algorithm: %s", algorithm)
		}
		return "", ErrUnsupportedAlgorithm
	}
}
