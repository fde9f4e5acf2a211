package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

func SHA256Hex(b []byte) string {
	x := sha256.Sum256(b)
	return hex.EncodeToString(x[:])
}

// ChunkID is stable for the same document, position and text.
func ChunkID(documentID string, chunkIndex int, text string) string {
	return SHA256Hex([]byte(fmt.Sprintf("%s:%d:%s", documentID, chunkIndex, SHA256Hex([]byte(text)))))[:32]
}
