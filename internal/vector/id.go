package vector

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
)

// NewChunkID returns "{docID}_{index}_{8 hex chars}". The random suffix makes
// repeated ingestion of the same document produce distinct ids.
func NewChunkID(docID string, index int) string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return docID + "_" + strconv.Itoa(index) + "_" + hex.EncodeToString(b[:])
}
