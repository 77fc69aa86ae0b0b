package badger

import (
	"encoding/binary"

	"github.com/poiesic/grapho/core"
)

// Key layout. Node records and the incoming-tag inverted index live in the
// same keyspace under distinct prefixes.
const (
	nodeRecordPrefix = "nodrec"
	nodeTagPrefix    = "nodtag"
)

// makeNodeKey generates the record key for a node ID.
func makeNodeKey(id string) []byte {
	return []byte(nodeRecordPrefix + ":" + id)
}

// makeTagKey generates a composite key for the incoming-tag index.
// Format: prefix:tagHash:nodeID, with the hash in fixed-width BigEndian so
// a tag's entries are a contiguous prefix range.
func makeTagKey(tag core.Tag, id string) []byte {
	prefix := makeTagPrefix(tag)
	buf := make([]byte, 0, len(prefix)+1+len(id))
	buf = append(buf, prefix...)
	buf = append(buf, ':')
	buf = append(buf, id...)
	return buf
}

// makeTagPrefix generates the partial key covering all index entries for a
// tag.
func makeTagPrefix(tag core.Tag) []byte {
	prefix := nodeTagPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], core.TagHash(tag))
	return buf
}

// nodeIDFromTagKey extracts the node ID suffix from a tag index key.
func nodeIDFromTagKey(key []byte) string {
	// prefix + ':' + 8-byte hash + ':'
	start := len(nodeTagPrefix) + 1 + 8 + 1
	if len(key) <= start {
		return ""
	}
	return string(key[start:])
}
