package storage

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/grapho/core"
)

// NodeRecord is the stored representation of a node. The outgoing and
// incoming tag sets are materialized at insert time from the node's links;
// the full links and metadata survive as JSON blobs so the open metadata
// schema round-trips without a fixed layout.
type NodeRecord struct {
	ID        string
	Text      string
	Embedding []float32
	OutTags   []core.Tag
	InTags    []core.Tag
	// LinksBlob is the node's links serialized as JSON.
	LinksBlob []byte
	// MetadataBlob is the node's full metadata serialized as JSON.
	MetadataBlob []byte
	// Indexed is the coerced projection of the indexed metadata fields.
	Indexed map[string]string
}

// NewNodeRecord builds the stored record for a node: links are partitioned
// into tag sets, and links and metadata are serialized. The ID must already
// be assigned and the embedding computed.
func NewNodeRecord(node *core.Node, id string, embedding []float32, indexed map[string]string) (*NodeRecord, error) {
	linksBlob, err := json.Marshal(node.Links)
	if err != nil {
		return nil, fmt.Errorf("serializing links for node %q: %w", id, err)
	}
	metadata := node.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataBlob, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("serializing metadata for node %q: %w", id, err)
	}
	out, in := core.PartitionLinks(node.Links)
	return &NodeRecord{
		ID:           id,
		Text:         node.Text,
		Embedding:    embedding,
		OutTags:      out,
		InTags:       in,
		LinksBlob:    linksBlob,
		MetadataBlob: metadataBlob,
		Indexed:      indexed,
	}, nil
}

// ToNode converts the stored record back to its public node form.
func (r *NodeRecord) ToNode() (*core.Node, error) {
	var links []core.Link
	if len(r.LinksBlob) > 0 {
		if err := json.Unmarshal(r.LinksBlob, &links); err != nil {
			return nil, fmt.Errorf("%w: links of node %q: %w", ErrCorruptRecord, r.ID, err)
		}
	}
	var metadata map[string]any
	if len(r.MetadataBlob) > 0 {
		if err := json.Unmarshal(r.MetadataBlob, &metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata of node %q: %w", ErrCorruptRecord, r.ID, err)
		}
	}
	return &core.Node{
		ID:       r.ID,
		Text:     r.Text,
		Metadata: metadata,
		Links:    links,
	}, nil
}

// HasInTag reports whether the record's incoming tag set contains tag.
func (r *NodeRecord) HasInTag(tag core.Tag) bool {
	for _, t := range r.InTags {
		if t == tag {
			return true
		}
	}
	return false
}
