package core

import (
	"encoding/binary"
	"slices"

	"github.com/go-crypt/x/blake2b"
)

// Direction describes which way a link points relative to its node.
type Direction string

const (
	// DirectionIn declares an incoming link: the node can be reached from
	// nodes whose outgoing tag set contains the link's tag.
	DirectionIn Direction = "in"
	// DirectionOut declares an outgoing link: the node links to nodes whose
	// incoming tag set contains the link's tag.
	DirectionOut Direction = "out"
	// DirectionBidir declares the link in both directions.
	DirectionBidir Direction = "bidir"
)

// Link is a typed, directional link tag declared by a node.
// There is no explicit edge entity: an edge exists implicitly whenever one
// node's outgoing tag set intersects another node's incoming tag set.
type Link struct {
	Kind      string    `json:"kind"`
	Direction Direction `json:"direction"`
	Tag       string    `json:"tag"`
}

// Tag is a (kind, value) adjacency key derived from links.
type Tag struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Node is a content node in the graph store.
type Node struct {
	// ID uniquely identifies the node. Generated by the store if empty.
	ID string
	// Text is the content carried by the node.
	Text string
	// Metadata is an open-schema mapping of scalar values.
	Metadata map[string]any
	// Links declares the node's typed link tags.
	Links []Link
}

// PartitionLinks splits a node's links into its outgoing and incoming tag
// sets. A link with direction "out" contributes its tag to the outgoing set,
// "in" to the incoming set, and "bidir" to both. The returned slices are
// deduplicated and sorted.
func PartitionLinks(links []Link) (outgoing, incoming []Tag) {
	outSet := make(map[Tag]struct{})
	inSet := make(map[Tag]struct{})
	for _, link := range links {
		tag := Tag{Kind: link.Kind, Value: link.Tag}
		switch link.Direction {
		case DirectionOut:
			outSet[tag] = struct{}{}
		case DirectionIn:
			inSet[tag] = struct{}{}
		case DirectionBidir:
			outSet[tag] = struct{}{}
			inSet[tag] = struct{}{}
		}
	}
	return sortedTags(outSet), sortedTags(inSet)
}

func sortedTags(set map[Tag]struct{}) []Tag {
	if len(set) == 0 {
		return nil
	}
	tags := make([]Tag, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	slices.SortFunc(tags, CompareTags)
	return tags
}

// CompareTags orders tags by kind, then value.
func CompareTags(a, b Tag) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	if a.Value != b.Value {
		if a.Value < b.Value {
			return -1
		}
		return 1
	}
	return 0
}

// TagHash computes a 64-bit BLAKE2b hash of a tag for use in fixed-width
// index keys. Kind and value are separated by a NUL byte so that
// ("ab","c") and ("a","bc") hash differently.
func TagHash(tag Tag) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(tag.Kind))
	h.Write([]byte{0})
	h.Write([]byte(tag.Value))
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}
