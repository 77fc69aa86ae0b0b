// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"slices"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"

	"github.com/poiesic/grapho/core"
)

// NodeRecordMUS serializes NodeRecord in the MUS format. The serializer is
// written by hand: the record's JSON blobs and the indexed-metadata map have
// no fixed schema for a generator to describe. The indexed map is encoded
// with sorted keys so equal records encode identically.
var NodeRecordMUS = nodeRecordSer{}

// TagMUS serializes a single (kind, value) tag.
var TagMUS = tagSer{}

type tagSer struct{}

func (tagSer) Marshal(t core.Tag, bs []byte) (n int) {
	n = ord.String.Marshal(t.Kind, bs)
	n += ord.String.Marshal(t.Value, bs[n:])
	return
}

func (tagSer) Unmarshal(bs []byte) (t core.Tag, n int, err error) {
	t.Kind, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	t.Value, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	return
}

func (tagSer) Size(t core.Tag) int {
	return ord.String.Size(t.Kind) + ord.String.Size(t.Value)
}

type nodeRecordSer struct{}

func (nodeRecordSer) Marshal(r NodeRecord, bs []byte) (n int) {
	n = ord.String.Marshal(r.ID, bs)
	n += ord.String.Marshal(r.Text, bs[n:])

	n += varint.Int.Marshal(len(r.Embedding), bs[n:])
	for _, f := range r.Embedding {
		n += raw.Float32.Marshal(f, bs[n:])
	}

	n += marshalTags(r.OutTags, bs[n:])
	n += marshalTags(r.InTags, bs[n:])

	n += ord.String.Marshal(string(r.LinksBlob), bs[n:])
	n += ord.String.Marshal(string(r.MetadataBlob), bs[n:])

	n += varint.Int.Marshal(len(r.Indexed), bs[n:])
	for _, key := range sortedKeys(r.Indexed) {
		n += ord.String.Marshal(key, bs[n:])
		n += ord.String.Marshal(r.Indexed[key], bs[n:])
	}
	return
}

func (nodeRecordSer) Unmarshal(bs []byte) (r NodeRecord, n int, err error) {
	var n1 int

	r.ID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	r.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	var count int
	count, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if count > 0 {
		r.Embedding = make([]float32, count)
		for i := 0; i < count; i++ {
			r.Embedding[i], n1, err = raw.Float32.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return
			}
		}
	}

	r.OutTags, n1, err = unmarshalTags(bs[n:])
	n += n1
	if err != nil {
		return
	}
	r.InTags, n1, err = unmarshalTags(bs[n:])
	n += n1
	if err != nil {
		return
	}

	var blob string
	blob, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if blob != "" {
		r.LinksBlob = []byte(blob)
	}
	blob, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if blob != "" {
		r.MetadataBlob = []byte(blob)
	}

	count, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if count > 0 {
		r.Indexed = make(map[string]string, count)
		for i := 0; i < count; i++ {
			var key, value string
			key, n1, err = ord.String.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return
			}
			value, n1, err = ord.String.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return
			}
			r.Indexed[key] = value
		}
	}
	return
}

func (nodeRecordSer) Size(r NodeRecord) (size int) {
	size = ord.String.Size(r.ID)
	size += ord.String.Size(r.Text)

	size += varint.Int.Size(len(r.Embedding))
	for _, f := range r.Embedding {
		size += raw.Float32.Size(f)
	}

	size += sizeTags(r.OutTags)
	size += sizeTags(r.InTags)

	size += ord.String.Size(string(r.LinksBlob))
	size += ord.String.Size(string(r.MetadataBlob))

	size += varint.Int.Size(len(r.Indexed))
	for key, value := range r.Indexed {
		size += ord.String.Size(key)
		size += ord.String.Size(value)
	}
	return
}

func marshalTags(tags []core.Tag, bs []byte) (n int) {
	n = varint.Int.Marshal(len(tags), bs)
	for _, tag := range tags {
		n += TagMUS.Marshal(tag, bs[n:])
	}
	return
}

func unmarshalTags(bs []byte) (tags []core.Tag, n int, err error) {
	var count, n1 int
	count, n, err = varint.Int.Unmarshal(bs)
	if err != nil || count == 0 {
		return
	}
	tags = make([]core.Tag, count)
	for i := 0; i < count; i++ {
		tags[i], n1, err = TagMUS.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func sizeTags(tags []core.Tag) (size int) {
	size = varint.Int.Size(len(tags))
	for _, tag := range tags {
		size += TagMUS.Size(tag)
	}
	return
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// MarshalNodeRecord serializes a NodeRecord to bytes.
func MarshalNodeRecord(record *NodeRecord) []byte {
	buf := make([]byte, NodeRecordMUS.Size(*record))
	NodeRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalNodeRecord deserializes a NodeRecord from bytes.
func UnmarshalNodeRecord(data []byte) (*NodeRecord, error) {
	record, _, err := NodeRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
