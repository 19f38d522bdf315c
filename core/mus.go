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


package core

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the persisted record types, written by hand against
// the mus-go primitives. The records carry float32 slices, string maps, and
// enum fields whose layouts are easier to audit here than behind a code
// generator.
//
// Layout notes:
//   - time.Time is stored as Unix microseconds (repositories truncate
//     timestamps to that precision so round trips are exact)
//   - float32 values are stored as their IEEE-754 bit pattern
//   - slices and maps carry a varint element-count prefix
//   - map keys are written in sorted order so encoding is deterministic
var (
	IDMUS            = idMUS{}
	KnowledgeBaseMUS = knowledgeBaseMUS{}
	DocumentMUS      = documentMUS{}
	ChunkMUS         = chunkMUS{}
)

// errInvalidLength guards decoding against corrupt count prefixes.
var errInvalidLength = errors.New("invalid length prefix")

type idMUS struct{}

func (idMUS) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

func (idMUS) Marshal(id ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

type timeMUS struct{}

func (timeMUS) Size(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

func (timeMUS) Marshal(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func (timeMUS) Unmarshal(bs []byte) (time.Time, int, error) {
	micros, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(micros).UTC(), n, nil
}

type vectorMUS struct{}

func (vectorMUS) Size(v []float32) int {
	size := varint.Int.Size(len(v))
	for _, f := range v {
		size += varint.Uint32.Size(math.Float32bits(f))
	}
	return size
}

func (vectorMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += varint.Uint32.Marshal(math.Float32bits(f), bs[n:])
	}
	return n
}

func (vectorMUS) Unmarshal(bs []byte) ([]float32, int, error) {
	count, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if count < 0 || count > len(bs)-n {
		return nil, n, errInvalidLength
	}
	if count == 0 {
		return nil, n, nil
	}
	v := make([]float32, count)
	for i := range v {
		bits, n1, err := varint.Uint32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v[i] = math.Float32frombits(bits)
	}
	return v, n, nil
}

type metadataMUS struct{}

func (metadataMUS) Size(m map[string]string) int {
	size := varint.Int.Size(len(m))
	for k, v := range m {
		size += ord.String.Size(k) + ord.String.Size(v)
	}
	return size
}

func (metadataMUS) Marshal(m map[string]string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(m), bs)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(m[k], bs[n:])
	}
	return n
}

func (metadataMUS) Unmarshal(bs []byte) (map[string]string, int, error) {
	count, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if count < 0 || count > len(bs)-n {
		return nil, n, errInvalidLength
	}
	if count == 0 {
		return nil, n, nil
	}
	m := make(map[string]string, count)
	for i := 0; i < count; i++ {
		k, n1, err := ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v, n2, err := ord.String.Unmarshal(bs[n:])
		n += n2
		if err != nil {
			return nil, n, err
		}
		m[k] = v
	}
	return m, n, nil
}

type knowledgeBaseMUS struct{}

func (knowledgeBaseMUS) Size(kb KnowledgeBase) int {
	return IDMUS.Size(kb.Id) +
		ord.String.Size(kb.Name) +
		ord.String.Size(kb.Description) +
		timeMUS{}.Size(kb.InsertedAt) +
		timeMUS{}.Size(kb.UpdatedAt)
}

func (knowledgeBaseMUS) Marshal(kb KnowledgeBase, bs []byte) (n int) {
	n = IDMUS.Marshal(kb.Id, bs)
	n += ord.String.Marshal(kb.Name, bs[n:])
	n += ord.String.Marshal(kb.Description, bs[n:])
	n += timeMUS{}.Marshal(kb.InsertedAt, bs[n:])
	n += timeMUS{}.Marshal(kb.UpdatedAt, bs[n:])
	return n
}

func (knowledgeBaseMUS) Unmarshal(bs []byte) (kb KnowledgeBase, n int, err error) {
	var n1 int
	if kb.Id, n1, err = IDMUS.Unmarshal(bs); err != nil {
		return kb, n1, err
	}
	n += n1
	if kb.Name, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return kb, n + n1, err
	}
	n += n1
	if kb.Description, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return kb, n + n1, err
	}
	n += n1
	if kb.InsertedAt, n1, err = (timeMUS{}).Unmarshal(bs[n:]); err != nil {
		return kb, n + n1, err
	}
	n += n1
	if kb.UpdatedAt, n1, err = (timeMUS{}).Unmarshal(bs[n:]); err != nil {
		return kb, n + n1, err
	}
	n += n1
	return kb, n, nil
}

type documentMUS struct{}

func (documentMUS) Size(doc Document) int {
	return IDMUS.Size(doc.Id) +
		IDMUS.Size(doc.KnowledgeBaseId) +
		ord.String.Size(doc.Title) +
		ord.String.Size(doc.Contents) +
		ord.String.Size(doc.ContentPath) +
		ord.String.Size(doc.MediaType) +
		varint.Int64.Size(doc.SizeBytes) +
		varint.Int.Size(doc.PageCount) +
		varint.Int.Size(int(doc.Status)) +
		ord.String.Size(doc.FailReason) +
		varint.Int.Size(doc.ChunkCount) +
		varint.Int.Size(doc.VectorizedCount) +
		timeMUS{}.Size(doc.InsertedAt) +
		timeMUS{}.Size(doc.UpdatedAt)
}

func (documentMUS) Marshal(doc Document, bs []byte) (n int) {
	n = IDMUS.Marshal(doc.Id, bs)
	n += IDMUS.Marshal(doc.KnowledgeBaseId, bs[n:])
	n += ord.String.Marshal(doc.Title, bs[n:])
	n += ord.String.Marshal(doc.Contents, bs[n:])
	n += ord.String.Marshal(doc.ContentPath, bs[n:])
	n += ord.String.Marshal(doc.MediaType, bs[n:])
	n += varint.Int64.Marshal(doc.SizeBytes, bs[n:])
	n += varint.Int.Marshal(doc.PageCount, bs[n:])
	n += varint.Int.Marshal(int(doc.Status), bs[n:])
	n += ord.String.Marshal(doc.FailReason, bs[n:])
	n += varint.Int.Marshal(doc.ChunkCount, bs[n:])
	n += varint.Int.Marshal(doc.VectorizedCount, bs[n:])
	n += timeMUS{}.Marshal(doc.InsertedAt, bs[n:])
	n += timeMUS{}.Marshal(doc.UpdatedAt, bs[n:])
	return n
}

func (documentMUS) Unmarshal(bs []byte) (doc Document, n int, err error) {
	var (
		n1     int
		status int
	)
	if doc.Id, n1, err = IDMUS.Unmarshal(bs); err != nil {
		return doc, n1, err
	}
	n += n1
	if doc.KnowledgeBaseId, n1, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return doc, n + n1, err
	}
	n += n1
	if doc.Title, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return doc, n + n1, err
	}
	n += n1
	if doc.Contents, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return doc, n + n1, err
	}
	n += n1
	if doc.ContentPath, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return doc, n + n1, err
	}
	n += n1
	if doc.MediaType, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return doc, n + n1, err
	}
	n += n1
	if doc.SizeBytes, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return doc, n + n1, err
	}
	n += n1
	if doc.PageCount, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return doc, n + n1, err
	}
	n += n1
	if status, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return doc, n + n1, err
	}
	doc.Status = DocumentStatus(status)
	n += n1
	if doc.FailReason, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return doc, n + n1, err
	}
	n += n1
	if doc.ChunkCount, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return doc, n + n1, err
	}
	n += n1
	if doc.VectorizedCount, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return doc, n + n1, err
	}
	n += n1
	if doc.InsertedAt, n1, err = (timeMUS{}).Unmarshal(bs[n:]); err != nil {
		return doc, n + n1, err
	}
	n += n1
	if doc.UpdatedAt, n1, err = (timeMUS{}).Unmarshal(bs[n:]); err != nil {
		return doc, n + n1, err
	}
	n += n1
	return doc, n, nil
}

type chunkMUS struct{}

func (chunkMUS) Size(chunk Chunk) int {
	return IDMUS.Size(chunk.Id) +
		IDMUS.Size(chunk.DocumentId) +
		varint.Int.Size(chunk.Ordinal) +
		ord.String.Size(chunk.Contents) +
		varint.Int.Size(chunk.PageNumber) +
		IDMUS.Size(chunk.VectorRef) +
		vectorMUS{}.Size(chunk.Vector) +
		metadataMUS{}.Size(chunk.Metadata) +
		timeMUS{}.Size(chunk.InsertedAt) +
		timeMUS{}.Size(chunk.UpdatedAt)
}

func (chunkMUS) Marshal(chunk Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(chunk.Id, bs)
	n += IDMUS.Marshal(chunk.DocumentId, bs[n:])
	n += varint.Int.Marshal(chunk.Ordinal, bs[n:])
	n += ord.String.Marshal(chunk.Contents, bs[n:])
	n += varint.Int.Marshal(chunk.PageNumber, bs[n:])
	n += IDMUS.Marshal(chunk.VectorRef, bs[n:])
	n += vectorMUS{}.Marshal(chunk.Vector, bs[n:])
	n += metadataMUS{}.Marshal(chunk.Metadata, bs[n:])
	n += timeMUS{}.Marshal(chunk.InsertedAt, bs[n:])
	n += timeMUS{}.Marshal(chunk.UpdatedAt, bs[n:])
	return n
}

func (chunkMUS) Unmarshal(bs []byte) (chunk Chunk, n int, err error) {
	var n1 int
	if chunk.Id, n1, err = IDMUS.Unmarshal(bs); err != nil {
		return chunk, n1, err
	}
	n += n1
	if chunk.DocumentId, n1, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return chunk, n + n1, err
	}
	n += n1
	if chunk.Ordinal, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return chunk, n + n1, err
	}
	n += n1
	if chunk.Contents, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return chunk, n + n1, err
	}
	n += n1
	if chunk.PageNumber, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return chunk, n + n1, err
	}
	n += n1
	if chunk.VectorRef, n1, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return chunk, n + n1, err
	}
	n += n1
	if chunk.Vector, n1, err = (vectorMUS{}).Unmarshal(bs[n:]); err != nil {
		return chunk, n + n1, err
	}
	n += n1
	if chunk.Metadata, n1, err = (metadataMUS{}).Unmarshal(bs[n:]); err != nil {
		return chunk, n + n1, err
	}
	n += n1
	if chunk.InsertedAt, n1, err = (timeMUS{}).Unmarshal(bs[n:]); err != nil {
		return chunk, n + n1, err
	}
	n += n1
	if chunk.UpdatedAt, n1, err = (timeMUS{}).Unmarshal(bs[n:]); err != nil {
		return chunk, n + n1, err
	}
	n += n1
	return chunk, n, nil
}
