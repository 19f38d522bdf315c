package core

import (
	"errors"
	"testing"
)

func TestValidateKnowledgeBase(t *testing.T) {
	tests := []struct {
		name    string
		kb      *KnowledgeBase
		wantErr error
	}{
		{
			name:    "valid knowledge base",
			kb:      &KnowledgeBase{Id: 1, Name: "notes"},
			wantErr: nil,
		},
		{
			name:    "valid with description",
			kb:      &KnowledgeBase{Id: 1, Name: "notes", Description: "personal notes"},
			wantErr: nil,
		},
		{
			name:    "valid with ID 0",
			kb:      &KnowledgeBase{Id: 0, Name: "notes"},
			wantErr: nil,
		},
		{
			name:    "nil knowledge base",
			kb:      nil,
			wantErr: ErrInvalidKnowledgeBase,
		},
		{
			name:    "empty name",
			kb:      &KnowledgeBase{Id: 1, Name: ""},
			wantErr: ErrEmptyName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKnowledgeBase(tt.kb)
			checkValidationErr(t, "ValidateKnowledgeBase()", err, tt.wantErr)
		})
	}
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantErr error
	}{
		{
			name: "valid document",
			doc: &Document{
				Id:              1,
				KnowledgeBaseId: 1,
				Title:           "intro",
				Contents:        "hello world",
				Status:          StatusUploaded,
			},
			wantErr: nil,
		},
		{
			name: "valid with empty contents",
			doc: &Document{
				KnowledgeBaseId: 1,
				Title:           "intro",
				Status:          StatusUploaded,
			},
			wantErr: nil,
		},
		{
			name:    "nil document",
			doc:     nil,
			wantErr: ErrInvalidDocument,
		},
		{
			name: "missing knowledge base id",
			doc: &Document{
				Title:  "intro",
				Status: StatusUploaded,
			},
			wantErr: ErrInvalidDocument,
		},
		{
			name: "empty title",
			doc: &Document{
				KnowledgeBaseId: 1,
				Status:          StatusUploaded,
			},
			wantErr: ErrEmptyTitle,
		},
		{
			name: "invalid utf-8 contents",
			doc: &Document{
				KnowledgeBaseId: 1,
				Title:           "intro",
				Contents:        string([]byte{0xff, 0xfe, 0xfd}),
				Status:          StatusUploaded,
			},
			wantErr: ErrUnsupportedFormat,
		},
		{
			name: "invalid status",
			doc: &Document{
				KnowledgeBaseId: 1,
				Title:           "intro",
				Status:          DocumentStatus(99),
			},
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			checkValidationErr(t, "ValidateDocument()", err, tt.wantErr)
		})
	}
}

func TestValidateChunk(t *testing.T) {
	tests := []struct {
		name    string
		chunk   *Chunk
		wantErr error
	}{
		{
			name:    "valid chunk",
			chunk:   &Chunk{Id: 1, DocumentId: 1, Ordinal: 0, Contents: "some text"},
			wantErr: nil,
		},
		{
			name:    "valid chunk without vector",
			chunk:   &Chunk{DocumentId: 1, Ordinal: 3, Contents: "some text", VectorRef: 0},
			wantErr: nil,
		},
		{
			name:    "nil chunk",
			chunk:   nil,
			wantErr: ErrInvalidChunk,
		},
		{
			name:    "missing document id",
			chunk:   &Chunk{Ordinal: 0, Contents: "some text"},
			wantErr: ErrInvalidChunk,
		},
		{
			name:    "negative ordinal",
			chunk:   &Chunk{DocumentId: 1, Ordinal: -1, Contents: "some text"},
			wantErr: ErrInvalidChunk,
		},
		{
			name:    "empty contents",
			chunk:   &Chunk{DocumentId: 1, Ordinal: 0},
			wantErr: ErrEmptyContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunk(tt.chunk)
			checkValidationErr(t, "ValidateChunk()", err, tt.wantErr)
		})
	}
}

func TestValidateChunkConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChunkConfig
		wantErr error
	}{
		{
			name:    "valid config",
			cfg:     ChunkConfig{Size: 500, Overlap: 50},
			wantErr: nil,
		},
		{
			name:    "valid with zero overlap",
			cfg:     ChunkConfig{Size: 500, Overlap: 0},
			wantErr: nil,
		},
		{
			name:    "defaults are valid",
			cfg:     DefaultChunkConfig(),
			wantErr: nil,
		},
		{
			name:    "zero size",
			cfg:     ChunkConfig{Size: 0, Overlap: 0},
			wantErr: ErrInvalidChunkConfig,
		},
		{
			name:    "negative size",
			cfg:     ChunkConfig{Size: -10, Overlap: 0},
			wantErr: ErrInvalidChunkConfig,
		},
		{
			name:    "negative overlap",
			cfg:     ChunkConfig{Size: 500, Overlap: -1},
			wantErr: ErrInvalidChunkConfig,
		},
		{
			name:    "overlap equal to size",
			cfg:     ChunkConfig{Size: 500, Overlap: 500},
			wantErr: ErrInvalidChunkConfig,
		},
		{
			name:    "overlap larger than size",
			cfg:     ChunkConfig{Size: 500, Overlap: 600},
			wantErr: ErrInvalidChunkConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunkConfig(tt.cfg)
			checkValidationErr(t, "ValidateChunkConfig()", err, tt.wantErr)
		})
	}
}

func checkValidationErr(t *testing.T, fn string, err, wantErr error) {
	t.Helper()

	if wantErr == nil {
		if err != nil {
			t.Errorf("%s error = %v, want nil", fn, err)
		}
		return
	}

	if err == nil {
		t.Errorf("%s error = nil, want %v", fn, wantErr)
		return
	}

	if !errors.Is(err, wantErr) {
		t.Errorf("%s error = %v, want %v", fn, err, wantErr)
	}
}
