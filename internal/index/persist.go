package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/askdoc/askdoc-go/internal/rag"
)

// snapshotVersion is the persisted format version. Bump on incompatible
// layout changes; Load rejects unknown versions as corruption.
const snapshotVersion = 1

// payload is the checksummed body of a snapshot: both stores serialized as
// one logical unit so they can never be persisted out of sync.
type payload struct {
	// Dim is the embedding dimension, zero for an empty index.
	Dim int `json:"dim"`
	// Vectors is the embedding store.
	Vectors [][]float32 `json:"vectors"`
	// Metas is the metadata store, parallel to Vectors.
	Metas []meta `json:"metas"`
}

// envelope is the on-disk snapshot layout. The checksum covers the raw
// payload bytes, so a partial or bit-rotted write is detected before any
// state is replaced.
type envelope struct {
	// Version is the snapshot format version.
	Version int `json:"version"`
	// Checksum is the hex SHA-256 of Payload.
	Checksum string `json:"checksum"`
	// Payload is the serialized index state.
	Payload json.RawMessage `json:"payload"`
}

// Persist writes the full index plus metadata to the configured path as one
// atomic unit: the snapshot is written to a temp file in the same directory
// and renamed into place, so a crash mid-write leaves the previous snapshot
// intact. Persist is a writer-class operation and blocks searches.
func (x *Index) Persist() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.path == "" {
		return fmt.Errorf("%w: no persistence path configured", rag.ErrInvalidConfig)
	}
	if x.corrupt {
		return fmt.Errorf("%w: refusing to persist corrupt state", rag.ErrCorruptIndex)
	}

	body, err := json.Marshal(payload{Dim: x.dim, Vectors: x.vectors, Metas: x.metas})
	if err != nil {
		return fmt.Errorf("index: marshal snapshot: %w", err)
	}
	sum := sha256.Sum256(body)

	env, err := json.Marshal(envelope{
		Version:  snapshotVersion,
		Checksum: hex.EncodeToString(sum[:]),
		Payload:  body,
	})
	if err != nil {
		return fmt.Errorf("index: marshal envelope: %w", err)
	}

	dir := filepath.Dir(x.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("index: create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("index: create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(env); err != nil {
		tmp.Close()
		return fmt.Errorf("index: write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("index: sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("index: close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, x.path); err != nil {
		return fmt.Errorf("index: rename snapshot into place: %w", err)
	}
	return nil
}

// Load replaces the in-memory state from the configured path. A missing
// snapshot file leaves the index empty and is not an error, so cold starts
// and first runs share one code path. Any integrity failure (bad checksum,
// unknown version, entry-count divergence between the two stores) marks the
// index corrupt: it refuses to serve searches until explicitly cleared and
// rebuilt, and the on-disk snapshot is left untouched for inspection.
func (x *Index) Load() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.path == "" {
		return fmt.Errorf("%w: no persistence path configured", rag.ErrInvalidConfig)
	}

	raw, err := os.ReadFile(x.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("index: read snapshot: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		x.corrupt = true
		return fmt.Errorf("%w: snapshot is not valid JSON: %v", rag.ErrCorruptIndex, err)
	}
	if env.Version != snapshotVersion {
		x.corrupt = true
		return fmt.Errorf("%w: unknown snapshot version %d", rag.ErrCorruptIndex, env.Version)
	}

	sum := sha256.Sum256(env.Payload)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		x.corrupt = true
		return fmt.Errorf("%w: snapshot checksum mismatch", rag.ErrCorruptIndex)
	}

	var body payload
	if err := json.Unmarshal(env.Payload, &body); err != nil {
		x.corrupt = true
		return fmt.Errorf("%w: snapshot payload unreadable: %v", rag.ErrCorruptIndex, err)
	}
	if len(body.Vectors) != len(body.Metas) {
		x.corrupt = true
		return fmt.Errorf("%w: %d vectors but %d metadata records",
			rag.ErrCorruptIndex, len(body.Vectors), len(body.Metas))
	}
	for _, v := range body.Vectors {
		if len(v) != body.Dim {
			x.corrupt = true
			return fmt.Errorf("%w: vector of dimension %d in snapshot of dimension %d",
				rag.ErrCorruptIndex, len(v), body.Dim)
		}
	}

	x.dim = body.Dim
	x.vectors = body.Vectors
	x.metas = body.Metas
	x.corrupt = false
	return nil
}
