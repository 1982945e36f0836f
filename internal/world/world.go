// Package world implements the shared voxel world: a fixed-dimension
// cuboid of blocks with slab-stacking mutation semantics, gzip
// snapshotting for client bootstrap, and disk persistence.
package world

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FormatVersion is the on-disk metadata format version.
const FormatVersion = 1

// loadChunkSize is the read chunk size used when streaming a .crs file
// off disk, as suggested by §4.2.
const loadChunkSize = 16 * 1024

// Meta holds the world's immutable identity plus the two mutable
// timestamps, persisted as a JSON sidecar next to the raw .crs blocks.
type Meta struct {
	FormatVersion int       `json:"format_version"`
	UUID          string    `json:"uuid"`
	Name          string    `json:"name"`
	Sx            int       `json:"x_width"`
	Sy            int       `json:"y_height"`
	Sz            int       `json:"z_depth"`
	CreatedBy     string    `json:"created_by"`
	MapGenerator  string    `json:"map_generator"`
	TimeCreated   time.Time `json:"time_created"`
	LastAccessed  time.Time `json:"last_accessed"`
	LastModified  time.Time `json:"last_modified"`
}

// World is a fixed-dimension cuboid of blocks shared by every session.
type World struct {
	mu sync.RWMutex

	meta   Meta
	blocks []byte
}

// index computes the flat offset for (x,y,z) per §3: x + Sx·z + Sx·Sz·y.
// Coordinates are not bound-checked, by design (§4.2): an out-of-range
// coordinate either lands on some other cell or, when the offset falls
// outside the block array, panics with an index out of range.
func (w *World) index(x, y, z int) int {
	return x + w.meta.Sx*z + w.meta.Sx*w.meta.Sz*y
}

// New constructs a fresh world with the §3 terrain invariant: a
// bedrock floor, a dirt fill to half height minus one, one grass row,
// and air above.
func New(name string, sx, sy, sz int, createdBy, mapGenerator string) *World {
	now := time.Now()
	w := &World{
		meta: Meta{
			FormatVersion: FormatVersion,
			UUID:          uuid.New().String(),
			Name:          name,
			Sx:            sx,
			Sy:            sy,
			Sz:            sz,
			CreatedBy:     createdBy,
			MapGenerator:  mapGenerator,
			TimeCreated:   now,
			LastAccessed:  now,
			LastModified:  now,
		},
		blocks: make([]byte, sx*sy*sz),
	}
	w.layTerrain()
	return w
}

func (w *World) layTerrain() {
	sx, sy, sz := w.meta.Sx, w.meta.Sy, w.meta.Sz
	layer := sx * sz

	for i := 0; i < layer; i++ {
		w.blocks[i] = Bedrock.Byte()
	}

	grassRow := layer * (sy/2 - 1)
	for i := layer; i < grassRow; i++ {
		w.blocks[i] = Dirt.Byte()
	}
	for i := grassRow; i < grassRow+layer && i < len(w.blocks); i++ {
		w.blocks[i] = GrassBlock.Byte()
	}
	// Remainder stays Air (the zero value).
}

// GetSize returns the world's fixed dimensions.
func (w *World) GetSize() (sx, sy, sz int) {
	return w.meta.Sx, w.meta.Sy, w.meta.Sz
}

// Name returns the world's immutable name.
func (w *World) Name() string { return w.meta.Name }

// GetBlocks returns a borrowed read-only snapshot of the block array.
// The caller must not hold the returned slice across any call that
// mutates the world (SetBlock, Load), nor write through it.
func (w *World) GetBlocks() []byte {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.blocks
}

// GetBlock reads the block at (x,y,z). Coordinates are not
// bound-checked; see index.
func (w *World) GetBlock(x, y, z int) Block {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return BlockFromByte(w.blocks[w.index(x, y, z)])
}

// SetBlock applies the slab-stacking adjacency rule and the bedrock
// floor protection described in §4.2, returning the effective write
// so the caller (the session) can echo a rejection or the real
// outcome back to the requesting player.
func (w *World) SetBlock(x, y, z int, incoming Block) (effX, effY, effZ int, eff Block) {
	w.mu.Lock()
	defer w.mu.Unlock()
	defer func() { w.meta.LastModified = time.Now() }()

	if y == 0 {
		return x, 0, z, Bedrock
	}

	if incoming == Slab && y > 0 {
		below := BlockFromByte(w.blocks[w.index(x, y-1, z)])
		if below == Slab {
			w.blocks[w.index(x, y-1, z)] = DoubleSlab.Byte()
			return x, y - 1, z, DoubleSlab
		}
	}

	w.blocks[w.index(x, y, z)] = incoming.Byte()
	return x, y, z, incoming
}

// GzipSnapshot returns a gzip-compressed (4-byte big-endian block
// count) ‖ blocks payload, the format streamed to clients during
// world bootstrap and the format §8 property 7 decompresses.
func (w *World) GzipSnapshot() ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out bytes.Buffer
	gz := gzip.NewWriter(&out)

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(w.blocks)))
	if _, err := gz.Write(header[:]); err != nil {
		return nil, fmt.Errorf("world: gzip header: %w", err)
	}
	if _, err := gz.Write(w.blocks); err != nil {
		return nil, fmt.Errorf("world: gzip blocks: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("world: gzip close: %w", err)
	}
	return out.Bytes(), nil
}

// crsPath and metaPath return the on-disk paths for a named world
// rooted at dir (conventionally "./world").
func crsPath(dir, name string) string { return filepath.Join(dir, name+".crs") }
func metaPath(dir, name string) string {
	return filepath.Join(dir, name+".meta.json")
}
func cwPath(dir, name string) string { return filepath.Join(dir, name+".cw") }

// SaveToDisk writes the raw block bytes to dir/{name}.crs and the
// metadata sidecar to dir/{name}.meta.json, creating dir as needed.
// Atomic rename is not required by §4.2.
func (w *World) SaveToDisk(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("world: create %s: %w", dir, err)
	}

	if err := os.WriteFile(crsPath(dir, w.meta.Name), w.blocks, 0o644); err != nil {
		return fmt.Errorf("world: write blocks: %w", err)
	}

	data, err := json.MarshalIndent(w.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("world: marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath(dir, w.meta.Name), data, 0o644); err != nil {
		return fmt.Errorf("world: write metadata: %w", err)
	}
	return nil
}

// ProgressFunc receives the percent (0-100) of bytes read so far while
// loading a .crs file from disk.
type ProgressFunc func(percent int)

// Load searches dir for {name}.crs. If present, it loads and wraps it
// (reading the .meta.json sidecar when present, else deriving
// defaults from sx/sy/sz), chunking the read in loadChunkSize pieces
// and reporting progress via onProgress. If absent, it constructs a
// fresh world with the §3 terrain invariant and saves it immediately.
//
// A sibling {name}.cw (NBT) file, if present, is not parsed: its
// presence is logged via onCW and otherwise ignored, per §4.2.
func Load(dir, name string, sx, sy, sz int, createdBy, mapGenerator string, onProgress ProgressFunc, onCW func(path string)) (*World, error) {
	if _, err := os.Stat(cwPath(dir, name)); err == nil && onCW != nil {
		onCW(cwPath(dir, name))
	}

	path := crsPath(dir, name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			w := New(name, sx, sy, sz, createdBy, mapGenerator)
			if err := w.SaveToDisk(dir); err != nil {
				return nil, err
			}
			return w, nil
		}
		return nil, fmt.Errorf("world: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("world: stat %s: %w", path, err)
	}
	total := int(info.Size())

	blocks := make([]byte, 0, total)
	buf := make([]byte, loadChunkSize)
	read := 0
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			blocks = append(blocks, buf[:n]...)
			read += n
			if onProgress != nil && total > 0 {
				onProgress((read * 100) / total)
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return nil, fmt.Errorf("world: read %s: %w", path, rerr)
		}
	}

	meta := Meta{
		FormatVersion: FormatVersion,
		UUID:          uuid.New().String(),
		Name:          name,
		Sx:            sx,
		Sy:            sy,
		Sz:            sz,
		CreatedBy:     createdBy,
		MapGenerator:  mapGenerator,
		TimeCreated:   time.Now(),
	}
	if mdata, err := os.ReadFile(metaPath(dir, name)); err == nil {
		_ = json.Unmarshal(mdata, &meta)
	}
	meta.LastAccessed = time.Now()

	w := &World{meta: meta, blocks: blocks}
	return w, nil
}
