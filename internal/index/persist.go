package index

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"docsearch/internal/domain"
)

const (
	VectorFile  = "index.vec"
	MappingFile = "mappings.json"

	vecMagic   = "DSVI"
	vecVersion = uint32(1)
)

// Meta describes a persisted build. Both artifacts carry BuildID and Count
// so a half-replaced pair is detected on load.
type Meta struct {
	BuildID   string    `json:"build_id"`
	Count     int       `json:"count"`
	Dimension int       `json:"dimension"`
	Embedder  string    `json:"embedder"`
	BuiltAt   time.Time `json:"built_at"`
}

type mappingFile struct {
	Meta
	Records map[int]domain.ChunkRecord `json:"records"`
}

// Stored is a loaded index pair, read-only and safe for concurrent search.
type Stored struct {
	Meta    Meta
	Flat    *Flat
	Records map[int]domain.ChunkRecord
}

// Exists reports whether both artifacts are present in dir.
func Exists(dir string) bool {
	for _, name := range []string{VectorFile, MappingFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// NewMeta stamps a fresh build of flat with a random build id.
func NewMeta(flat *Flat, embedder string) (Meta, error) {
	if flat == nil {
		return Meta{}, fmt.Errorf("index: %w: no vectors", domain.ErrIndexMismatch)
	}
	id, err := newBuildID()
	if err != nil {
		return Meta{}, err
	}
	return Meta{
		BuildID:   id,
		Count:     flat.Len(),
		Dimension: flat.Dimension(),
		Embedder:  embedder,
		BuiltAt:   time.Now().UTC(),
	}, nil
}

// Save writes the vector index and its mapping into dir under a new build id.
func Save(dir string, flat *Flat, records []domain.ChunkRecord, embedder string) (Meta, error) {
	meta, err := NewMeta(flat, embedder)
	if err != nil {
		return Meta{}, err
	}
	if err := SaveMeta(dir, flat, records, meta); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

// SaveMeta writes the pair stamped with meta. records[i] must describe
// vector i. Both files are staged before either is renamed into place.
func SaveMeta(dir string, flat *Flat, records []domain.ChunkRecord, meta Meta) error {
	if flat == nil || flat.Len() != len(records) || meta.Count != len(records) {
		return fmt.Errorf("index: save: %w: %d vectors, %d records", domain.ErrIndexMismatch, flatLen(flat), len(records))
	}
	byOrdinal := make(map[int]domain.ChunkRecord, len(records))
	for i, r := range records {
		if r.Ordinal != i {
			return fmt.Errorf("index: save: %w: record %d has ordinal %d", domain.ErrIndexMismatch, i, r.Ordinal)
		}
		byOrdinal[i] = r
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: save: %w", err)
	}

	vecTmp, err := writeTemp(dir, VectorFile, func(w io.Writer) error { return writeVectors(w, meta, flat) })
	if err != nil {
		return err
	}
	mapTmp, err := writeTemp(dir, MappingFile, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		return enc.Encode(mappingFile{Meta: meta, Records: byOrdinal})
	})
	if err != nil {
		os.Remove(vecTmp)
		return err
	}
	if err := os.Rename(vecTmp, filepath.Join(dir, VectorFile)); err != nil {
		os.Remove(vecTmp)
		os.Remove(mapTmp)
		return fmt.Errorf("index: save: %w", err)
	}
	if err := os.Rename(mapTmp, filepath.Join(dir, MappingFile)); err != nil {
		os.Remove(mapTmp)
		return fmt.Errorf("index: save: %w", err)
	}
	return nil
}

// Load reads the pair written by Save and verifies that it belongs together.
func Load(dir string) (*Stored, error) {
	if !Exists(dir) {
		return nil, fmt.Errorf("index: load %s: %w", dir, domain.ErrIndexNotFound)
	}
	mf, err := readMapping(filepath.Join(dir, MappingFile))
	if err != nil {
		return nil, err
	}
	vecMeta, flat, err := readVectors(filepath.Join(dir, VectorFile))
	if err != nil {
		return nil, err
	}
	if vecMeta.BuildID != mf.BuildID || vecMeta.Count != mf.Count || len(mf.Records) != mf.Count {
		return nil, fmt.Errorf("index: load %s: %w: vectors build %s (%d), mapping build %s (%d records)",
			dir, domain.ErrIndexMismatch, vecMeta.BuildID, vecMeta.Count, mf.BuildID, len(mf.Records))
	}
	for i := 0; i < mf.Count; i++ {
		if _, ok := mf.Records[i]; !ok {
			return nil, fmt.Errorf("index: load %s: %w: ordinal %d missing", dir, domain.ErrIndexMismatch, i)
		}
	}
	mf.Meta.Dimension = flat.Dimension()
	return &Stored{Meta: mf.Meta, Flat: flat, Records: mf.Records}, nil
}

func readMapping(path string) (*mappingFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index: open mapping: %w", err)
	}
	defer f.Close()
	var mf mappingFile
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&mf); err != nil {
		return nil, fmt.Errorf("index: decode mapping: %w", err)
	}
	return &mf, nil
}

// Vector file layout, little-endian:
// magic[4] version:u32 build_id[16] count:u64 dim:u32 then count*dim float32.
func writeVectors(w io.Writer, meta Meta, flat *Flat) error {
	id, err := hex.DecodeString(meta.BuildID)
	if err != nil || len(id) != 16 {
		return fmt.Errorf("index: bad build id %q", meta.BuildID)
	}
	bw := bufio.NewWriter(w)
	bw.WriteString(vecMagic)
	hdr := make([]byte, 4+16+8+4)
	binary.LittleEndian.PutUint32(hdr[0:], vecVersion)
	copy(hdr[4:], id)
	binary.LittleEndian.PutUint64(hdr[20:], uint64(flat.Len()))
	binary.LittleEndian.PutUint32(hdr[28:], uint32(flat.Dimension()))
	bw.Write(hdr)
	buf := make([]byte, 4*flat.Dimension())
	for _, v := range flat.vectors {
		for i, x := range v {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
		}
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readVectors(path string) (Meta, *Flat, error) {
	f, err := os.Open(path)
	if err != nil {
		return Meta{}, nil, fmt.Errorf("index: open vectors: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	head := make([]byte, 4+4+16+8+4)
	if _, err := io.ReadFull(r, head); err != nil {
		return Meta{}, nil, fmt.Errorf("index: read vector header: %w", err)
	}
	if string(head[:4]) != vecMagic {
		return Meta{}, nil, errors.New("index: not a vector index file")
	}
	if v := binary.LittleEndian.Uint32(head[4:]); v != vecVersion {
		return Meta{}, nil, fmt.Errorf("index: unsupported vector file version %d", v)
	}
	meta := Meta{
		BuildID: hex.EncodeToString(head[8:24]),
		Count:   int(binary.LittleEndian.Uint64(head[24:])),
	}
	dim := int(binary.LittleEndian.Uint32(head[32:]))
	if meta.Count <= 0 || dim <= 0 {
		return Meta{}, nil, fmt.Errorf("index: empty vector file (%d x %d)", meta.Count, dim)
	}

	vectors := make([][]float32, meta.Count)
	buf := make([]byte, 4*dim)
	for n := range vectors {
		if _, err := io.ReadFull(r, buf); err != nil {
			return Meta{}, nil, fmt.Errorf("index: read vector %d: %w", n, err)
		}
		v := make([]float32, dim)
		for i := range v {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		}
		vectors[n] = v
	}
	meta.Dimension = dim
	flat, err := Build(vectors)
	if err != nil {
		return Meta{}, nil, err
	}
	return meta, flat, nil
}

func writeTemp(dir, name string, write func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("index: create %s: %w", name, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("index: write %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("index: sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("index: close %s: %w", name, err)
	}
	return f.Name(), nil
}

func newBuildID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("index: build id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func flatLen(f *Flat) int {
	if f == nil {
		return 0
	}
	return f.Len()
}
