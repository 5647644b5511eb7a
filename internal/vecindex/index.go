// Package vecindex is a nearest-neighbour store over augmented feature
// vectors (features ++ [bar, beat_in_bar, timestamp_sec]) with per-vector
// metadata.
//
// The API mirrors the index the catalog tooling historically produced:
// add vectors, build, save to an index file plus a JSON sidecar, load a
// read-only handle, query the K nearest. The search itself is an exact
// scan; catalogs are thousands of vectors, well inside the real-time
// budget, and exactness removes a source of matching noise.
package vecindex

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Supported distance metrics. Angular matches the conventional
// definition sqrt(2*(1-cos)) so distances from older index files stay
// comparable.
const (
	MetricAngular   = "angular"
	MetricEuclidean = "euclidean"
)

// Augment is the number of trailing position coordinates appended to a
// feature vector: bar, beat-in-bar, timestamp seconds. They take part in
// the distance purely as numeric coordinates.
const Augment = 3

// Meta is the metadata attached to one indexed vector.
type Meta struct {
	SongID        int64   `json:"song_id,omitempty"`
	SongTitle     string  `json:"song_title"`
	SongPart      string  `json:"song_part"`
	SegmentIndex  int     `json:"segment_index"`
	RecordingDate string  `json:"recording_date,omitempty"` // YYYY-MM-DD
	Bar           int     `json:"bar"`
	BeatInBar     int     `json:"beat_in_bar"`
	TimestampSec  float64 `json:"timestamp_sec"`
	SessionID     string  `json:"session_id,omitempty"`
}

// Neighbor is one query result.
type Neighbor struct {
	ID       int
	Distance float64
	Meta     Meta
}

// sidecar is the JSON layout of the .meta.json file next to the index.
type sidecar struct {
	FeatureDim int          `json:"feature_dim"`
	Metric     string       `json:"metric"`
	NumTrees   int          `json:"num_trees"`
	NextID     int          `json:"next_id"`
	Metadata   map[int]Meta `json:"metadata"`
}

const indexMagic = "LAIX0001"

// Index holds vectors of a fixed total dimension (feature dim + Augment).
// A loaded index is an immutable snapshot: reloading produces a new
// handle, it never mutates one already in use.
type Index struct {
	featureDim int
	metric     string
	numTrees   int
	nextID     int
	ids        []int
	vectors    [][]float64
	meta       map[int]Meta
	built      bool
}

// New creates an empty index for vectors of featureDim features.
func New(featureDim int, metric string) (*Index, error) {
	switch metric {
	case MetricAngular, MetricEuclidean:
	default:
		return nil, fmt.Errorf("vecindex: unknown metric %q", metric)
	}
	if featureDim <= 0 {
		return nil, fmt.Errorf("vecindex: invalid feature dim %d", featureDim)
	}
	return &Index{
		featureDim: featureDim,
		metric:     metric,
		numTrees:   50,
		meta:       map[int]Meta{},
	}, nil
}

// FeatureDim returns the feature dimension (without augmentation).
func (ix *Index) FeatureDim() int { return ix.featureDim }

// TotalDim returns the stored vector dimension (features + Augment).
func (ix *Index) TotalDim() int { return ix.featureDim + Augment }

// Metric returns the configured distance metric name.
func (ix *Index) Metric() string { return ix.metric }

// Len returns the number of stored vectors.
func (ix *Index) Len() int { return len(ix.ids) }

// Add stores an augmented vector with its metadata and returns the
// assigned id. The vector must already carry the Augment trailing
// coordinates.
func (ix *Index) Add(vector []float64, meta Meta) (int, error) {
	if len(vector) != ix.TotalDim() {
		return 0, fmt.Errorf("vecindex: vector dim %d, want %d", len(vector), ix.TotalDim())
	}
	id := ix.nextID
	ix.nextID++
	v := make([]float64, len(vector))
	copy(v, vector)
	ix.ids = append(ix.ids, id)
	ix.vectors = append(ix.vectors, v)
	ix.meta[id] = meta
	ix.built = false
	return id, nil
}

// Build finalises the index for querying. numTrees is recorded in the
// sidecar for compatibility; the exact scan does not use it.
func (ix *Index) Build(numTrees int) {
	if numTrees > 0 {
		ix.numTrees = numTrees
	}
	ix.built = true
}

// Query returns the k nearest stored vectors to the augmented query
// vector, closest first. An empty index yields no neighbours and no
// error. A dimension mismatch is a caller error.
func (ix *Index) Query(vector []float64, k int) ([]Neighbor, error) {
	if len(vector) != ix.TotalDim() {
		return nil, fmt.Errorf("vecindex: query dim %d, want %d", len(vector), ix.TotalDim())
	}
	if k <= 0 || len(ix.ids) == 0 {
		return nil, nil
	}

	out := make([]Neighbor, 0, len(ix.ids))
	for i, id := range ix.ids {
		out = append(out, Neighbor{
			ID:       id,
			Distance: ix.distance(vector, ix.vectors[i]),
			Meta:     ix.meta[id],
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Distance < out[b].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (ix *Index) distance(a, b []float64) float64 {
	// Identical operands are distance 0 by definition. The angular
	// form sqrt(2*(1-cos)) amplifies float rounding near cos=1, so
	// without this an exact hit reports a spurious ~1e-8.
	if floats.Equal(a, b) {
		return 0
	}
	switch ix.metric {
	case MetricEuclidean:
		return floats.Distance(a, b, 2)
	default: // angular
		na := floats.Norm(a, 2)
		nb := floats.Norm(b, 2)
		if na == 0 || nb == 0 {
			return 2 // maximal angular distance stand-in
		}
		cos := floats.Dot(a, b) / (na * nb)
		if cos > 1 {
			cos = 1
		}
		if cos < -1 {
			cos = -1
		}
		d := 2 * (1 - cos)
		if d < 0 {
			d = 0
		}
		return math.Sqrt(d)
	}
}

// Save writes the vector file at path and the sidecar at path+".meta.json".
func (ix *Index) Save(path string) error {
	var buf bytes.Buffer
	buf.WriteString(indexMagic)
	if err := binary.Write(&buf, binary.LittleEndian, int64(len(ix.ids))); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.LittleEndian, int64(ix.TotalDim())); err != nil {
		return err
	}
	for i, id := range ix.ids {
		if err := binary.Write(&buf, binary.LittleEndian, int64(id)); err != nil {
			return err
		}
		if err := binary.Write(&buf, binary.LittleEndian, ix.vectors[i]); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("vecindex: write index: %w", err)
	}

	side := sidecar{
		FeatureDim: ix.featureDim,
		Metric:     ix.metric,
		NumTrees:   ix.numTrees,
		NextID:     ix.nextID,
		Metadata:   ix.meta,
	}
	data, err := json.MarshalIndent(side, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(SidecarPath(path), data, 0o644); err != nil {
		return fmt.Errorf("vecindex: write sidecar: %w", err)
	}
	return nil
}

// SidecarPath returns the metadata sidecar path for an index file.
func SidecarPath(indexPath string) string {
	return indexPath + ".meta.json"
}

// Load reads an index file and its sidecar into a fresh handle.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vecindex: read index: %w", err)
	}
	if len(data) < len(indexMagic)+16 || string(data[:len(indexMagic)]) != indexMagic {
		return nil, fmt.Errorf("vecindex: %s is not an index file", path)
	}
	r := bytes.NewReader(data[len(indexMagic):])

	var count, totalDim int64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &totalDim); err != nil {
		return nil, err
	}
	if totalDim <= Augment || count < 0 {
		return nil, fmt.Errorf("vecindex: corrupt header (count=%d dim=%d)", count, totalDim)
	}

	sideData, err := os.ReadFile(SidecarPath(path))
	if err != nil {
		return nil, fmt.Errorf("vecindex: read sidecar: %w", err)
	}
	var side sidecar
	if err := json.Unmarshal(sideData, &side); err != nil {
		return nil, fmt.Errorf("vecindex: parse sidecar: %w", err)
	}
	if side.FeatureDim+Augment != int(totalDim) {
		return nil, fmt.Errorf("vecindex: sidecar dim %d disagrees with index dim %d",
			side.FeatureDim, totalDim-Augment)
	}

	ix, err := New(side.FeatureDim, side.Metric)
	if err != nil {
		return nil, err
	}
	ix.numTrees = side.NumTrees
	if side.Metadata != nil {
		ix.meta = side.Metadata
	}

	for range count {
		var id int64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("vecindex: truncated index file: %w", err)
		}
		vec := make([]float64, totalDim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("vecindex: truncated vector %d: %w", id, err)
		}
		ix.ids = append(ix.ids, int(id))
		ix.vectors = append(ix.vectors, vec)
	}

	ix.nextID = side.NextID
	for _, id := range ix.ids {
		if id >= ix.nextID {
			ix.nextID = id + 1
		}
	}
	ix.built = true
	return ix, nil
}
