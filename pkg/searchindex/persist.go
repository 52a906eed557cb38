package searchindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// The index on disk is two rebuildable cache files: a JSON-lines doc
// file for the lexical side and a binary sidecar of embedding vectors
// keyed by skill id. Either can be deleted at any time and rebuilt
// from the archive.

// vecMagic identifies the sidecar format.
var vecMagic = [4]byte{'s', 'w', 'b', '1'}

// persistedDoc is one line of the docs file. Vectors are excluded;
// they live in the sidecar.
type persistedDoc struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Layer       string   `json:"layer"`
	Platforms   []string `json:"platforms,omitempty"`
	Deprecated  bool     `json:"deprecated,omitempty"`
	BodyText    string   `json:"body_text"`
}

// Save writes the live index to docsPath (JSON lines, sorted by id)
// and the embedding vectors to vecPath. Output is deterministic for a
// fixed index state.
func (e *Engine) Save(docsPath, vecPath string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.docs))
	for id := range e.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	df, err := os.Create(docsPath)
	if err != nil {
		return fmt.Errorf("creating docs file %s: %w", docsPath, err)
	}
	defer df.Close()
	dw := bufio.NewWriter(df)
	for _, id := range ids {
		d := e.docs[id]
		line, err := json.Marshal(persistedDoc{
			ID: d.ID, Name: d.Name, Description: d.Description, Tags: d.Tags,
			Layer: d.Layer, Platforms: d.Platforms, Deprecated: d.Deprecated, BodyText: d.BodyText,
		})
		if err != nil {
			return fmt.Errorf("marshaling doc %s: %w", id, err)
		}
		dw.Write(line)
		dw.WriteByte('\n')
	}
	if err := dw.Flush(); err != nil {
		return fmt.Errorf("writing docs file: %w", err)
	}
	if err := df.Sync(); err != nil {
		return fmt.Errorf("fsync docs file: %w", err)
	}

	vf, err := os.Create(vecPath)
	if err != nil {
		return fmt.Errorf("creating embeddings file %s: %w", vecPath, err)
	}
	defer vf.Close()
	vw := bufio.NewWriter(vf)
	vw.Write(vecMagic[:])
	if err := binary.Write(vw, binary.LittleEndian, uint32(len(ids))); err != nil {
		return fmt.Errorf("writing embeddings header: %w", err)
	}
	for _, id := range ids {
		vec := e.docs[id].Vector
		if err := binary.Write(vw, binary.LittleEndian, uint16(len(id))); err != nil {
			return err
		}
		vw.WriteString(id)
		if err := binary.Write(vw, binary.LittleEndian, uint32(len(vec))); err != nil {
			return err
		}
		if err := binary.Write(vw, binary.LittleEndian, vec); err != nil {
			return err
		}
	}
	if err := vw.Flush(); err != nil {
		return fmt.Errorf("writing embeddings file: %w", err)
	}
	return vf.Sync()
}

// Load replaces the live index with the persisted docs and vectors.
// A doc with no sidecar vector keeps a nil vector and scores 0 on the
// semantic side until rebuilt.
func (e *Engine) Load(docsPath, vecPath string) error {
	df, err := os.Open(docsPath)
	if err != nil {
		return fmt.Errorf("opening docs file %s: %w", docsPath, err)
	}
	defer df.Close()

	docs := map[string]SearchDoc{}
	scanner := bufio.NewScanner(df)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var pd persistedDoc
		if err := json.Unmarshal(line, &pd); err != nil {
			return fmt.Errorf("parsing docs file %s: %w", docsPath, err)
		}
		docs[pd.ID] = SearchDoc{
			ID: pd.ID, Name: pd.Name, Description: pd.Description, Tags: pd.Tags,
			Layer: pd.Layer, Platforms: pd.Platforms, Deprecated: pd.Deprecated, BodyText: pd.BodyText,
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading docs file %s: %w", docsPath, err)
	}

	vectors, err := readVectors(vecPath)
	if err != nil {
		return err
	}
	for id, vec := range vectors {
		if d, ok := docs[id]; ok {
			d.Vector = vec
			docs[id] = d
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs = map[string]SearchDoc{}
	e.lexical = newBM25Index(e.fieldWeights)
	for _, d := range docs {
		e.docs[d.ID] = d
		e.lexical.Upsert(d)
	}
	return nil
}

func readVectors(path string) (map[string][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening embeddings file %s: %w", path, err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("reading embeddings header: %w", err)
	}
	if magic != vecMagic {
		return nil, fmt.Errorf("embeddings file %s: unrecognized format", path)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("reading embeddings count: %w", err)
	}

	out := make(map[string][]float64, count)
	for i := uint32(0); i < count; i++ {
		var idLen uint16
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return nil, fmt.Errorf("reading embedding %d: %w", i, err)
		}
		idBuf := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBuf); err != nil {
			return nil, fmt.Errorf("reading embedding %d id: %w", i, err)
		}
		var dims uint32
		if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
			return nil, fmt.Errorf("reading embedding %d dims: %w", i, err)
		}
		vec := make([]float64, dims)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("reading embedding %d vector: %w", i, err)
		}
		out[string(idBuf)] = vec
	}
	return out, nil
}
