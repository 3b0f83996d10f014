package index

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads the store in dir and validates it. Missing artifacts yield an
// error wrapping ErrStoreNotFound; artifacts that disagree on shape yield an
// *IntegrityError.
func Load(dir string) (*Corpus, error) {
	st, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, dir)
		}
		return nil, fmt.Errorf("cannot stat store %s: %w", dir, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrStoreNotFound, dir)
	}

	unlock, err := lockStore(dir, true)
	if err != nil {
		return nil, err
	}
	defer unlock()

	emb, err := readMatrix(filepath.Join(dir, EmbeddingsFile))
	if err != nil {
		return nil, err
	}
	corpusPath := filepath.Join(dir, CorpusFile)
	h, texts, meta, err := readCorpus(corpusPath)
	if err != nil {
		return nil, err
	}

	if emb.Cols <= 0 {
		return nil, &IntegrityError{Path: dir, Reason: fmt.Sprintf("embedding dimension must be positive, got %d", emb.Cols)}
	}
	if h.Dim != 0 && h.Dim != emb.Cols {
		return nil, &IntegrityError{Path: dir, Reason: fmt.Sprintf("corpus dim %d does not match embeddings %d", h.Dim, emb.Cols)}
	}
	if emb.Rows != len(texts) {
		return nil, &IntegrityError{Path: dir, Reason: fmt.Sprintf("embedding rows=%d but corpus has %d records", emb.Rows, len(texts))}
	}

	c := &Corpus{Texts: texts, Metadata: meta, Embeddings: emb, ModelID: h.ModelID}
	if err := c.Validate(); err != nil {
		var ie *IntegrityError
		if errors.As(err, &ie) && ie.Path == "" {
			ie.Path = dir
		}
		return nil, err
	}

	info, err := readInfo(filepath.Join(dir, InfoFile))
	if err != nil {
		return nil, err
	}
	c.Info = info
	return c, nil
}

func readCorpus(path string) (corpusHeader, []string, []Metadata, error) {
	var h corpusHeader
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return h, nil, nil, fmt.Errorf("%w: %s", ErrStoreNotFound, path)
		}
		return h, nil, nil, fmt.Errorf("cannot open corpus file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return h, nil, nil, fmt.Errorf("cannot read corpus file %s: %w", path, err)
		}
		return h, nil, nil, &IntegrityError{Path: path, Reason: "missing header"}
	}
	if err := json.Unmarshal(scanner.Bytes(), &h); err != nil {
		return h, nil, nil, &IntegrityError{Path: path, Reason: "invalid header: " + err.Error()}
	}
	if h.Format != corpusFormat {
		return h, nil, nil, &IntegrityError{Path: path, Reason: fmt.Sprintf("unknown format %q", h.Format)}
	}
	if h.Version != FormatVersion {
		return h, nil, nil, &IntegrityError{Path: path, Reason: fmt.Sprintf("unsupported version %d", h.Version)}
	}

	texts := make([]string, 0, h.Count)
	meta := make([]Metadata, 0, h.Count)
	line := 1
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec corpusRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return h, nil, nil, &IntegrityError{Path: path, Reason: fmt.Sprintf("line %d: %v", line, err)}
		}
		if rec.TextHash != "" && rec.TextHash != TextHash(rec.Text) {
			return h, nil, nil, &IntegrityError{Path: path, Reason: fmt.Sprintf("line %d: text hash mismatch", line)}
		}
		texts = append(texts, rec.Text)
		meta = append(meta, rec.Metadata)
	}
	if err := scanner.Err(); err != nil {
		return h, nil, nil, fmt.Errorf("cannot read corpus file %s: %w", path, err)
	}
	if len(texts) != h.Count {
		return h, nil, nil, &IntegrityError{Path: path, Reason: fmt.Sprintf("header count %d but %d records", h.Count, len(texts))}
	}
	return h, texts, meta, nil
}

// readInfo reads index_info.json. The file is informational, so a missing
// one yields a zero Info.
func readInfo(path string) (Info, error) {
	var info Info
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return info, nil
		}
		return info, fmt.Errorf("cannot read index info %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &info); err != nil {
		return info, &IntegrityError{Path: path, Reason: "invalid JSON: " + err.Error()}
	}
	return info, nil
}

// LoadSimilarity reads the optional chunk similarity matrix from dir.
// It returns ErrStoreNotFound when the store was built without one.
func LoadSimilarity(dir string) (Matrix, error) {
	m, err := readMatrix(filepath.Join(dir, SimilarityFile))
	if err != nil {
		return Matrix{}, err
	}
	if m.Rows != m.Cols {
		return Matrix{}, &IntegrityError{Path: dir, Reason: fmt.Sprintf("similarity matrix is %dx%d", m.Rows, m.Cols)}
	}
	if !Finite(m.Data) {
		return Matrix{}, &IntegrityError{Path: dir, Reason: "similarity matrix holds a non-finite value"}
	}
	return m, nil
}
