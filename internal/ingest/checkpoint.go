package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"agriguardian/internal/models"
)

// Checkpoint is the accumulated chunk list and the registry of processed files.
// A registered path is never processed again. Chunks[:Indexed] are known to be
// in the vector index.
type Checkpoint struct {
	documentsPath string
	filesPath     string
	indexedPath   string

	Chunks  []models.Chunk
	Indexed int
	files   map[string]struct{}
}

type indexState struct {
	IndexedChunks int `json:"indexed_chunks"`
}

// LoadCheckpoint reads the artifacts; missing files start an empty checkpoint.
// Without an index marker every stored chunk is assumed indexed.
func LoadCheckpoint(documentsPath, filesPath string) (*Checkpoint, error) {
	c := &Checkpoint{
		documentsPath: documentsPath,
		filesPath:     filesPath,
		indexedPath:   indexedPath(documentsPath),
		files:         make(map[string]struct{}),
	}
	if err := readJSON(documentsPath, &c.Chunks); err != nil {
		return nil, fmt.Errorf("load %s: %w", documentsPath, err)
	}
	var paths []string
	if err := readJSON(filesPath, &paths); err != nil {
		return nil, fmt.Errorf("load %s: %w", filesPath, err)
	}
	for _, p := range paths {
		c.files[p] = struct{}{}
	}

	state := indexState{IndexedChunks: -1}
	if err := readJSON(c.indexedPath, &state); err != nil {
		return nil, fmt.Errorf("load %s: %w", c.indexedPath, err)
	}
	c.Indexed = state.IndexedChunks
	if c.Indexed < 0 || c.Indexed > len(c.Chunks) {
		c.Indexed = len(c.Chunks)
	}
	return c, nil
}

// indexedPath derives the marker file name: processed_documents.json gives
// processed_documents_indexed.json.
func indexedPath(documentsPath string) string {
	ext := filepath.Ext(documentsPath)
	return strings.TrimSuffix(documentsPath, ext) + "_indexed.json"
}

// Pending returns the chunks not yet in the index.
func (c *Checkpoint) Pending() []models.Chunk {
	return c.Chunks[c.Indexed:]
}

// MarkIndexed records that every stored chunk is in the index.
func (c *Checkpoint) MarkIndexed() error {
	c.Indexed = len(c.Chunks)
	return writeJSON(c.indexedPath, indexState{IndexedChunks: c.Indexed})
}

func (c *Checkpoint) Processed(path string) bool {
	_, ok := c.files[path]
	return ok
}

// Add registers path and appends its chunks.
func (c *Checkpoint) Add(path string, chunks []models.Chunk) {
	c.files[path] = struct{}{}
	c.Chunks = append(c.Chunks, chunks...)
}

// Files returns the registered paths, sorted.
func (c *Checkpoint) Files() []string {
	paths := make([]string, 0, len(c.files))
	for p := range c.files {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Save writes the artifacts, each through a temp file and rename.
func (c *Checkpoint) Save() error {
	chunks := c.Chunks
	if chunks == nil {
		chunks = []models.Chunk{}
	}
	if err := writeJSON(c.documentsPath, chunks); err != nil {
		return err
	}
	if err := writeJSON(c.filesPath, c.Files()); err != nil {
		return err
	}
	return writeJSON(c.indexedPath, indexState{IndexedChunks: c.Indexed})
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit %s: %w", path, err)
	}
	return nil
}
