package storage

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/filedrop/uploader/internal/models"
)

// ErrNotFound is returned for an unknown file id.
var ErrNotFound = errors.New("file not found")

// ErrIncomplete is returned when assembling an upload with missing chunks.
var ErrIncomplete = errors.New("chunked upload incomplete")

const (
	indexFile = "index.msgpack"
	chunkDir  = "chunks"

	StatusUploaded = "uploaded"
)

// Store defines the interface for received-file storage.
type Store interface {
	Save(name string, r io.Reader) (*models.FileInfo, error)
	SaveBytes(name string, data []byte) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	Open(id string) (io.ReadCloser, error)
	SaveChunk(uploadKey string, chunkIndex int, r io.Reader) error
	ChunkCount(uploadKey string) (int, error)
	CompleteChunkedUpload(uploadKey string, name string, totalChunks int) (*models.FileInfo, error)
	AbortChunkedUpload(uploadKey string) error
}

// LocalStore implements Store on the local filesystem. File metadata is kept
// in memory and mirrored to a msgpack index so it survives restarts.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.FileInfo
	now       func() time.Time
}

// NewLocalStore creates a LocalStore rooted at uploadDir, loading any index
// left by a previous run.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	s := &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*models.FileInfo),
		now:       time.Now,
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the directory files are stored in.
func (s *LocalStore) Dir() string {
	return s.uploadDir
}

// Save stores the contents of r under a new id.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	return s.register(id, name, size)
}

// SaveBytes stores data under a new id.
func (s *LocalStore) SaveBytes(name string, data []byte) (*models.FileInfo, error) {
	return s.Save(name, bytes.NewReader(data))
}

func (s *LocalStore) register(id, name string, size int64) (*models.FileInfo, error) {
	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       size,
		UploadedAt: s.now(),
		Status:     StatusUploaded,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info
	if err := s.saveIndexLocked(); err != nil {
		delete(s.files, id)
		os.Remove(filepath.Join(s.uploadDir, id))
		return nil, err
	}

	return info, nil
}

// Get retrieves file metadata by id.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	cp := *info
	return &cp, nil
}

// List returns up to limit files, newest first. A limit <= 0 returns all.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		cp := *info
		list = append(list, &cp)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].UploadedAt.Equal(list[j].UploadedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a file and its metadata.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := os.Remove(filepath.Join(s.uploadDir, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	if err := s.saveIndexLocked(); err != nil {
		s.files[id] = info
		return err
	}

	return nil
}

// Open returns the stored contents of file id.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	s.mu.RLock()
	_, ok := s.files[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	f, err := os.Open(filepath.Join(s.uploadDir, id))
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return f, nil
}

// chunkPath returns the staging directory for uploadKey. The key is hex
// encoded so any file name maps to a single safe path element.
func (s *LocalStore) chunkPath(uploadKey string) string {
	return filepath.Join(s.uploadDir, chunkDir, hex.EncodeToString([]byte(uploadKey)))
}

// SaveChunk stages chunk chunkIndex of uploadKey. Re-sending a chunk
// replaces it.
func (s *LocalStore) SaveChunk(uploadKey string, chunkIndex int, r io.Reader) error {
	if chunkIndex < 0 {
		return fmt.Errorf("invalid chunk index %d", chunkIndex)
	}

	dir := s.chunkPath(uploadKey)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating chunk directory: %w", err)
	}

	path := filepath.Join(dir, "chunk_"+strconv.Itoa(chunkIndex))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chunk file: %w", err)
	}

	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("writing chunk: %w", err)
	}

	return nil
}

// ChunkCount returns how many chunks are staged for uploadKey.
func (s *LocalStore) ChunkCount(uploadKey string) (int, error) {
	entries, err := os.ReadDir(s.chunkPath(uploadKey))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading chunk directory: %w", err)
	}
	return len(entries), nil
}

// CompleteChunkedUpload concatenates chunks 0..totalChunks-1 of uploadKey
// into a new file named name and discards the staged chunks.
func (s *LocalStore) CompleteChunkedUpload(uploadKey string, name string, totalChunks int) (*models.FileInfo, error) {
	dir := s.chunkPath(uploadKey)
	for i := 0; i < totalChunks; i++ {
		if _, err := os.Stat(filepath.Join(dir, "chunk_"+strconv.Itoa(i))); err != nil {
			return nil, fmt.Errorf("%w: chunk %d of %d missing", ErrIncomplete, i, totalChunks)
		}
	}

	id := uuid.New().String()
	finalPath := filepath.Join(s.uploadDir, id)

	out, err := os.Create(finalPath)
	if err != nil {
		return nil, fmt.Errorf("creating final file: %w", err)
	}

	size, err := concatChunks(out, dir, totalChunks)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(finalPath)
		return nil, err
	}

	info, err := s.register(id, name, size)
	if err != nil {
		return nil, err
	}

	os.RemoveAll(dir)
	return info, nil
}

func concatChunks(out io.Writer, dir string, totalChunks int) (int64, error) {
	var total int64
	for i := 0; i < totalChunks; i++ {
		in, err := os.Open(filepath.Join(dir, "chunk_"+strconv.Itoa(i)))
		if err != nil {
			return 0, fmt.Errorf("opening chunk %d: %w", i, err)
		}

		n, err := io.Copy(out, in)
		in.Close()
		if err != nil {
			return 0, fmt.Errorf("copying chunk %d: %w", i, err)
		}
		total += n
	}
	return total, nil
}

// AbortChunkedUpload discards every staged chunk of uploadKey.
func (s *LocalStore) AbortChunkedUpload(uploadKey string) error {
	if err := os.RemoveAll(s.chunkPath(uploadKey)); err != nil {
		return fmt.Errorf("removing chunks: %w", err)
	}
	return nil
}

func (s *LocalStore) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.uploadDir, indexFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading index: %w", err)
	}

	var files []*models.FileInfo
	if err := msgpack.Unmarshal(data, &files); err != nil {
		return fmt.Errorf("decoding index: %w", err)
	}

	for _, info := range files {
		if _, err := os.Stat(filepath.Join(s.uploadDir, info.ID)); err != nil {
			continue
		}
		s.files[info.ID] = info
	}
	return nil
}

func (s *LocalStore) saveIndexLocked() error {
	files := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		files = append(files, info)
	}

	data, err := msgpack.Marshal(files)
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}

	path := filepath.Join(s.uploadDir, indexFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}
