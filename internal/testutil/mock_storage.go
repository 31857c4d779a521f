// mock_storage.go - In-memory storage.Store for handler tests
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/filedrop/uploader/internal/models"
	"github.com/filedrop/uploader/internal/storage"
)

// MockStorage implements storage.Store in memory.
type MockStorage struct {
	mu       sync.RWMutex
	files    map[string]*models.FileInfo
	fileData map[string][]byte
	chunks   map[string]map[int][]byte // uploadKey -> chunkIndex -> data
	nextID   int

	// SaveErr, when set, is returned by Save, SaveBytes and SaveChunk.
	SaveErr error
	// AbortErr, when set, is returned by AbortChunkedUpload.
	AbortErr error
}

// NewMockStorage creates an empty MockStorage.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		files:    make(map[string]*models.FileInfo),
		fileData: make(map[string][]byte),
		chunks:   make(map[string]map[int][]byte),
	}
}

func (m *MockStorage) Save(name string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.SaveBytes(name, data)
}

func (m *MockStorage) SaveBytes(name string, data []byte) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	return m.addLocked(m.newIDLocked(), name, data), nil
}

func (m *MockStorage) Get(id string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	cp := *file
	return &cp, nil
}

// List returns files in the order they were added, newest first.
func (m *MockStorage) List(limit int) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := make([]*models.FileInfo, 0, len(m.files))
	for _, file := range m.files {
		cp := *file
		files = append(files, &cp)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID > files[j].ID })

	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.files[id]; !exists {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}

	delete(m.files, id)
	delete(m.fileData, id)
	return nil
}

func (m *MockStorage) Open(id string) (io.ReadCloser, error) {
	data, err := m.GetFileData(id)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockStorage) SaveChunk(uploadKey string, chunkIndex int, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	if m.chunks[uploadKey] == nil {
		m.chunks[uploadKey] = make(map[int][]byte)
	}
	m.chunks[uploadKey][chunkIndex] = data
	return nil
}

func (m *MockStorage) ChunkCount(uploadKey string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks[uploadKey]), nil
}

func (m *MockStorage) CompleteChunkedUpload(uploadKey string, name string, totalChunks int) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uploadChunks := m.chunks[uploadKey]

	var data bytes.Buffer
	for i := 0; i < totalChunks; i++ {
		chunk, ok := uploadChunks[i]
		if !ok {
			return nil, fmt.Errorf("%w: chunk %d of %d missing", storage.ErrIncomplete, i, totalChunks)
		}
		data.Write(chunk)
	}

	delete(m.chunks, uploadKey)
	return m.addLocked(m.newIDLocked(), name, data.Bytes()), nil
}

func (m *MockStorage) AbortChunkedUpload(uploadKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AbortErr != nil {
		return m.AbortErr
	}
	delete(m.chunks, uploadKey)
	return nil
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// Test Helper Methods

// AddFile adds a file directly to the mock.
func (m *MockStorage) AddFile(id string, name string, data []byte) *models.FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(id, name, data)
}

// GetFileData returns the stored content of id.
func (m *MockStorage) GetFileData(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.fileData[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return data, nil
}

// FileByName returns the first stored file called name.
func (m *MockStorage) FileByName(name string) (*models.FileInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, f := range m.files {
		if f.Name == name {
			cp := *f
			return &cp, true
		}
	}
	return nil, false
}

func (m *MockStorage) newIDLocked() string {
	m.nextID++
	return fmt.Sprintf("file-%04d", m.nextID)
}

func (m *MockStorage) addLocked(id, name string, data []byte) *models.FileInfo {
	file := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
		Status:     storage.StatusUploaded,
	}
	m.files[id] = file
	m.fileData[id] = append([]byte(nil), data...)
	cp := *file
	return &cp
}
