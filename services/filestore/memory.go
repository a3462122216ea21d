package filestoresvc

import (
	"context"
	"io"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
)

// memoryStorage keeps blobs in memory. Test use only.
type memoryStorage struct {
	mutex sync.Mutex
	files map[string][]byte
}

var _ core.FileStorage = (*memoryStorage)(nil)

func NewMemoryStorage() *memoryStorage {
	return &memoryStorage{files: make(map[string][]byte)}
}

func (s *memoryStorage) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := uuid.New().String() + filepath.Ext(filename)
	s.mutex.Lock()
	s.files[key] = content
	s.mutex.Unlock()
	return key, nil
}

func (s *memoryStorage) Get(key string) ([]byte, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	content, ok := s.files[key]
	return content, ok
}
