package filestoresvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

type diskStorage struct {
	root string
}

var _ core.FileStorage = (*diskStorage)(nil)

func NewDiskStorage() core.FileStorage {
	return &diskStorage{root: core.Conf.MediaRoot}
}

// Save writes the blob under <root>/<yyyy>/<mm>/<uuid><ext> and returns
// that relative path as the key.
func (s diskStorage) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	now := time.Now().UTC()
	dir := filepath.Join(now.Format("2006"), now.Format("01"))
	if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
		return "", errors.Wrap(err, "creating media dir")
	}

	key := filepath.Join(dir, uuid.New().String()+filepath.Ext(filename))
	f, err := os.Create(filepath.Join(s.root, key))
	if err != nil {
		return "", errors.Wrap(err, "creating media file")
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(f.Name())
		return "", errors.Wrap(err, "writing media file")
	}
	return key, nil
}
