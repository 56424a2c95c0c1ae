package classifier

import (
	"errors"
	"io/fs"
	"sync"

	"golang.org/x/exp/mmap"
)

// Model is a read-only view of the classifier asset.
type Model struct {
	Path string

	mu     sync.Mutex
	reader *mmap.ReaderAt
	data   []byte
}

// OpenModel memory-maps the model file at path.
func OpenModel(path string) (*Model, error) {
	r, err := mmap.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Kind: NotFound, Err: err}
		}
		return nil, &LoadError{Kind: Corrupt, Err: err}
	}
	if r.Len() == 0 {
		r.Close()
		return nil, &LoadError{Kind: Corrupt, Err: errors.New("model file is empty: " + path)}
	}
	return &Model{Path: path, reader: r}, nil
}

// NewModel wraps an in-memory model.
func NewModel(name string, data []byte) *Model {
	return &Model{Path: name, data: data}
}

// Len returns the model size in bytes.
func (m *Model) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reader != nil {
		return m.reader.Len()
	}
	return len(m.data)
}

// Bytes returns the model contents. The first call on a mapped model copies
// the mapping into memory.
func (m *Model) Bytes() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data != nil {
		return m.data, nil
	}
	if m.reader == nil {
		return nil, &LoadError{Kind: Corrupt, Err: errors.New("model closed")}
	}
	buf := make([]byte, m.reader.Len())
	if _, err := m.reader.ReadAt(buf, 0); err != nil {
		return nil, &LoadError{Kind: Corrupt, Err: err}
	}
	m.data = buf
	return buf, nil
}

// Close releases the mapping. Safe to call more than once.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reader == nil {
		return nil
	}
	err := m.reader.Close()
	m.reader = nil
	return err
}
