// Package entity holds the ordered collection of code entities produced by one
// scan. Ids are assigned by scan order and never reused.
package entity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"featloc/internal/models"
	"featloc/internal/parser"
	"featloc/internal/utils"
)

type Store struct {
	entities []*models.CodeEntity
	byID     map[int]*models.CodeEntity
}

func NewStore() *Store {
	return &Store{byID: make(map[int]*models.CodeEntity)}
}

// Add appends the raw entities of one file, assigning consecutive ids.
func (s *Store) Add(fileName string, raws []parser.RawEntity) []*models.CodeEntity {
	added := make([]*models.CodeEntity, 0, len(raws))
	for _, r := range raws {
		e := &models.CodeEntity{
			ID:        len(s.entities),
			Category:  r.Category,
			Name:      r.Name,
			FileName:  fileName,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Code:      r.Code,
		}
		s.entities = append(s.entities, e)
		s.byID[e.ID] = e
		added = append(added, e)
	}
	return added
}

// Entities returns every entity in id order. The slice must not be modified.
func (s *Store) Entities() []*models.CodeEntity {
	return s.entities
}

// Functions returns the Function entities in scan order.
func (s *Store) Functions() []*models.CodeEntity {
	var out []*models.CodeEntity
	for _, e := range s.entities {
		if e.IsFunction() {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) Get(id int) (*models.CodeEntity, bool) {
	e, ok := s.byID[id]
	return e, ok
}

func (s *Store) Len() int {
	return len(s.entities)
}

// Fingerprint is the hex SHA-256 of the ordered (id, code) pairs. Two stores
// with the same fingerprint encode to the same corpus.
func (s *Store) Fingerprint() string {
	h := sha256.New()
	for _, e := range s.entities {
		h.Write([]byte(strconv.Itoa(e.ID)))
		h.Write([]byte{0})
		h.Write([]byte(e.Code))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Save persists the store as a JSON array.
func (s *Store) Save(path string) error {
	entities := s.entities
	if entities == nil {
		entities = []*models.CodeEntity{}
	}
	return utils.WriteJSON(path, entities)
}

// Load reads a JSON array of entities. A missing file, a document that is not
// an array or duplicate ids fail with models.ErrMalformedInput.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: corpus %s not found", models.ErrMalformedInput, path)
		}
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a JSON array of entities.
func Parse(data []byte) (*Store, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: corpus is not a JSON array", models.ErrMalformedInput)
	}

	var entities []*models.CodeEntity
	if err := json.Unmarshal(trimmed, &entities); err != nil {
		return nil, fmt.Errorf("%w: decode corpus: %v", models.ErrMalformedInput, err)
	}

	s := NewStore()
	for i, e := range entities {
		if e == nil {
			return nil, fmt.Errorf("%w: corpus entry %d is null", models.ErrMalformedInput, i)
		}
		if _, dup := s.byID[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate entity id %d", models.ErrMalformedInput, e.ID)
		}
		s.entities = append(s.entities, e)
		s.byID[e.ID] = e
	}
	return s, nil
}
