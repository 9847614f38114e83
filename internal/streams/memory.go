package streams

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Emitted is an event as the memory store recorded it.
type Emitted struct {
	ID     string
	Topics []common.Hash
	TxHash common.Hash
}

type recordKey struct {
	schema    common.Hash
	publisher common.Address
	key       common.Hash
}

// MemoryStore keeps everything in process. It enforces the same
// registration rules as the on-chain index.
type MemoryStore struct {
	mu        sync.RWMutex
	publisher common.Address
	schemas   map[common.Hash]DataSchema
	events    map[string]EventSchema
	records   map[recordKey][]byte
	emitted   []Emitted
	nonce     uint64

	// FailWrites, when set, is returned by every write.
	FailWrites error
}

func NewMemoryStore(publisher common.Address) *MemoryStore {
	return &MemoryStore{
		publisher: publisher,
		schemas:   make(map[common.Hash]DataSchema),
		events:    make(map[string]EventSchema),
		records:   make(map[recordKey][]byte),
	}
}

func (m *MemoryStore) Publisher() common.Address { return m.publisher }

func (m *MemoryStore) nextTx() common.Hash {
	m.nonce++
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], m.nonce)
	return crypto.Keccak256Hash(m.publisher.Bytes(), b[:])
}

func (m *MemoryStore) IsSchemaRegistered(_ context.Context, schemaID common.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.schemas[schemaID]
	return ok, nil
}

func (m *MemoryStore) RegisterDataSchemas(_ context.Context, schemas []DataSchema, ignoreRegistered bool) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return common.Hash{}, m.FailWrites
	}
	for _, s := range schemas {
		if _, ok := m.schemas[ComputeSchemaID(s.Schema)]; ok && !ignoreRegistered {
			return common.Hash{}, fmt.Errorf("SchemaAlreadyRegistered: %s", s.ID)
		}
	}
	for _, s := range schemas {
		m.schemas[ComputeSchemaID(s.Schema)] = s
	}
	return m.nextTx(), nil
}

func (m *MemoryStore) RegisterEventSchemas(_ context.Context, ids []string, schemas []EventSchema) (common.Hash, error) {
	if len(ids) != len(schemas) {
		return common.Hash{}, fmt.Errorf("register event schemas: %d ids for %d schemas", len(ids), len(schemas))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return common.Hash{}, m.FailWrites
	}
	for _, id := range ids {
		if _, ok := m.events[id]; ok {
			return common.Hash{}, fmt.Errorf("EventSchemaAlreadyRegistered: %s", id)
		}
	}
	for i, id := range ids {
		m.events[id] = schemas[i]
	}
	return m.nextTx(), nil
}

func (m *MemoryStore) SetAndEmitEvents(_ context.Context, data []DataStream, events []EventStream) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return common.Hash{}, m.FailWrites
	}
	for _, d := range data {
		if _, ok := m.schemas[d.SchemaID]; !ok {
			return common.Hash{}, fmt.Errorf("schema %s not registered", d.SchemaID.Hex())
		}
	}
	for _, e := range events {
		es, ok := m.events[e.ID]
		if !ok {
			return common.Hash{}, fmt.Errorf("event %s not registered", e.ID)
		}
		if len(e.ArgumentTopics) != len(es.Params) {
			return common.Hash{}, fmt.Errorf("event %s: %d topics for %d params", e.ID, len(e.ArgumentTopics), len(es.Params))
		}
	}

	tx := m.nextTx()
	for _, d := range data {
		m.records[recordKey{d.SchemaID, m.publisher, d.ID}] = append([]byte(nil), d.Data...)
	}
	for _, e := range events {
		m.emitted = append(m.emitted, Emitted{ID: e.ID, Topics: append([]common.Hash(nil), e.ArgumentTopics...), TxHash: tx})
	}
	return tx, nil
}

func (m *MemoryStore) GetByKey(_ context.Context, schemaID common.Hash, publisher common.Address, key common.Hash) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.records[recordKey{schemaID, publisher, key}]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Emitted returns every event written so far, oldest first.
func (m *MemoryStore) Emitted() []Emitted {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Emitted(nil), m.emitted...)
}
