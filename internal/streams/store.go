package streams

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNotFound = errors.New("streams: no data under key")

type DataSchema struct {
	ID             string
	Schema         string
	ParentSchemaID common.Hash
}

type EventParam struct {
	Name      string
	ParamType string
	IsIndexed bool
}

type EventSchema struct {
	Params     []EventParam
	EventTopic string
}

// DataStream is one record written under (schemaId, publisher, ID).
type DataStream struct {
	ID       common.Hash
	SchemaID common.Hash
	Data     []byte
}

// EventStream is one event emitted alongside a write.
type EventStream struct {
	ID             string
	ArgumentTopics []common.Hash
	Data           []byte
}

// Store is a client of the streams index. Writes return the hash of the
// transaction that carried them once it has been mined.
type Store interface {
	Publisher() common.Address
	IsSchemaRegistered(ctx context.Context, schemaID common.Hash) (bool, error)
	RegisterDataSchemas(ctx context.Context, schemas []DataSchema, ignoreRegistered bool) (common.Hash, error)
	RegisterEventSchemas(ctx context.Context, ids []string, schemas []EventSchema) (common.Hash, error)
	SetAndEmitEvents(ctx context.Context, data []DataStream, events []EventStream) (common.Hash, error)
	GetByKey(ctx context.Context, schemaID common.Hash, publisher common.Address, key common.Hash) ([]byte, error)
}

// IsAlreadyRegistered reports whether err is the index refusing a schema
// that already exists.
func IsAlreadyRegistered(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"IDAlreadyUsed", "already registered", "AlreadyRegistered"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// IsUnfunded reports whether err means the publisher wallet cannot pay gas.
func IsUnfunded(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "account does not exist") || strings.Contains(msg, "insufficient funds")
}

// Record is anything that encodes itself against its schema.
type Record interface {
	Encode() ([]byte, error)
}

// Stream encodes r as a DataStream under key.
func Stream(s *Schema, key common.Hash, r Record) (DataStream, error) {
	data, err := r.Encode()
	if err != nil {
		return DataStream{}, err
	}
	return DataStream{ID: key, SchemaID: s.ID(), Data: data}, nil
}

// Get reads the record under key and decodes it into v. It returns
// ErrNotFound when nothing was written.
func Get(ctx context.Context, st Store, s *Schema, key common.Hash, v interface{}) error {
	data, err := st.GetByKey(ctx, s.ID(), st.Publisher(), key)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrNotFound
	}
	return s.DecodeInto(v, data)
}
