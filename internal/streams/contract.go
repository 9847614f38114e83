package streams

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/chain"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/metrics"
)

// StreamsABI covers the calls this service makes on the streams protocol
// contract.
const StreamsABI = `[
	{"type":"function","name":"isSchemaRegistered","stateMutability":"view",
		"inputs":[{"name":"schemaId","type":"bytes32"}],
		"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"registerSchemas","stateMutability":"nonpayable",
		"inputs":[
			{"name":"schemas","type":"tuple[]","components":[
				{"name":"id","type":"string"},
				{"name":"schema","type":"string"},
				{"name":"parentSchemaId","type":"bytes32"}]},
			{"name":"ignoreRegisteredSchemas","type":"bool"}],
		"outputs":[]},
	{"type":"function","name":"registerEventSchemas","stateMutability":"nonpayable",
		"inputs":[
			{"name":"ids","type":"string[]"},
			{"name":"schemas","type":"tuple[]","components":[
				{"name":"params","type":"tuple[]","components":[
					{"name":"name","type":"string"},
					{"name":"paramType","type":"string"},
					{"name":"isIndexed","type":"bool"}]},
				{"name":"eventTopic","type":"string"}]}],
		"outputs":[]},
	{"type":"function","name":"esstores","stateMutability":"nonpayable",
		"inputs":[
			{"name":"dataStreams","type":"tuple[]","components":[
				{"name":"id","type":"bytes32"},
				{"name":"schemaId","type":"bytes32"},
				{"name":"data","type":"bytes"}]},
			{"name":"eventStreams","type":"tuple[]","components":[
				{"name":"id","type":"string"},
				{"name":"argumentTopics","type":"bytes32[]"},
				{"name":"data","type":"bytes"}]}],
		"outputs":[]},
	{"type":"function","name":"getDataByKey","stateMutability":"view",
		"inputs":[
			{"name":"schemaId","type":"bytes32"},
			{"name":"publisher","type":"address"},
			{"name":"key","type":"bytes32"}],
		"outputs":[{"name":"","type":"bytes"}]}
]`

type abiDataSchema struct {
	ID             string   `abi:"id"`
	Schema         string   `abi:"schema"`
	ParentSchemaID [32]byte `abi:"parentSchemaId"`
}

type abiEventParam struct {
	Name      string `abi:"name"`
	ParamType string `abi:"paramType"`
	IsIndexed bool   `abi:"isIndexed"`
}

type abiEventSchema struct {
	Params     []abiEventParam `abi:"params"`
	EventTopic string          `abi:"eventTopic"`
}

type abiDataStream struct {
	ID       [32]byte `abi:"id"`
	SchemaID [32]byte `abi:"schemaId"`
	Data     []byte   `abi:"data"`
}

type abiEventStream struct {
	ID             string     `abi:"id"`
	ArgumentTopics [][32]byte `abi:"argumentTopics"`
	Data           []byte     `abi:"data"`
}

// ContractStore talks to the streams protocol contract through the
// server wallet.
type ContractStore struct {
	client    *chain.Client
	contract  *bind.BoundContract
	publisher common.Address
	log       *zap.Logger
}

// NewContractStore binds the protocol at address. Reads default to
// publisher; a zero publisher falls back to the wallet address.
func NewContractStore(client *chain.Client, address, publisher common.Address, log *zap.Logger) (*ContractStore, error) {
	parsed, err := abi.JSON(strings.NewReader(StreamsABI))
	if err != nil {
		return nil, fmt.Errorf("parse streams abi: %w", err)
	}
	if publisher == (common.Address{}) {
		publisher = client.From()
	}
	if log == nil {
		log = zap.NewNop()
	}
	b := client.Backend()
	return &ContractStore{
		client:    client,
		contract:  bind.NewBoundContract(address, parsed, b, b, b),
		publisher: publisher,
		log:       log.Named("streams"),
	}, nil
}

func (c *ContractStore) Publisher() common.Address { return c.publisher }

func (c *ContractStore) IsSchemaRegistered(ctx context.Context, schemaID common.Hash) (bool, error) {
	var out []interface{}
	start := time.Now()
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "isSchemaRegistered", [32]byte(schemaID))
	metrics.ObserveChain("isSchemaRegistered", start, err)
	if err != nil {
		return false, fmt.Errorf("call isSchemaRegistered: %w", err)
	}
	ok, _ := out[0].(bool)
	return ok, nil
}

func (c *ContractStore) RegisterDataSchemas(ctx context.Context, schemas []DataSchema, ignoreRegistered bool) (common.Hash, error) {
	in := make([]abiDataSchema, len(schemas))
	for i, s := range schemas {
		in[i] = abiDataSchema{ID: s.ID, Schema: s.Schema, ParentSchemaID: s.ParentSchemaID}
	}
	return c.transact(ctx, "registerSchemas", in, ignoreRegistered)
}

func (c *ContractStore) RegisterEventSchemas(ctx context.Context, ids []string, schemas []EventSchema) (common.Hash, error) {
	if len(ids) != len(schemas) {
		return common.Hash{}, fmt.Errorf("register event schemas: %d ids for %d schemas", len(ids), len(schemas))
	}
	in := make([]abiEventSchema, len(schemas))
	for i, s := range schemas {
		params := make([]abiEventParam, len(s.Params))
		for j, p := range s.Params {
			params[j] = abiEventParam(p)
		}
		in[i] = abiEventSchema{Params: params, EventTopic: s.EventTopic}
	}
	return c.transact(ctx, "registerEventSchemas", ids, in)
}

func (c *ContractStore) SetAndEmitEvents(ctx context.Context, data []DataStream, events []EventStream) (common.Hash, error) {
	ds := make([]abiDataStream, len(data))
	for i, d := range data {
		ds[i] = abiDataStream{ID: d.ID, SchemaID: d.SchemaID, Data: d.Data}
	}
	es := make([]abiEventStream, len(events))
	for i, e := range events {
		topics := make([][32]byte, len(e.ArgumentTopics))
		for j, t := range e.ArgumentTopics {
			topics[j] = t
		}
		payload := e.Data
		if payload == nil {
			payload = []byte{}
		}
		es[i] = abiEventStream{ID: e.ID, ArgumentTopics: topics, Data: payload}
	}
	return c.transact(ctx, "esstores", ds, es)
}

func (c *ContractStore) GetByKey(ctx context.Context, schemaID common.Hash, publisher common.Address, key common.Hash) ([]byte, error) {
	var out []interface{}
	start := time.Now()
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getDataByKey", [32]byte(schemaID), publisher, [32]byte(key))
	metrics.ObserveChain("getDataByKey", start, err)
	if err != nil {
		return nil, fmt.Errorf("call getDataByKey: %w", err)
	}
	data, _ := out[0].([]byte)
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

func (c *ContractStore) transact(ctx context.Context, method string, params ...interface{}) (common.Hash, error) {
	start := time.Now()
	tx, err := c.client.Send(ctx, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.Transact(opts, method, params...)
	})
	if err != nil {
		metrics.ObserveChain(method, start, err)
		return common.Hash{}, fmt.Errorf("send %s: %w", method, err)
	}
	c.log.Debug("stream tx sent", zap.String("method", method), zap.String("tx", tx.Hash().Hex()))

	_, err = c.client.Wait(ctx, tx)
	metrics.ObserveChain(method, start, err)
	return tx.Hash(), err
}
