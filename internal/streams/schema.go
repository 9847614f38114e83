package streams

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Schema is a parsed data schema such as
// "uint64 timestamp, uint256 poolId, bool ended". Records are the ABI
// encoding of the fields in declaration order.
type Schema struct {
	Name string
	Def  string
	args abi.Arguments
}

func ParseSchema(name, def string) (*Schema, error) {
	var args abi.Arguments
	for _, part := range strings.Split(def, ",") {
		fields := strings.Fields(part)
		if len(fields) != 2 {
			return nil, fmt.Errorf("schema %s: malformed field %q", name, strings.TrimSpace(part))
		}
		if err := checkWidth(fields[0]); err != nil {
			return nil, fmt.Errorf("schema %s: field %s: %w", name, fields[1], err)
		}
		typ, err := abi.NewType(fields[0], "", nil)
		if err != nil {
			return nil, fmt.Errorf("schema %s: field %s: %w", name, fields[1], err)
		}
		args = append(args, abi.Argument{Name: fields[1], Type: typ})
	}
	return &Schema{Name: name, Def: def, args: args}, nil
}

// checkWidth rejects sized types the ABI does not define, which
// abi.NewType lets through: intN/uintN need N in 8..256 and a multiple of
// 8, bytesN needs N in 1..32.
func checkWidth(typ string) error {
	base := strings.TrimRight(strings.SplitN(typ, "[", 2)[0], " ")
	var prefix string
	for _, p := range []string{"uint", "int", "bytes"} {
		if strings.HasPrefix(base, p) {
			prefix = p
			break
		}
	}
	if prefix == "" || base == prefix {
		return nil
	}
	n, err := strconv.Atoi(base[len(prefix):])
	if err != nil {
		return fmt.Errorf("invalid type %q", typ)
	}
	if prefix == "bytes" {
		if n < 1 || n > 32 {
			return fmt.Errorf("invalid type %q: bytes size must be 1..32", typ)
		}
		return nil
	}
	if n < 8 || n > 256 || n%8 != 0 {
		return fmt.Errorf("invalid type %q: %s size must be a multiple of 8 in 8..256", typ, prefix)
	}
	return nil
}

func MustParseSchema(name, def string) *Schema {
	s, err := ParseSchema(name, def)
	if err != nil {
		panic(err)
	}
	return s
}

// ID is the schema id the streams protocol derives from the definition.
func (s *Schema) ID() common.Hash {
	return ComputeSchemaID(s.Def)
}

func (s *Schema) Fields() []string {
	names := make([]string, len(s.args))
	for i, a := range s.args {
		names[i] = a.Name
	}
	return names
}

// Encode packs values in field order.
func (s *Schema) Encode(values ...interface{}) ([]byte, error) {
	if len(values) != len(s.args) {
		return nil, fmt.Errorf("schema %s: %d values for %d fields", s.Name, len(values), len(s.args))
	}
	data, err := s.args.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("schema %s: encode: %w", s.Name, err)
	}
	return data, nil
}

// DecodeInto unpacks data into a struct whose fields carry `abi` tags
// matching the schema field names.
func (s *Schema) DecodeInto(v interface{}, data []byte) error {
	values, err := s.args.Unpack(data)
	if err != nil {
		return fmt.Errorf("schema %s: decode: %w", s.Name, err)
	}
	if err := s.args.Copy(v, values); err != nil {
		return fmt.Errorf("schema %s: copy: %w", s.Name, err)
	}
	return nil
}

func ComputeSchemaID(def string) common.Hash {
	return crypto.Keccak256Hash([]byte(def))
}
