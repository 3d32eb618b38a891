package recordbin

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// CustomCodec encodes values of one Go type as an opaque payload for the
// CUSTOM logical type.
type CustomCodec struct {
	Name   string
	GoType reflect.Type
	Encode func(v any) ([]byte, error)
	Decode func(data []byte) (any, error)

	// FromRecord, when set, reconstructs a DocumentSerializable value stored
	// as an embedded record.
	FromRecord func(rec *Record) (any, error)
}

// CustomRegistry maps stable type names to codecs. Register codecs at process
// start; lookups are safe for concurrent use.
type CustomRegistry struct {
	mu     sync.RWMutex
	byName map[string]*CustomCodec
	byType map[reflect.Type]*CustomCodec
}

func NewCustomRegistry() *CustomRegistry {
	return &CustomRegistry{
		byName: make(map[string]*CustomCodec),
		byType: make(map[reflect.Type]*CustomCodec),
	}
}

func (r *CustomRegistry) Register(c *CustomCodec) {
	if c.Name == "" {
		panic("custom codec without a name")
	}
	if c.GoType == nil {
		panic(fmt.Sprintf("custom codec %q without a Go type", c.Name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[c.Name]; ok {
		panic(fmt.Sprintf("custom codec %q registered twice", c.Name))
	}
	r.byName[c.Name] = c
	r.byType[c.GoType] = c
}

func (r *CustomRegistry) ByName(name string) (*CustomCodec, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

func (r *CustomRegistry) ForValue(v any) (*CustomCodec, bool) {
	if r == nil || v == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byType[reflect.TypeOf(v)]
	return c, ok
}

// RegisterMsgpack registers T as a custom type whose payload is the msgpack
// encoding of the value.
func RegisterMsgpack[T any](r *CustomRegistry, name string) {
	r.Register(&CustomCodec{
		Name:   name,
		GoType: reflect.TypeFor[T](),
		Encode: func(v any) ([]byte, error) {
			return msgpack.Marshal(v)
		},
		Decode: func(data []byte) (any, error) {
			var v T
			if err := msgpack.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	})
}

// RegisterDocument registers T as a DocumentSerializable type reconstructed
// from its embedded record by fromRecord.
func RegisterDocument[T DocumentSerializable](r *CustomRegistry, name string, fromRecord func(rec *Record) (T, error)) {
	r.Register(&CustomCodec{
		Name:   name,
		GoType: reflect.TypeFor[T](),
		FromRecord: func(rec *Record) (any, error) {
			return fromRecord(rec)
		},
	})
}
