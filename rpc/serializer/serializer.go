package serializer

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dProof/rpc/common"
	"sort"
)

// IRPCSerializer turns registry messages into frames and back.
// Deserialize always starts from an empty message, so a reused *common.Message never keeps
// fields of an earlier call.
type IRPCSerializer interface {
	Serialize(msg common.Message) ([]byte, error)
	Deserialize(b []byte, msg *common.Message) error
}

// factories maps the names accepted on the command line to the serializer constructors
var factories = map[string]func() IRPCSerializer{
	"binary": NewBinarySerializer,
	"json":   NewJSONSerializer,
	"gob":    NewGOBSerializer,
}

// ByName returns a new serializer for one of Names().
// Client and server must use the same one.
func ByName(name string) (IRPCSerializer, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("invalid serializer %s", name)
	}
	return factory(), nil
}

// Names returns the sorted names accepted by ByName
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --------------------------------------------------------------------------
// JSON
// --------------------------------------------------------------------------

// NewJSONSerializer creates a serializer using json encoding, handy for debugging with plain tools
func NewJSONSerializer() IRPCSerializer {
	return jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

func (jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return json.Unmarshal(b, msg)
}

// --------------------------------------------------------------------------
// GOB
// --------------------------------------------------------------------------

// NewGOBSerializer creates a serializer using Go's gob format
func NewGOBSerializer() IRPCSerializer {
	return gobSerializerImpl{}
}

type gobSerializerImpl struct{}

func (gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize resets msg first, gob does not transmit zero values
func (gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return gob.NewDecoder(bytes.NewReader(b)).Decode(msg)
}
