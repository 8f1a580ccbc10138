package storage

import (
	"fmt"
	"time"

	"github.com/bobboyms/dbcore/pkg/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// walKeyEnvelope is the BSON shape used to carry a typed index key inside a
// WAL entry. Only one of the value fields is set, selected by Kind.
type walKeyEnvelope struct {
	Kind  string `bson:"k"`
	Int   int64  `bson:"i,omitempty"`
	Str   string `bson:"s,omitempty"`
	Bool  bool   `bson:"b,omitempty"`
	Float float64 `bson:"f,omitempty"`
	Nanos int64   `bson:"d,omitempty"`
}

func encodeKey(key types.Comparable) (walKeyEnvelope, error) {
	switch k := key.(type) {
	case types.IntKey:
		return walKeyEnvelope{Kind: "int", Int: int64(k)}, nil
	case types.VarcharKey:
		return walKeyEnvelope{Kind: "varchar", Str: string(k)}, nil
	case types.BoolKey:
		return walKeyEnvelope{Kind: "bool", Bool: bool(k)}, nil
	case types.FloatKey:
		return walKeyEnvelope{Kind: "float", Float: float64(k)}, nil
	case types.DateKey:
		return walKeyEnvelope{Kind: "date", Nanos: time.Time(k).UnixNano()}, nil
	default:
		return walKeyEnvelope{}, fmt.Errorf("unsupported key type: %T", k)
	}
}

func decodeKey(env walKeyEnvelope) (types.Comparable, error) {
	switch env.Kind {
	case "int":
		return types.IntKey(env.Int), nil
	case "varchar":
		return types.VarcharKey(env.Str), nil
	case "bool":
		return types.BoolKey(env.Bool), nil
	case "float":
		return types.FloatKey(env.Float), nil
	case "date":
		return types.DateKey(time.Unix(0, env.Nanos)), nil
	default:
		return nil, fmt.Errorf("unsupported key kind in wal envelope: %q", env.Kind)
	}
}

// documentEntry is the BSON envelope wrapping a single-index WAL write.
type documentEntry struct {
	TableName string         `bson:"table"`
	IndexName string         `bson:"index"`
	Key       walKeyEnvelope `bson:"key"`
	Document  []byte         `bson:"doc,omitempty"`
}

// SerializeDocumentEntry serializes a single-index WAL entry using BSON,
// the same encoding used for row documents.
func SerializeDocumentEntry(tableName, indexName string, key types.Comparable, document []byte) ([]byte, error) {
	keyEnv, err := encodeKey(key)
	if err != nil {
		return nil, err
	}
	return bson.Marshal(documentEntry{
		TableName: tableName,
		IndexName: indexName,
		Key:       keyEnv,
		Document:  document,
	})
}

// DeserializeDocumentEntry reverses SerializeDocumentEntry.
func DeserializeDocumentEntry(data []byte) (tableName, indexName string, key types.Comparable, document []byte, err error) {
	var entry documentEntry
	if err = bson.Unmarshal(data, &entry); err != nil {
		return
	}
	tableName = entry.TableName
	indexName = entry.IndexName
	document = entry.Document
	key, err = decodeKey(entry.Key)
	return
}

// multiIndexEntry is the BSON envelope wrapping a multi-index WAL write
// (one heap write shared by several index trees).
type multiIndexEntry struct {
	TableName string                    `bson:"table"`
	Keys      map[string]walKeyEnvelope `bson:"keys"`
	Document  []byte                    `bson:"doc,omitempty"`
}

// SerializeMultiIndexEntry serializes a multi-index WAL entry (InsertRow).
func SerializeMultiIndexEntry(tableName string, keys map[string]types.Comparable, document []byte) ([]byte, error) {
	encoded := make(map[string]walKeyEnvelope, len(keys))
	for name, key := range keys {
		env, err := encodeKey(key)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", name, err)
		}
		encoded[name] = env
	}
	return bson.Marshal(multiIndexEntry{
		TableName: tableName,
		Keys:      encoded,
		Document:  document,
	})
}

// DeserializeMultiIndexEntry reverses SerializeMultiIndexEntry.
func DeserializeMultiIndexEntry(data []byte) (tableName string, keys map[string]types.Comparable, document []byte, err error) {
	var entry multiIndexEntry
	if err = bson.Unmarshal(data, &entry); err != nil {
		return
	}
	tableName = entry.TableName
	document = entry.Document
	keys = make(map[string]types.Comparable, len(entry.Keys))
	for name, env := range entry.Keys {
		k, decErr := decodeKey(env)
		if decErr != nil {
			err = fmt.Errorf("index %s: %w", name, decErr)
			return
		}
		keys[name] = k
	}
	return
}
