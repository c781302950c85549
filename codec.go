package cattools

import (
	"encoding/json"
	"fmt"
)

// Blob type tags used in the record document format.
const (
	BlobTypeDict      = "dict"
	BlobTypeStructure = "structure"
)

// recordDocument is the JSON form of an ExecutionRecord shared by the file
// and SQL stores.
type recordDocument struct {
	Key         string                  `json:"key"`
	Ordinal     int64                   `json:"ordinal"`
	Label       string                  `json:"label,omitempty"`
	NodeType    string                  `json:"node_type"`
	EngineLabel string                  `json:"engine_label"`
	ExitStatus  int                     `json:"exit_status"`
	Inputs      map[string]blobDocument `json:"inputs"`
	Outputs     map[string]blobDocument `json:"outputs"`
	Called      []string                `json:"called,omitempty"`
}

type blobDocument struct {
	Type  string          `json:"type"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// EncodeRecord returns the JSON document form of a record.
func EncodeRecord(r *ExecutionRecord) ([]byte, error) {
	doc := recordDocument{
		Key:         r.Key,
		Ordinal:     r.Ordinal,
		Label:       r.Label,
		NodeType:    r.NodeType,
		EngineLabel: r.EngineLabel,
		ExitStatus:  r.ExitStatus,
		Called:      r.Called,
	}
	var err error
	if doc.Inputs, err = encodeBlobs(r.Inputs); err != nil {
		return nil, fmt.Errorf("record %s inputs: %w", r.Key, err)
	}
	if doc.Outputs, err = encodeBlobs(r.Outputs); err != nil {
		return nil, fmt.Errorf("record %s outputs: %w", r.Key, err)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeRecord parses a JSON record document.
func DecodeRecord(data []byte) (*ExecutionRecord, error) {
	var doc recordDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	r := &ExecutionRecord{
		Key:         doc.Key,
		Ordinal:     doc.Ordinal,
		Label:       doc.Label,
		NodeType:    doc.NodeType,
		EngineLabel: doc.EngineLabel,
		ExitStatus:  doc.ExitStatus,
		Called:      doc.Called,
	}
	var err error
	if r.Inputs, err = decodeBlobs(doc.Inputs); err != nil {
		return nil, fmt.Errorf("record %s inputs: %w", doc.Key, err)
	}
	if r.Outputs, err = decodeBlobs(doc.Outputs); err != nil {
		return nil, fmt.Errorf("record %s outputs: %w", doc.Key, err)
	}
	return r, nil
}

func encodeBlobs(blobs map[string]Blob) (map[string]blobDocument, error) {
	docs := make(map[string]blobDocument, len(blobs))
	for name, blob := range blobs {
		var (
			doc blobDocument
			err error
		)
		switch b := blob.(type) {
		case *DictBlob:
			doc = blobDocument{Type: BlobTypeDict, Key: b.Key}
			doc.Value, err = json.Marshal(b.Values)
		case *StructureData:
			doc = blobDocument{Type: BlobTypeStructure, Key: b.Key}
			doc.Value, err = json.Marshal(b)
		default:
			return nil, fmt.Errorf("%s: unsupported blob type %T", name, blob)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		docs[name] = doc
	}
	return docs, nil
}

func decodeBlobs(docs map[string]blobDocument) (map[string]Blob, error) {
	blobs := make(map[string]Blob, len(docs))
	for name, doc := range docs {
		switch doc.Type {
		case BlobTypeDict:
			var values map[string]any
			if err := json.Unmarshal(doc.Value, &values); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			blobs[name] = &DictBlob{Key: doc.Key, Values: values}
		case BlobTypeStructure:
			var data StructureData
			if err := json.Unmarshal(doc.Value, &data); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			data.Key = doc.Key
			blobs[name] = &data
		default:
			return nil, fmt.Errorf("%s: unknown blob type %q", name, doc.Type)
		}
	}
	return blobs, nil
}
