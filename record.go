package cattools

import (
	"context"
	"sort"

	"go.jetify.com/typeid"
)

// NoRecord is the reserved key standing in for "no execution". Extractors
// short-circuit it to fallback values without touching the store, and it is
// the storage-key form of the fallback structure.
const NoRecord = ""

// Exit statuses with a documented meaning.
const (
	// ExitStatusOK marks a successful execution.
	ExitStatusOK = 0

	// ExitStatusSubprocessFailed is the workchain partial-failure code for
	// which the final energy can be recovered from the last called
	// calculation.
	ExitStatusSubprocessFailed = 405

	// ExitStatusStressUnparsed is the calculation exit status raised when the
	// parser cannot resolve the maximum stress. The electronic energy of such
	// a calculation is still valid.
	ExitStatusStressUnparsed = 1002
)

// Standard input and output names.
const (
	InputStructure      = "structure"
	InputParameters     = "parameters"
	OutputMisc          = "misc"
	OutputMagnetization = "site_magnetization"
)

// NewRecordKey returns a new unique key for a record imported into a store.
func NewRecordKey() string {
	id, err := typeid.WithPrefix("rec")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// ExecutionRecord is a read-only view of a completed or failed workflow
// execution. The extraction layer never mutates a record.
type ExecutionRecord struct {
	Key string
	// Ordinal is the natural creation order of the record in its store.
	Ordinal int64
	Label   string
	// NodeType is the record type, e.g. "workchain" or "calcjob".
	NodeType    string
	EngineLabel string
	ExitStatus  int
	Inputs      map[string]Blob
	Outputs     map[string]Blob
	// Called lists the keys of the sub-executions this record called, in
	// call order.
	Called []string
}

// Succeeded reports whether the execution finished with ExitStatusOK.
func (r *ExecutionRecord) Succeeded() bool {
	return r.ExitStatus == ExitStatusOK
}

// Input returns the named input blob.
func (r *ExecutionRecord) Input(name string) (Blob, bool) {
	blob, ok := r.Inputs[name]
	return blob, ok && blob != nil
}

// Output returns the named output blob.
func (r *ExecutionRecord) Output(name string) (Blob, bool) {
	blob, ok := r.Outputs[name]
	return blob, ok && blob != nil
}

// LastCalled returns the key of the last called sub-execution.
func (r *ExecutionRecord) LastCalled() (string, bool) {
	if len(r.Called) == 0 {
		return "", false
	}
	return r.Called[len(r.Called)-1], true
}

// Copy returns a shallow copy of the record. Blobs are shared since they are
// immutable once stored.
func (r *ExecutionRecord) Copy() *ExecutionRecord {
	c := *r
	c.Inputs = copyBlobs(r.Inputs)
	c.Outputs = copyBlobs(r.Outputs)
	c.Called = append([]string(nil), r.Called...)
	return &c
}

func copyBlobs(m map[string]Blob) map[string]Blob {
	out := make(map[string]Blob, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AssignBlobKeys gives every keyless blob of the record a key derived from
// the record key, port and blob name, so that a stored blob never carries
// the NoRecord sentinel. Keyed blobs are left untouched. The record must have
// a key.
func (r *ExecutionRecord) AssignBlobKeys() {
	r.Inputs = keyedBlobs(r.Key, PortInputs, r.Inputs)
	r.Outputs = keyedBlobs(r.Key, PortOutputs, r.Outputs)
}

func keyedBlobs(recordKey string, port Port, blobs map[string]Blob) map[string]Blob {
	for name, blob := range blobs {
		if blob.StableKey() != NoRecord {
			continue
		}
		key := recordKey + "/" + string(port) + "/" + name
		switch b := blob.(type) {
		case *DictBlob:
			blobs[name] = &DictBlob{Key: key, Values: b.Values}
		case *StructureData:
			keyed := *b
			keyed.Key = key
			blobs[name] = &keyed
		}
	}
	return blobs
}

// Filter selects records in a store query. Zero-valued fields match anything.
type Filter struct {
	NodeType    string
	EngineLabel string
	ExitStatus  *int
}

// WithExitStatus returns a copy of the filter restricted to one exit status.
func (f Filter) WithExitStatus(status int) Filter {
	f.ExitStatus = &status
	return f
}

// Matches reports whether the record satisfies the filter.
func (f Filter) Matches(r *ExecutionRecord) bool {
	if f.NodeType != "" && r.NodeType != f.NodeType {
		return false
	}
	if f.EngineLabel != "" && r.EngineLabel != f.EngineLabel {
		return false
	}
	if f.ExitStatus != nil && r.ExitStatus != *f.ExitStatus {
		return false
	}
	return true
}

// Member is one entry of a named collection.
type Member struct {
	Key     string
	Ordinal int64
}

// SortByOrdinal orders records by ascending creation order.
func SortByOrdinal(records []*ExecutionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Ordinal < records[j].Ordinal
	})
}

// Store is the provenance store the extraction layer reads from. It is the
// sole point of contact with where records live.
type Store interface {
	// Load resolves a key to its record. The error matches ErrNotFound when
	// the key does not resolve.
	Load(ctx context.Context, key string) (*ExecutionRecord, error)

	// Query returns the records matching the filter in ascending ordinal
	// order.
	Query(ctx context.Context, filter Filter) ([]*ExecutionRecord, error)

	// Members resolves a named collection to its members, in the order they
	// were added to the collection.
	Members(ctx context.Context, collection string) ([]Member, error)
}
