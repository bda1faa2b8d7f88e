package rowscope

// Record is one materialized storage row, tagged with the source that
// produced it. The tag feeds default-value injection on create and
// relation redirection; it is otherwise inert. Records are owned by the
// caller and hold no live reference into the storage layer.
type Record struct {
	source Source
	values map[string]any
}

// NewRecord builds a record from raw field values, tagged with src.
func NewRecord(src Source, values map[string]any) Record {
	return Record{source: src, values: copyValues(values)}
}

// Source returns the entity or subtype the record was produced through.
func (r Record) Source() Source { return r.source }

// ID returns the record's primary-key value, or nil when unset.
func (r Record) ID() any {
	base, _ := r.source.baseEntity()
	return r.values[base.PrimaryKey()]
}

// Get returns a single field value.
func (r Record) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Values returns a defensive copy of the record's field values.
func (r Record) Values() map[string]any {
	return copyValues(r.values)
}

func copyValues(values map[string]any) map[string]any {
	clone := make(map[string]any, len(values))
	for k, v := range values {
		clone[k] = v
	}
	return clone
}
