package recordbin

// Field is one named value of a Record. Type is Any when the type should be
// inferred from the value (or from the schema) at encoding time.
type Field struct {
	Name  string
	Type  Type
	Value any
}

// Record is a document: an optional class name plus an ordered set of fields.
//
// Identity is the record's own reference when known. It is only used as the
// owner hint when a tree-backed bag needs a fresh pointer.
type Record struct {
	Class    string
	Identity RID

	fields []Field
	index  map[string]int
}

func NewRecord(class string) *Record {
	return &Record{Class: class}
}

func (r *Record) Len() int {
	return len(r.fields)
}

// Fields returns the fields in declaration order. The slice must not be
// modified.
func (r *Record) Fields() []Field {
	return r.fields
}

func (r *Record) Names() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

func (r *Record) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

func (r *Record) Get(name string) any {
	if i, ok := r.index[name]; ok {
		return r.fields[i].Value
	}
	return nil
}

func (r *Record) Lookup(name string) (Field, bool) {
	if i, ok := r.index[name]; ok {
		return r.fields[i], true
	}
	return Field{}, false
}

// Set stores the value under the given name, inferring its type when encoded.
// An existing field keeps its position.
func (r *Record) Set(name string, value any) *Record {
	return r.SetTyped(name, value, Any)
}

func (r *Record) SetTyped(name string, value any, t Type) *Record {
	if i, ok := r.index[name]; ok {
		r.fields[i] = Field{name, t, value}
		return r
	}
	if r.index == nil {
		r.index = make(map[string]int)
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, Field{name, t, value})
	return r
}

func (r *Record) Remove(name string) bool {
	i, ok := r.index[name]
	if !ok {
		return false
	}
	copy(r.fields[i:], r.fields[i+1:])
	r.fields = r.fields[:len(r.fields)-1]
	delete(r.index, name)
	for j := i; j < len(r.fields); j++ {
		r.index[r.fields[j].Name] = j
	}
	return true
}

// Clear removes all fields but keeps the class name.
func (r *Record) Clear() {
	r.fields = r.fields[:0]
	clear(r.index)
}
