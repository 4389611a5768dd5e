package storage

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// FakeStore is an in-memory Store used by scheduler/worker/controlapi
// tests in place of a live MongoDB connection. It understands enough
// of the filter/patch vocabulary this codebase actually issues:
// equality, $ne, $in, and $lt/$lte/$gt/$gte comparisons on comparable
// fields addressed by bson tag name.
type FakeStore struct {
	mu   sync.Mutex
	docs map[string][]any // collection -> slice of struct values (not pointers)
}

// NewFakeStore returns an empty in-memory store.
func NewFakeStore() *FakeStore {
	return &FakeStore{docs: make(map[string][]any)}
}

func (s *FakeStore) InsertOne(ctx context.Context, collection string, doc any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[collection] = append(s.docs[collection], dereference(doc))
	return nil
}

func (s *FakeStore) InsertMany(ctx context.Context, collection string, docs []any) error {
	for _, d := range docs {
		if err := s.InsertOne(ctx, collection, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *FakeStore) FindOne(ctx context.Context, collection string, filter Filter, projection Projection, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.docs[collection] {
		if matches(d, filter) {
			return assign(d, out)
		}
	}
	return mongo.ErrNoDocuments
}

func (s *FakeStore) FindAll(ctx context.Context, collection string, filter Filter, out any) error {
	s.mu.Lock()
	var matched []any
	for _, d := range s.docs[collection] {
		if matches(d, filter) {
			matched = append(matched, d)
		}
	}
	s.mu.Unlock()

	return assignSlice(matched, out)
}

type fakeCursor struct {
	docs []any
	pos  int
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	c.pos++
	return c.pos <= len(c.docs)
}

func (c *fakeCursor) Decode(v any) error {
	if c.pos < 1 || c.pos > len(c.docs) {
		return fmt.Errorf("fake cursor: decode called out of range")
	}
	return assign(c.docs[c.pos-1], v)
}

func (c *fakeCursor) Close(ctx context.Context) error { return nil }
func (c *fakeCursor) Err() error                      { return nil }

func (s *FakeStore) FindCursor(ctx context.Context, collection string, filter Filter) (Cursor, error) {
	s.mu.Lock()
	var matched []any
	for _, d := range s.docs[collection] {
		if matches(d, filter) {
			matched = append(matched, d)
		}
	}
	s.mu.Unlock()
	return &fakeCursor{docs: matched}, nil
}

func (s *FakeStore) UpdateOne(ctx context.Context, collection string, filter Filter, patch Patch, upsert bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, d := range s.docs[collection] {
		if matches(d, filter) {
			s.docs[collection][i] = applyPatch(d, patch)
			return nil
		}
	}

	if upsert {
		// Best-effort upsert: apply the patch's $set fields onto a zero
		// value of whatever type the collection already holds, or onto
		// a bare map if the collection is empty.
		var base any = map[string]any{}
		if existing := s.docs[collection]; len(existing) > 0 {
			base = reflect.New(reflect.TypeOf(existing[0])).Elem().Interface()
		}
		s.docs[collection] = append(s.docs[collection], applyPatch(base, patch))
	}
	return nil
}

func (s *FakeStore) UpdateMany(ctx context.Context, collection string, filter Filter, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, d := range s.docs[collection] {
		if matches(d, filter) {
			s.docs[collection][i] = applyPatch(d, patch)
		}
	}
	return nil
}

func (s *FakeStore) DeleteOne(ctx context.Context, collection string, filter Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, d := range s.docs[collection] {
		if matches(d, filter) {
			s.docs[collection] = append(s.docs[collection][:i], s.docs[collection][i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *FakeStore) DeleteMany(ctx context.Context, collection string, filter Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.docs[collection][:0]
	for _, d := range s.docs[collection] {
		if !matches(d, filter) {
			kept = append(kept, d)
		}
	}
	s.docs[collection] = kept
	return nil
}

func (s *FakeStore) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, d := range s.docs[collection] {
		if matches(d, filter) {
			n++
		}
	}
	return n, nil
}

func (s *FakeStore) Close(ctx context.Context) error { return nil }

// Reset clears all collections; useful between test cases.
func (s *FakeStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string][]any)
}

func dereference(doc any) any {
	v := reflect.ValueOf(doc)
	if v.Kind() == reflect.Ptr {
		return v.Elem().Interface()
	}
	return doc
}

func assign(src, dst any) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr {
		return fmt.Errorf("fake store: decode target must be a pointer")
	}
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dv.Elem().Type()) {
		dv.Elem().Set(sv)
		return nil
	}
	return fmt.Errorf("fake store: cannot decode %s into %s", sv.Type(), dv.Elem().Type())
}

func assignSlice(docs []any, dst any) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("fake store: FindAll target must be a pointer to a slice")
	}

	elemType := dv.Elem().Type().Elem()
	out := reflect.MakeSlice(dv.Elem().Type(), 0, len(docs))
	for _, d := range docs {
		sv := reflect.ValueOf(d)
		if !sv.Type().AssignableTo(elemType) {
			return fmt.Errorf("fake store: cannot decode %s into slice of %s", sv.Type(), elemType)
		}
		out = reflect.Append(out, sv)
	}
	dv.Elem().Set(out)
	return nil
}

func fieldByTag(v reflect.Value, tag string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		bsonTag := strings.Split(f.Tag.Get("bson"), ",")[0]
		if bsonTag == tag {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func matches(doc any, filter Filter) bool {
	if len(filter) == 0 {
		return true
	}

	v := reflect.ValueOf(doc)
	for key, want := range filter {
		field, ok := fieldByTag(v, key)
		if !ok {
			return false
		}
		if !matchesField(field, want) {
			return false
		}
	}
	return true
}

func matchesField(field reflect.Value, want any) bool {
	field = dereferenceField(field)

	if ops, ok := want.(map[string]any); ok {
		for op, val := range ops {
			if !applyOperator(field, op, val) {
				return false
			}
		}
		return true
	}
	return compareEqual(field, want)
}

// dereferenceField unwraps a pointer field (e.g. JobRecord.Result
// *bool) to the value it points to, so filters can compare against a
// plain value the way they would against a real Mongo document where
// the pointer field was marshaled to its underlying type. It runs
// before every comparison. A nil pointer dereferences to the zero value
// of its element type, so every operator compares against that zero
// value: a nil Result matches a filter on false, and an equality filter
// whose want is nil matches no document.
func dereferenceField(field reflect.Value) reflect.Value {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return reflect.Zero(field.Type().Elem())
		}
		return field.Elem()
	}
	return field
}

func applyOperator(field reflect.Value, op string, val any) bool {
	switch op {
	case "$ne":
		return !compareEqual(field, val)
	case "$in":
		rv := reflect.ValueOf(val)
		for i := 0; i < rv.Len(); i++ {
			if compareEqual(field, rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	case "$lt", "$lte", "$gt", "$gte":
		c, ok := compareOrdered(field, val)
		if !ok {
			return false
		}
		switch op {
		case "$lt":
			return c < 0
		case "$lte":
			return c <= 0
		case "$gt":
			return c > 0
		default:
			return c >= 0
		}
	default:
		return false
	}
}

func compareEqual(field reflect.Value, want any) bool {
	if at, ok := field.Interface().(time.Time); ok {
		if bt, ok := want.(time.Time); ok {
			return at.Equal(bt)
		}
	}

	wv := reflect.ValueOf(want)
	if wv.IsValid() && wv.Type().ConvertibleTo(field.Type()) && sameKindFamily(field.Kind(), wv.Kind()) {
		return reflect.DeepEqual(field.Interface(), wv.Convert(field.Type()).Interface())
	}

	return reflect.DeepEqual(field.Interface(), want)
}

// sameKindFamily guards ConvertibleTo (which is very permissive, e.g.
// numeric<->string) down to conversions between a named type and its
// underlying kind, such as JobState <-> string or JobKind <-> string.
func sameKindFamily(a, b reflect.Kind) bool {
	if a == b {
		return true
	}
	isString := func(k reflect.Kind) bool { return k == reflect.String }
	isInt := func(k reflect.Kind) bool {
		return k >= reflect.Int && k <= reflect.Int64
	}
	return (isString(a) && isString(b)) || (isInt(a) && isInt(b))
}

// compareOrdered compares fields that support ordering: time.Time and
// integer kinds. Returns ok=false if the types aren't comparable this way.
func compareOrdered(field reflect.Value, want any) (int, bool) {
	if at, ok := field.Interface().(time.Time); ok {
		if bt, ok := want.(time.Time); ok {
			switch {
			case at.Before(bt):
				return -1, true
			case at.After(bt):
				return 1, true
			default:
				return 0, true
			}
		}
	}

	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		a := field.Int()
		b := reflect.ValueOf(want)
		if b.Kind() >= reflect.Int && b.Kind() <= reflect.Int64 {
			bv := b.Int()
			switch {
			case a < bv:
				return -1, true
			case a > bv:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return 0, false
}

func applyPatch(doc any, patch Patch) any {
	set, ok := patch["$set"].(Patch)
	if !ok {
		if m, ok2 := patch["$set"].(map[string]any); ok2 {
			set = Patch(m)
		}
	}
	if set == nil {
		return doc
	}

	v := reflect.ValueOf(doc)
	if v.Kind() == reflect.Map {
		// upsert onto a bare map: not used by current callers, kept simple
		m := map[string]any{}
		for k, val := range set {
			m[k] = val
		}
		return m
	}

	nv := reflect.New(v.Type()).Elem()
	nv.Set(v)

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		field, ok := fieldByTag(nv, k)
		if !ok || !field.CanSet() {
			continue
		}
		setFieldValue(field, set[k])
	}

	return nv.Interface()
}

func setFieldValue(field reflect.Value, val any) {
	if val == nil {
		field.Set(reflect.Zero(field.Type()))
		return
	}

	rv := reflect.ValueOf(val)
	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return
	}
	if rv.Type().ConvertibleTo(field.Type()) {
		field.Set(rv.Convert(field.Type()))
		return
	}
	// pointer field, non-pointer value (e.g. *bool field, bool value)
	if field.Kind() == reflect.Ptr && rv.Type().AssignableTo(field.Type().Elem()) {
		p := reflect.New(field.Type().Elem())
		p.Elem().Set(rv)
		field.Set(p)
	}
}
