package processor

import (
	"fmt"
	"go/ast"
	"go/token"
	"reflect"

	"github.com/example/entitybug"
)

// AnnotationType identifies an annotation type by package and name.
type AnnotationType struct {
	PackagePath string
	Name        string
}

func (t AnnotationType) String() string {
	return t.PackagePath + "." + t.Name
}

// AnnotationMirror is a representation of an annotation in source. It carries
// the annotation's type and its value, along with the position of the
// annotation so that problems can be reported usefully.
type AnnotationMirror struct {
	Type  AnnotationType
	Value AnnotationValue
	Pos   token.Position

	rtype reflect.Type
}

// Reify stores the annotation's value into target, which must be a pointer to
// the annotation's Go type (e.g. *entitybug.GenerateEntity).
func (m AnnotationMirror) Reify(target interface{}) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer, got %T", target)
	}
	if rv.Elem().Type() != m.rtype {
		return fmt.Errorf("cannot reify @%s into %v", m.Type.Name, rv.Elem().Type())
	}
	v, err := m.reified()
	if err != nil {
		return err
	}
	rv.Elem().Set(v)
	return nil
}

func (m AnnotationMirror) reified() (reflect.Value, error) {
	v := reflect.New(m.rtype).Elem()
	if err := m.Value.reify(v, m.Type.Name); err != nil {
		return reflect.Value{}, err
	}
	return v, nil
}

// Fields returns the values written in the annotation, by field name. A lone
// value, and the value of an annotation whose type is not a struct, is named
// "Value". Positional elements of a struct value are named after the fields
// they set. Fields that were not written are absent.
func (m AnnotationMirror) Fields() map[string]AnnotationValue {
	res := map[string]AnnotationValue{}
	switch {
	case m.Value.Kind == KindNone:
	case m.Value.Kind != KindAggregate || m.rtype == nil || m.rtype.Kind() != reflect.Struct:
		res["Value"] = m.Value
	default:
		for i, e := range m.Value.elements {
			name := e.Name
			if name == "" && e.Key == nil && i < m.rtype.NumField() {
				name = m.rtype.Field(i).Name
			}
			if name != "" {
				res[name] = e.Value
			}
		}
	}
	return res
}

// ValueKind is the kind of an annotation value.
type ValueKind int

const (
	// KindNone indicates that the annotation had no value at all, as in
	// "@entitybug.Foo".
	KindNone ValueKind = iota
	// KindNil is the literal nil.
	KindNil
	KindBool
	KindInt
	KindFloat
	KindString
	// KindAggregate is a brace-enclosed value: a struct, slice or map.
	KindAggregate
)

func (k ValueKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindAggregate:
		return "aggregate"
	default:
		return fmt.Sprintf("?%d?", int(k))
	}
}

// AnnotationEntry is an element of an aggregate annotation value. When the
// element's key is a bare identifier (as for struct fields), Name holds it.
// Other keys are in Key. Elements without keys have neither.
type AnnotationEntry struct {
	Name  string
	Key   *AnnotationValue
	Value AnnotationValue
}

// AnnotationValue is the value of an annotation, or one component of it.
type AnnotationValue struct {
	Kind ValueKind
	Pos  token.Position

	val      interface{}
	elements []AnnotationEntry
}

// AsBool returns the value as a bool. It panics if the kind is not KindBool.
func (v *AnnotationValue) AsBool() bool {
	v.mustBe(KindBool)
	return v.val.(bool)
}

// AsInt returns the value as an int64. It panics if the kind is not KindInt.
func (v *AnnotationValue) AsInt() int64 {
	v.mustBe(KindInt)
	return v.val.(int64)
}

// AsFloat returns the value as a float64. Int values are converted. It panics
// for other kinds.
func (v *AnnotationValue) AsFloat() float64 {
	if v.Kind == KindInt {
		return float64(v.val.(int64))
	}
	v.mustBe(KindFloat)
	return v.val.(float64)
}

// AsString returns the value as a string. It panics if the kind is not
// KindString.
func (v *AnnotationValue) AsString() string {
	v.mustBe(KindString)
	return v.val.(string)
}

// AsElements returns the elements of an aggregate. It panics if the kind is not
// KindAggregate.
func (v *AnnotationValue) AsElements() []AnnotationEntry {
	v.mustBe(KindAggregate)
	return v.elements
}

func (v *AnnotationValue) mustBe(k ValueKind) {
	if v.Kind != k {
		panic(fmt.Sprintf("value is %v, not %v", v.Kind, k))
	}
}

func (v *AnnotationValue) errorf(format string, args ...interface{}) error {
	return NewErrorWithPosition(v.Pos, fmt.Errorf(format, args...))
}

func (v *AnnotationValue) reify(target reflect.Value, annoName string) error {
	switch target.Kind() {
	case reflect.Struct:
		return v.reifyStruct(target, annoName)

	case reflect.String:
		if v.Kind != KindString {
			return v.errorf("@%s requires a string value, got %v", annoName, v.Kind)
		}
		target.SetString(v.AsString())

	case reflect.Bool:
		switch v.Kind {
		case KindNone:
			target.SetBool(true)
		case KindBool:
			target.SetBool(v.AsBool())
		default:
			return v.errorf("@%s requires a bool value, got %v", annoName, v.Kind)
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.Kind != KindInt {
			return v.errorf("@%s requires an int value, got %v", annoName, v.Kind)
		}
		i := v.AsInt()
		if target.OverflowInt(i) {
			return v.errorf("value %d overflows %v", i, target.Type())
		}
		target.SetInt(i)

	case reflect.Float32, reflect.Float64:
		if v.Kind != KindInt && v.Kind != KindFloat {
			return v.errorf("@%s requires a numeric value, got %v", annoName, v.Kind)
		}
		target.SetFloat(v.AsFloat())

	case reflect.Slice:
		switch v.Kind {
		case KindNil:
			target.Set(reflect.Zero(target.Type()))
		case KindAggregate:
			elems := v.AsElements()
			sl := reflect.MakeSlice(target.Type(), len(elems), len(elems))
			for i := range elems {
				if elems[i].Name != "" || elems[i].Key != nil {
					return elems[i].Value.errorf("slice elements may not have keys")
				}
				if err := elems[i].Value.reify(sl.Index(i), annoName); err != nil {
					return err
				}
			}
			target.Set(sl)
		default:
			return v.errorf("@%s requires a slice value, got %v", annoName, v.Kind)
		}

	default:
		return v.errorf("annotation values of type %v are not supported", target.Type())
	}
	return nil
}

func (v *AnnotationValue) reifyStruct(target reflect.Value, annoName string) error {
	t := target.Type()
	set := map[int]bool{}

	switch v.Kind {
	case KindNone:
		// all fields take their zero values

	case KindAggregate:
		elems := v.AsElements()
		keyed := len(elems) > 0 && elems[0].Name != ""
		if !keyed && len(elems) > t.NumField() {
			return v.errorf("too many values for @%s: %d > %d", annoName, len(elems), t.NumField())
		}
		for i := range elems {
			e := &elems[i]
			if e.Key != nil {
				return e.Key.errorf("struct field names must be identifiers")
			}
			if (e.Name != "") != keyed {
				return e.Value.errorf("mixture of field:value and value elements in @%s", annoName)
			}
			idx := i
			if keyed {
				f, ok := t.FieldByName(e.Name)
				if !ok || len(f.Index) != 1 {
					return e.Value.errorf("@%s has no field named %s", annoName, e.Name)
				}
				idx = f.Index[0]
				if set[idx] {
					return e.Value.errorf("duplicate field %s in @%s", e.Name, annoName)
				}
			}
			if err := e.Value.reify(target.Field(idx), annoName); err != nil {
				return err
			}
			set[idx] = true
		}

	default:
		// a lone scalar sets the field named Value
		f, ok := t.FieldByName("Value")
		if !ok || len(f.Index) != 1 {
			return v.errorf("@%s requires a struct value", annoName)
		}
		if err := v.reify(target.Field(f.Index[0]), annoName); err != nil {
			return err
		}
		set[f.Index[0]] = true
	}

	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("annotation") != "required" {
			continue
		}
		if !set[i] || target.Field(i).IsZero() {
			return v.errorf("@%s requires a value for field %s", annoName, t.Field(i).Name)
		}
	}
	return nil
}

// AnnotatedElement is a top-level element in Go source that has annotations.
type AnnotatedElement struct {
	Context *Context
	// Ident is the element's name in the declaring file.
	Ident *ast.Ident
	// File is the file that declares the element.
	File *ast.File
	// Node is the element's declaration: an *ast.TypeSpec, *ast.ValueSpec or
	// *ast.FuncDecl.
	Node            ast.Node
	ApplicableTypes []entitybug.ElementType
	// Annotations holds the element's annotations, grouped by type.
	Annotations []AnnotationMirror
}

// IsElementType returns true if the element is of the given type.
func (e *AnnotatedElement) IsElementType(et entitybug.ElementType) bool {
	for _, t := range e.ApplicableTypes {
		if t == et {
			return true
		}
	}
	return false
}

// QualifiedName returns the package path and name of the element, joined by
// a dot.
func (e *AnnotatedElement) QualifiedName() string {
	return e.Context.Package.PkgPath + "." + e.Ident.Name
}

// Pos returns the position of the element's name.
func (e *AnnotatedElement) Pos() token.Position {
	return e.Context.Fset.Position(e.Ident.Pos())
}

// GetDeclaringFilename returns the name of the file that declares the element.
func (e *AnnotatedElement) GetDeclaringFilename() string {
	return e.Context.Fset.File(e.File.Pos()).Name()
}

// FindAnnotations returns the element's annotations of the given type.
func (e *AnnotatedElement) FindAnnotations(packagePath, name string) []AnnotationMirror {
	var res []AnnotationMirror
	for _, a := range e.Annotations {
		if a.Type.PackagePath == packagePath && a.Type.Name == name {
			res = append(res, a)
		}
	}
	return res
}
