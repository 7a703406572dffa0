package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// param is one input field together with what is needed to fill it.
type param struct {
	spec       ParameterSpec
	index      int
	enum       []string
	nullable   bool
	hasDefault bool
	def        reflect.Value
}

// signature is the validated call shape of an integration function:
// func([ctx][, in T]) (R, error) or func([ctx][, in T]) error.
type signature struct {
	fn        reflect.Value
	withCtx   bool
	input     reflect.Type
	params    []param
	result    reflect.Type
	hasResult bool
}

type described struct {
	sig        *signature
	spec       IntegrationSpec
	returnType string
}

// Describe builds the spec fn would be registered with, without registering
// it. The platform falls back to DefaultPlatform.
func Describe(fn any, description string, opts ...Option) (IntegrationSpec, error) {
	v, err := funcValue(fn)
	if err != nil {
		return IntegrationSpec{}, err
	}
	cfg := newRegisterConfig(opts)
	platform, name, _, err := resolveKey(v, cfg, DefaultPlatform)
	if err != nil {
		return IntegrationSpec{}, err
	}
	d, err := describe(v, name, platform, description, cfg)
	if err != nil {
		return IntegrationSpec{}, err
	}
	return d.spec.clone(), nil
}

func funcValue(fn any) (reflect.Value, error) {
	if fn == nil {
		return reflect.Value{}, fmt.Errorf("%w: nil", ErrInvalidIntegration)
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return reflect.Value{}, fmt.Errorf("%w: %T is not a function", ErrInvalidIntegration, fn)
	}
	if v.IsNil() {
		return reflect.Value{}, fmt.Errorf("%w: nil %T", ErrInvalidIntegration, fn)
	}
	return v, nil
}

func describe(fn reflect.Value, name, platform, description string, cfg registerConfig) (*described, error) {
	sig, err := analyze(fn)
	if err != nil {
		return nil, err
	}

	doc := strings.TrimSpace(cfg.doc)
	if doc == "" {
		doc = NoDocumentation
	}
	params := make([]ParameterSpec, 0, len(sig.params))
	for _, p := range sig.params {
		params = append(params, p.spec)
	}

	returnType := "none"
	if sig.hasResult {
		returnType = renderType(sig.result)
	}

	return &described{
		sig: sig,
		spec: IntegrationSpec{
			Name:        name,
			Description: strings.TrimSpace(description),
			Docstring:   doc,
			Platform:    platform,
			Parameters:  params,
		},
		returnType: returnType,
	}, nil
}

func analyze(fn reflect.Value) (*signature, error) {
	t := fn.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("%w: variadic functions are not supported", ErrInvalidIntegration)
	}
	sig := &signature{fn: fn}

	in := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		sig.withCtx = true
		in++
	}
	switch t.NumIn() - in {
	case 0:
	case 1:
		it := t.In(in)
		if it.Kind() != reflect.Struct {
			return nil, fmt.Errorf("%w: input must be a struct, got %s", ErrInvalidIntegration, it)
		}
		params, err := describeParams(it)
		if err != nil {
			return nil, err
		}
		sig.input = it
		sig.params = params
	default:
		return nil, fmt.Errorf("%w: want func([context.Context][, input struct]), got %s", ErrInvalidIntegration, t)
	}

	switch t.NumOut() {
	case 1:
		if t.Out(0) != errorType {
			return nil, fmt.Errorf("%w: single return value must be error, got %s", ErrInvalidIntegration, t.Out(0))
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("%w: last return value must be error, got %s", ErrInvalidIntegration, t.Out(1))
		}
		sig.result = t.Out(0)
		sig.hasResult = true
	default:
		return nil, fmt.Errorf("%w: want (result, error) or error returns, got %s", ErrInvalidIntegration, t)
	}
	return sig, nil
}

func describeParams(t reflect.Type) ([]param, error) {
	params := make([]param, 0, t.NumField())
	seen := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, skip := paramName(f)
		if skip {
			continue
		}
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: parameter %q declared by both %s and %s", ErrUnsupportedSignature, name, prev, f.Name)
		}
		seen[name] = f.Name

		enum, err := parseEnum(f.Tag)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q: %w", ErrUnsupportedSignature, name, err)
		}
		desc, err := descriptor(f.Type, enum)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}

		p := param{
			spec:     ParameterSpec{Name: name, Type: desc, Required: true},
			index:    i,
			enum:     enum,
			nullable: f.Type.Kind() == reflect.Pointer || f.Type.Kind() == reflect.Interface,
		}
		if raw, ok := f.Tag.Lookup("default"); ok {
			def, err := parseDefault(raw, f.Type, enum)
			if err != nil {
				return nil, fmt.Errorf("%w: parameter %q: default %q: %w", ErrUnsupportedSignature, name, raw, err)
			}
			p.hasDefault = true
			p.def = def
			p.spec.Required = false
			p.spec.Default = plainValue(def)
		}
		params = append(params, p)
	}
	return params, nil
}

func paramName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, false
	}
	return SnakeCase(f.Name), false
}

func parseEnum(tag reflect.StructTag) ([]string, error) {
	raw, ok := tag.Lookup("enum")
	if !ok {
		return nil, nil
	}
	var values []string
	for _, v := range strings.Split(raw, ",") {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(values, v) {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("enum tag lists no values")
	}
	return values, nil
}

// descriptor renders t in the closed type grammar: str, bool, int, float,
// enum[...], optional[...] and any.
func descriptor(t reflect.Type, enum []string) (string, error) {
	switch t.Kind() {
	case reflect.Pointer:
		inner, err := primitive(t.Elem(), enum)
		if err != nil {
			return "", err
		}
		return "optional[" + inner + "]", nil
	case reflect.Interface:
		if t.NumMethod() == 0 && len(enum) == 0 {
			return "any", nil
		}
		return "", fmt.Errorf("%w: type %s is outside the supported grammar", ErrUnsupportedSignature, t)
	default:
		return primitive(t, enum)
	}
}

func primitive(t reflect.Type, enum []string) (string, error) {
	if len(enum) > 0 {
		if t.Kind() != reflect.String {
			return "", fmt.Errorf("%w: enum tag requires a string field, got %s", ErrUnsupportedSignature, t)
		}
		return "enum[" + strings.Join(enum, ",") + "]", nil
	}
	switch t.Kind() {
	case reflect.String:
		return "str", nil
	case reflect.Bool:
		return "bool", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int", nil
	case reflect.Float32, reflect.Float64:
		return "float", nil
	}
	return "", fmt.Errorf("%w: type %s is outside the supported grammar", ErrUnsupportedSignature, t)
}

// renderType describes a return type, falling back to the Go type name.
func renderType(t reflect.Type) string {
	if desc, err := descriptor(t, nil); err == nil {
		return desc
	}
	return t.String()
}

// parseDefault parses a default tag into a value assignable to t.
// "null" is only accepted for optional and any fields.
func parseDefault(raw string, t reflect.Type, enum []string) (reflect.Value, error) {
	if raw == "null" {
		if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("null is only valid for optional or any parameters")
	}

	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Pointer:
		elem, err := parseDefault(raw, t.Elem(), enum)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(elem)
		return p, nil
	case reflect.Interface:
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			decoded = raw
		}
		if decoded != nil {
			v.Set(reflect.ValueOf(decoded))
		}
	case reflect.String:
		if len(enum) > 0 && !slices.Contains(enum, raw) {
			return reflect.Value{}, fmt.Errorf("not one of %s", strings.Join(enum, ", "))
		}
		v.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetFloat(f)
	default:
		return reflect.Value{}, fmt.Errorf("unsupported type %s", t)
	}
	return v, nil
}

// plainValue unwraps pointers and interfaces for display in a ParameterSpec.
func plainValue(v reflect.Value) any {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}
