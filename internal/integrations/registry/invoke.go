package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/open-sspm/intreg/internal/auth"
	"github.com/open-sspm/intreg/internal/logging"
	"github.com/open-sspm/intreg/internal/metrics"
	"github.com/open-sspm/intreg/internal/secrets"
)

const (
	statusSuccess          = "success"
	statusError            = "error"
	statusInvalidArguments = "invalid_arguments"
	statusSecretFetch      = "secret_fetch_failed"
	statusInjectFailed     = "inject_failed"
	statusPanic            = "panic"
)

// Invoke calls the integration registered under key on behalf of role.
func (r *Registry) Invoke(ctx context.Context, key string, role auth.Role, args map[string]any) (any, error) {
	it, err := r.Get(key)
	if err != nil {
		metrics.InvocationsTotal.WithLabelValues(key, "not_found").Inc()
		return nil, err
	}
	return it.Call(ctx, role, args)
}

// Call decodes args into the integration's input, fetches its secrets for
// role, and runs it with the secrets in scope. The secrets are out of scope
// again when Call returns or panics. An error from the integration itself is
// returned unchanged.
func (it *Integration) Call(ctx context.Context, role auth.Role, args map[string]any) (result any, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	r := it.registry
	role = role.Normalize()
	logger := logging.ForRole(r.logger, role).With("key", it.key, "invocation_id", uuid.NewString())

	start := time.Now()
	status := statusSuccess
	defer func() {
		if p := recover(); p != nil {
			metrics.InvocationsTotal.WithLabelValues(it.key, statusPanic).Inc()
			metrics.InvocationDuration.WithLabelValues(it.key).Observe(time.Since(start).Seconds())
			logger.Error("integration panicked", "panic", fmt.Sprint(p))
			panic(p)
		}
		metrics.InvocationsTotal.WithLabelValues(it.key, status).Inc()
		metrics.InvocationDuration.WithLabelValues(it.key).Observe(time.Since(start).Seconds())
	}()

	input, err := it.sig.decode(args)
	if err != nil {
		status = statusInvalidArguments
		return nil, fmt.Errorf("%s: %w", it.key, err)
	}
	if err := role.Validate(); err != nil {
		status = statusInvalidArguments
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidArguments, it.key, err)
	}

	var records []secrets.Record
	if len(it.meta.Secrets) > 0 {
		records, err = r.broker.Fetch(ctx, role, it.meta.Secrets)
		if err != nil {
			status = statusSecretFetch
			logger.Error("secret fetch failed", "secrets", it.meta.Secrets, "err", err)
			return nil, err
		}
	}

	logger.Debug("invoking integration")
	var called bool
	var callErr error
	err = r.injector.Scope(ctx, records, func(ctx context.Context) error {
		called = true
		result, callErr = it.sig.call(ctx, input)
		return callErr
	})
	switch {
	case callErr != nil:
		status = statusError
		logger.Error("integration failed", "err", callErr)
		return nil, callErr
	case err != nil && !called:
		status = statusInjectFailed
		logger.Error("secret injection failed", "err", err)
		return nil, err
	case err != nil:
		status = statusError
		return nil, err
	}
	logger.Debug("integration completed", "duration", time.Since(start))
	return result, nil
}

func (s *signature) call(ctx context.Context, input reflect.Value) (any, error) {
	in := make([]reflect.Value, 0, 2)
	if s.withCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	if s.input != nil {
		in = append(in, input)
	}
	out := s.fn.Call(in)

	var err error
	if errV := out[len(out)-1]; !errV.IsNil() {
		err = errV.Interface().(error)
	}
	if err != nil || !s.hasResult {
		return nil, err
	}
	return out[0].Interface(), nil
}

// decode builds the input struct from args. Absent parameters take their
// defaults; unknown, missing, mistyped and out-of-enum arguments fail with
// ErrInvalidArguments.
func (s *signature) decode(args map[string]any) (reflect.Value, error) {
	if s.input == nil {
		if len(args) > 0 {
			return reflect.Value{}, fmt.Errorf("%w: integration takes no arguments", ErrInvalidArguments)
		}
		return reflect.Value{}, nil
	}

	var unknown []string
	for name := range args {
		if !slices.ContainsFunc(s.params, func(p param) bool { return p.spec.Name == name }) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return reflect.Value{}, fmt.Errorf("%w: unknown arguments: %s", ErrInvalidArguments, strings.Join(unknown, ", "))
	}

	input := reflect.New(s.input).Elem()
	var problems []error
	for _, p := range s.params {
		field := input.Field(p.index)
		raw, ok := args[p.spec.Name]
		if !ok {
			if !p.hasDefault {
				problems = append(problems, fmt.Errorf("missing required argument %q", p.spec.Name))
				continue
			}
			field.Set(copyDefault(p.def))
			continue
		}
		if err := p.assign(field, raw); err != nil {
			problems = append(problems, fmt.Errorf("argument %q: %w", p.spec.Name, err))
		}
	}
	if len(problems) > 0 {
		return reflect.Value{}, fmt.Errorf("%w: %w", ErrInvalidArguments, errors.Join(problems...))
	}
	return input, nil
}

func (p param) assign(field reflect.Value, raw any) error {
	if raw == nil {
		if p.nullable {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		return errors.New("must not be null")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.DecodeHookFuncType(checkNumber),
		Result:     field.Addr().Interface(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return err
	}
	if len(p.enum) > 0 {
		v := reflect.Indirect(field)
		if v.IsValid() && !slices.Contains(p.enum, v.String()) {
			return fmt.Errorf("%q is not one of %s", v.String(), strings.Join(p.enum, ", "))
		}
	}
	return nil
}

// copyDefault gives each call its own pointer so integrations cannot
// modify a shared default.
func copyDefault(def reflect.Value) reflect.Value {
	if def.Kind() != reflect.Pointer || def.IsNil() {
		return def
	}
	cp := reflect.New(def.Type().Elem())
	cp.Elem().Set(def.Elem())
	return cp
}

// Exclusive upper bounds for floats converted to 64-bit integers. MaxInt64
// and MaxUint64 are not representable as float64 and round up to these.
const (
	int64Limit  = float64(1 << 63)
	uint64Limit = float64(1 << 64)
)

// checkNumber rejects fractional or out-of-range values for integer targets,
// which mapstructure would otherwise truncate.
func checkNumber(_ reflect.Type, to reflect.Type, data any) (any, error) {
	v := reflect.ValueOf(data)
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch v.Kind() {
		case reflect.Float32, reflect.Float64:
			f := v.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= int64Limit || reflect.Zero(to).OverflowInt(int64(f)) {
				return nil, fmt.Errorf("%v is not a valid %s", data, to)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if reflect.Zero(to).OverflowInt(v.Int()) {
				return nil, fmt.Errorf("%v overflows %s", data, to)
			}
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch v.Kind() {
		case reflect.Float32, reflect.Float64:
			f := v.Float()
			if f != math.Trunc(f) || f < 0 || f >= uint64Limit || reflect.Zero(to).OverflowUint(uint64(f)) {
				return nil, fmt.Errorf("%v is not a valid %s", data, to)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if n := v.Int(); n < 0 || reflect.Zero(to).OverflowUint(uint64(n)) {
				return nil, fmt.Errorf("%v is not a valid %s", data, to)
			}
		}
	}
	return data, nil
}
