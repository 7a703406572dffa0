package registry

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"unicode"
)

const (
	// DefaultPlatform is used when neither WithPlatform nor the function's
	// package path names a platform.
	DefaultPlatform = "custom"

	keyPrefix = "integrations"

	// Packages under an integrations directory are platforms, except the
	// registry itself.
	platformSegment = "integrations"
	registrySegment = "registry"
)

// Key joins platform and name into a registration key.
func Key(platform, name string) string {
	return keyPrefix + "." + platform + "." + name
}

// funcIdentity is what the runtime knows about a function value.
type funcIdentity struct {
	pkgPath string
	name    string
}

// identify reads the package path and bare function name of fn from the
// runtime symbol table. Method values lose their -fm suffix and generic
// instantiations lose their [...] arguments. Closures have no usable name
// and yield an empty name.
func identify(fn reflect.Value) funcIdentity {
	rf := runtime.FuncForPC(fn.Pointer())
	if rf == nil {
		return funcIdentity{}
	}
	full := rf.Name()
	full = strings.TrimSuffix(full, "-fm")
	full = strings.ReplaceAll(full, "[...]", "")

	// The package path ends at the first dot after the last slash.
	slash := strings.LastIndex(full, "/")
	dot := strings.Index(full[slash+1:], ".")
	if dot < 0 {
		return funcIdentity{name: full}
	}
	pkgPath := full[:slash+1+dot]
	rest := full[slash+1+dot+1:]

	name := rest
	if i := strings.LastIndex(rest, "."); i >= 0 {
		name = rest[i+1:]
	}
	if isClosureName(name) {
		name = ""
	}
	return funcIdentity{pkgPath: pkgPath, name: name}
}

// isClosureName matches compiler-generated closure names: func1, the digit
// runs of nested closures and range-over-func bodies.
func isClosureName(name string) bool {
	if name == "" || strings.Contains(name, "-") {
		return true
	}
	name = strings.TrimPrefix(name, "func")
	if name == "" {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// platformFromPackage returns the path segment after an integrations
// segment, e.g. ".../integrations/email" yields "email".
func platformFromPackage(pkgPath string) string {
	parts := strings.Split(pkgPath, "/")
	for i := len(parts) - 2; i >= 0; i-- {
		if parts[i] != platformSegment {
			continue
		}
		seg := strings.TrimSuffix(parts[i+1], "_test")
		if seg == registrySegment {
			return ""
		}
		return seg
	}
	return ""
}

// resolveKey derives (platform, name, key) for fn.
func resolveKey(fn reflect.Value, cfg registerConfig, defaultPlatform string) (platform, name, key string, err error) {
	id := identify(fn)

	name = strings.TrimSpace(cfg.name)
	if name == "" {
		if id.name == "" {
			return "", "", "", fmt.Errorf("%w: anonymous function requires WithName", ErrInvalidIntegration)
		}
		name = SnakeCase(id.name)
	}
	if err := validSegment(name); err != nil {
		return "", "", "", fmt.Errorf("%w: name: %w", ErrInvalidIntegration, err)
	}

	platform = strings.TrimSpace(cfg.platform)
	if platform == "" {
		platform = platformFromPackage(id.pkgPath)
	}
	if platform == "" {
		platform = defaultPlatform
	}
	if err := validSegment(platform); err != nil {
		return "", "", "", fmt.Errorf("%w: platform: %w", ErrInvalidIntegration, err)
	}
	return platform, name, Key(platform, name), nil
}

func validSegment(s string) error {
	if s == "" {
		return fmt.Errorf("must not be empty")
	}
	if strings.ContainsAny(s, ". \t\n/") {
		return fmt.Errorf("%q must not contain dots, slashes or whitespace", s)
	}
	return nil
}

// SnakeCase converts a Go identifier to snake_case, keeping acronyms
// together: HTTPRequest becomes http_request.
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
