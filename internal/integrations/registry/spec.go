package registry

import (
	"errors"
	"maps"
	"slices"
)

var (
	ErrDuplicateRegistration = errors.New("integration already registered")
	ErrInvalidIntegration    = errors.New("invalid integration")
	ErrUnsupportedSignature  = errors.New("unsupported integration signature")
	ErrNotFound              = errors.New("integration not found")
	ErrInvalidArguments      = errors.New("invalid integration arguments")
)

// NoDocumentation is the docstring of integrations registered without WithDoc.
const NoDocumentation = "No documentation provided."

// ParameterSpec describes one input parameter of an integration.
type ParameterSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  any    `json:"default"`
}

// IntegrationSpec is the portable description of an integration. It is
// built once at registration and never changes; accessors hand out copies.
type IntegrationSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Docstring   string          `json:"docstring"`
	Platform    string          `json:"platform"`
	Parameters  []ParameterSpec `json:"parameters"`
}

func (s IntegrationSpec) clone() IntegrationSpec {
	s.Parameters = slices.Clone(s.Parameters)
	if s.Parameters == nil {
		s.Parameters = []ParameterSpec{}
	}
	return s
}

// Metadata is everything the registry records about an integration.
type Metadata struct {
	Platform      string          `json:"platform"`
	Description   string          `json:"description"`
	ReturnType    string          `json:"return_type"`
	Specification IntegrationSpec `json:"specification"`
	Secrets       []string        `json:"secrets"`
	Extra         map[string]any  `json:"extra,omitempty"`
}

func (m Metadata) clone() Metadata {
	m.Specification = m.Specification.clone()
	m.Secrets = slices.Clone(m.Secrets)
	if m.Secrets == nil {
		m.Secrets = []string{}
	}
	m.Extra = maps.Clone(m.Extra)
	return m
}
