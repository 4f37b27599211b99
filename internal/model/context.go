package model

// FieldSource records where a context field's value came from. Verdict
// generation needs to tell an explicitly supplied value from a guessed one.
type FieldSource string

const (
	SourceUser     FieldSource = "user"
	SourceInferred FieldSource = "inferred"
	SourceDefault  FieldSource = "default"
)

// Field is a context attribute carrying provenance alongside its value.
// A nil Value means the attribute is unresolved.
type Field[T any] struct {
	Value  *T          `json:"value"`
	Source FieldSource `json:"source"`
}

// UserField creates a Field explicitly supplied by the user.
func UserField[T any](v T) Field[T] {
	return Field[T]{Value: &v, Source: SourceUser}
}

// InferredField creates a Field guessed by an upstream classifier.
func InferredField[T any](v T) Field[T] {
	return Field[T]{Value: &v, Source: SourceInferred}
}

// DefaultField creates a Field populated from a product default.
func DefaultField[T any](v T) Field[T] {
	return Field[T]{Value: &v, Source: SourceDefault}
}

// Resolved reports whether the field carries a value.
func (f Field[T]) Resolved() bool { return f.Value != nil }

// OrZero returns the value or the zero value when unresolved.
func (f Field[T]) OrZero() T {
	if f.Value == nil {
		var zero T
		return zero
	}
	return *f.Value
}

// DecisionContext is the resolved business situation a verdict is generated
// against. Every attribute keeps per-field provenance.
type DecisionContext struct {
	CompanyStage  Field[string] `json:"company_stage"`
	BusinessModel Field[string] `json:"business_model"`
	PrimaryKPI    Field[string] `json:"primary_kpi"`
	MarketType    Field[string] `json:"market_type"`
	MarketSegment Field[string] `json:"market_segment"`
}
