package interceptors

// Validator is implemented by request payloads that can check their own
// invariants after JSON decoding (e.g. rate > 0, non-empty node names).
type Validator interface {
	Validate() error
}

// ValidateBody runs v's Validate method if it implements Validator,
// returning nil for payloads that don't need validation.
func ValidateBody(v any) error {
	if validator, ok := v.(Validator); ok {
		return validator.Validate()
	}
	return nil
}
