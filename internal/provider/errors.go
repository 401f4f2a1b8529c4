package provider

import "fmt"

// CredentialError means a required credential was absent or rejected at
// adapter construction. It is never deferred to the first call.
type CredentialError struct {
    Provider string
    Key      string
}

func (e *CredentialError) Error() string {
    return fmt.Sprintf("%s: missing required credential %s", e.Provider, e.Key)
}

// VendorPayloadError is an application-level error reported inside an
// otherwise well-formed vendor response (e.g. Alpha Vantage "Error Message",
// Polygon status "ERROR").
type VendorPayloadError struct {
    Provider string
    Message  string
}

func (e *VendorPayloadError) Error() string {
    return fmt.Sprintf("%s: vendor error: %s", e.Provider, e.Message)
}

// SchemaError means an expected key or shape was absent from the vendor
// response. The affected ticker is skipped; the batch continues.
type SchemaError struct {
    Provider string
    Detail   string
}

func (e *SchemaError) Error() string {
    return fmt.Sprintf("%s: unexpected response shape: %s", e.Provider, e.Detail)
}

// TransportError wraps a network or HTTP-level failure. Retried up to the
// adapter's retry budget.
type TransportError struct {
    Provider string
    Err      error
}

func (e *TransportError) Error() string {
    return fmt.Sprintf("%s: transport: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError rejects an unsupported period/interval token before any
// network call is made.
type ValidationError struct {
    Field string
    Value string
}

func (e *ValidationError) Error() string {
    return fmt.Sprintf("invalid %s token %q", e.Field, e.Value)
}
