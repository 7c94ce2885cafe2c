package errors

// Code represents a machine-readable error code for categorizing errors.
// Codes follow the pattern CATEGORY_XXX and are stable once assigned.
type Code string

// Error code categories and their ranges:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	NF_xxx      - Not found errors (404 Not Found)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// Validation errors (VAL_xxx) - HTTP 400

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationRange indicates a value is outside acceptable range.
	CodeValidationRange Code = "VAL_004"

	// Authentication errors (AUTH_xxx) - HTTP 401

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates the token has expired.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates the token is malformed or carries
	// no usable issuer.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthenticationHeader indicates the Authorization header is absent
	// or is not of the form "Bearer <token>".
	CodeAuthenticationHeader Code = "AUTH_004"

	// CodeAuthenticationTenant indicates the tenant named by the token could
	// not be resolved.
	CodeAuthenticationTenant Code = "AUTH_005"

	// CodeAuthenticationSignature indicates signature verification failed.
	CodeAuthenticationSignature Code = "AUTH_006"

	// Not found errors (NF_xxx) - HTTP 404

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundTenant indicates the identity provider has no such tenant,
	// or its metadata could not be obtained.
	CodeNotFoundTenant Code = "NF_004"

	// Internal errors (INT_xxx) - HTTP 500

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// CodeInternalExchange indicates the internal token could not be minted.
	CodeInternalExchange Code = "INT_004"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependent service is unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeUnavailableIdentityProvider indicates the identity provider could
	// not be reached or answered with a server error.
	CodeUnavailableIdentityProvider Code = "UNAVAIL_004"

	// Conflict errors (CONF_xxx) - HTTP 409

	// CodeConflict indicates an operation conflicts with current state,
	// such as an invalid lifecycle transition.
	CodeConflict Code = "CONF_001"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDependency indicates a call to a dependent service timed out.
	CodeTimeoutDependency Code = "TIMEOUT_003"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
