// Package errors provides the coded error type shared by every realm-gateway
// package. Each error carries a machine-readable code (e.g. "AUTH_006"), a
// human-readable message and an optional cause. The code category decides the
// HTTP status a rejection maps to.
//
// # Error Codes
//
// Codes follow the pattern CATEGORY_NNN. The gateway relies on these:
//
//   - AUTH_004: the Authorization header is absent or not a bearer header
//   - AUTH_003: the bearer token cannot be decoded or names no issuer
//   - AUTH_005: the token's tenant could not be resolved
//   - AUTH_006: the token's signature did not verify
//   - NF_004:   the identity provider knows no such tenant
//   - INT_004:  the internal token could not be minted
//   - UNAVAIL_004: the identity provider could not be reached
//
// # Matching
//
// Two *Error values match under errors.Is when their codes are equal, so a
// package can export a sentinel and still wrap causes with detail:
//
//	var ErrTenantNotFound = errors.New(errors.CodeNotFoundTenant, "tenant not found")
//
//	return errors.Wrapf(err, errors.CodeNotFoundTenant, "tenant %q not found", id)
//
//	if stderrors.Is(err, ErrTenantNotFound) { ... }
package errors
