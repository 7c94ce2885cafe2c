package config

import (
	"reflect"

	sserr "github.com/StricklySoft/realm-gateway/pkg/errors"
)

// Validator is an optional interface that configuration structs may
// implement for cross-field checks. It runs after the `required` tag checks
// pass. Errors that are already [*sserr.Error] are returned as-is; others
// are wrapped with [sserr.CodeValidation].
//
//	func (c *GatewayConfig) Validate() error {
//	    if c.Redis.Enabled && c.Redis.SharedTTL >= c.Cache.TTL {
//	        return sserr.New(sserr.CodeValidation,
//	            "config: redis shared TTL must be shorter than the cache TTL")
//	    }
//	    return nil
//	}
type Validator interface {
	Validate() error
}

// validate performs tag-based required validation and then invokes the
// Validator interface if the config struct implements it. The cfg
// parameter is the original interface value (for Validator type
// assertion); rv is the dereferenced reflect.Value of the struct.
func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}

	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			// Pass through sserr.Error instances unchanged.
			if _, isSSErr := sserr.AsError(err); isSSErr {
				return err
			}
			return sserr.Wrap(err, sserr.CodeValidation,
				"config: custom validation failed")
		}
	}

	return nil
}

// validateRequired checks that every field tagged `required:"true"` holds a
// non-zero value. path is the dotted field path used in messages
// (e.g. "Keycloak.URL").
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if field.Kind() == reflect.Struct && !isLeaf(sf.Type) {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}

		if sf.Tag.Get("required") != "true" {
			continue
		}

		if field.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}

	return nil
}
