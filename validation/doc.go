// Package validation checks wirekit configuration and registration input.
//
// Struct tag validation (go-playground/validator) guards config.Config;
// programmatic validation with error collection guards export descriptors
// and scope options before they reach the registry.
//
// # Struct Tag Validation
//
//	type Config struct {
//	    MaxResolveDepth int `validate:"min=1,max=10000"`
//	}
//	err := validation.Validate(cfg)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Custom(fn.Kind() == reflect.Func, "constructor", "must be a function")
//	err := v.Validate(errors.ErrCodeInvalidExport)
package validation
