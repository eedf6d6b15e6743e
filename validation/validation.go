package validation

import "github.com/go-playground/validator/v10"

// Validate is shared by every package that validates loaded configuration.
var Validate = validator.New(validator.WithRequiredStructEnabled())
