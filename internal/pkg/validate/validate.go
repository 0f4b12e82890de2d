package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	otpPattern    = regexp.MustCompile(`^\d{6}$`)
	mobilePattern = regexp.MustCompile(`^\+?\d{10,15}$`)
)

// v is the package-level singleton validator. Custom tags are registered in
// init() before the first call to Struct.
var v = validator.New()

func init() {
	_ = v.RegisterValidation("otp", func(fl validator.FieldLevel) bool {
		return otpPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		return mobilePattern.MatchString(fl.Field().String())
	})
}

// Struct validates the given struct using its validate tags.
// Returns a human-readable error string or nil.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}
