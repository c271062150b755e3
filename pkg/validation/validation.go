// Package validation wires go-playground/validator into gin's binding engine:
// JSON field names in error messages, English translations and the custom tags
// used by request structs (objectid, phone, currency).
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	phoneRegex    = regexp.MustCompile(`^\+?[0-9]{9,15}$`)
	currencyRegex = regexp.MustCompile(`^[a-zA-Z]{3}$`)

	customTags = map[string]struct {
		fn   validator.Func
		text string
	}{
		"objectid": {objectIDValidation, "{0} must be a valid identifier"},
		"phone":    {phoneValidation, "{0} must be a phone number with 9 to 15 digits"},
		"currency": {currencyValidation, "{0} must be a 3-letter currency code"},
	}

	once       sync.Once
	translator ut.Translator
)

// Init registers translations and custom validators on gin's validator. Safe to
// call more than once.
func Init() {
	once.Do(func() {
		locale := en.New()
		translator, _ = ut.New(locale, locale).GetTranslator("en")

		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = en_translations.RegisterDefaultTranslations(v, translator)

		// Use JSON (or form) tag names for errors instead of Go struct names.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})

		for tag, ct := range customTags {
			_ = v.RegisterValidation(tag, ct.fn)
			registerTranslation(v, tag, ct.text, false)
		}
		registerTranslation(v, "required", "{0} is required", true)
	})
}

func registerTranslation(v *validator.Validate, tag, text string, override bool) {
	_ = v.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, override) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// FieldErrors converts validator errors into per-field messages. It returns
// nil when err is not a validator.ValidationErrors.
func FieldErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Error()
		if translator != nil {
			msg = fe.Translate(translator)
		}
		out = append(out, models.FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}

// ObjectID reports whether s is a valid document identifier.
func ObjectID(s string) bool {
	return primitive.IsValidObjectID(s)
}

func objectIDValidation(fl validator.FieldLevel) bool {
	return ObjectID(fl.Field().String())
}

func phoneValidation(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(strings.ReplaceAll(fl.Field().String(), " ", ""))
}

func currencyValidation(fl validator.FieldLevel) bool {
	return currencyRegex.MatchString(fl.Field().String())
}
