package notes

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"

	"github.com/kuitang/epic-notes/internal/errs"
)

// commandValidate is the validator instance for note commands.
// Field names in errors follow the form tags, e.g. "images[0].file".
var commandValidate *validator.Validate

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func init() {
	commandValidate = validator.New(validator.WithRequiredStructEnabled())
	commandValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("form"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = commandValidate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	commandValidate.RegisterStructValidation(validateDescriptor, ImageDescriptor{})
}

// validateDescriptor enforces the upload size limit on an image slot.
func validateDescriptor(sl validator.StructLevel) {
	d := sl.Current().Interface().(ImageDescriptor)
	if d.File.Size() > MaxUploadSize {
		sl.ReportError(d.File, "file", "File", "maxsize", fmt.Sprint(MaxUploadSize))
	}
}

// Validate checks a command before any mutation. Failures are InvalidArgument
// errors whose Fields are keyed by form field name.
func Validate(cmd any) error {
	err := commandValidate.Struct(cmd)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.Wrap(errs.Internal, "invalid command", err)
	}

	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		key := fieldKey(fe.Namespace())
		fields[key] = append(fields[key], fieldMessage(fe))
	}
	return errs.Validation("invalid input", fields)
}

// fieldKey drops the struct name from a namespace like "UpdateNoteCommand.images[0].file".
func fieldKey(namespace string) string {
	_, rest, ok := strings.Cut(namespace, ".")
	if !ok {
		return namespace
	}
	return rest
}

func fieldMessage(fe validator.FieldError) string {
	label := fe.StructField()
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "maxsize":
		return fmt.Sprintf("File size must be at most %s", humanize.IBytes(MaxUploadSize))
	case "email":
		return "Email is invalid"
	case "username":
		return "Username can only include letters, numbers, and underscores"
	default:
		return fmt.Sprintf("%s is invalid", label)
	}
}
