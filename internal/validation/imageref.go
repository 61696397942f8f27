// imageref.go registers the "imageref" validator tag. An image reference is
// either an absolute http(s) URL or a root-relative path such as
// "/uploads/projects/1700000000000-123456789.jpg".
package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ImageRefTag is the struct tag name of the image reference rule.
const ImageRefTag = "imageref"

// ValidImageRef reports whether ref looks like a stored image reference.
func ValidImageRef(ref string) bool {
	if ref == "" || strings.TrimSpace(ref) != ref || len(ref) > 2048 {
		return false
	}
	if strings.HasPrefix(ref, "/") {
		if strings.HasPrefix(ref, "//") {
			return false
		}
		for _, seg := range strings.Split(ref, "/") {
			if seg == ".." {
				return false
			}
		}
		return true
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func imageRef(fl validator.FieldLevel) bool {
	return ValidImageRef(fl.Field().String())
}

// RegisterValidators adds the custom rules to v.
func RegisterValidators(v *validator.Validate) error {
	if err := v.RegisterValidation(ImageRefTag, imageRef); err != nil {
		return fmt.Errorf("failed to register %s validator: %w", ImageRefTag, err)
	}
	return nil
}

// RegisterWithGin adds the custom rules to gin's default binding validator.
func RegisterWithGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("gin binding engine is %T, not *validator.Validate", binding.Validator.Engine())
	}
	return RegisterValidators(v)
}
