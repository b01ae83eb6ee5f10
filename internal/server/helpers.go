package server

import (
	"mime/multipart"
	"strconv"
	"strings"

	"vortexx/internal/media"
	"vortexx/internal/models"

	"github.com/gofiber/fiber/v2"
)

// respond writes err with the status its AppError code maps to. Errors
// without a code are reported as internal.
func respond(c *fiber.Ctx, err error) error {
	if models.ErrorCode(err) == "" {
		err = models.NewInternalError(err)
	}
	return models.RespondWithError(c, models.StatusFor(err), err)
}

// badRequest writes a 400 validation error.
func badRequest(c *fiber.Ctx, message string) error {
	return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(message))
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm)
}

// multipartForm returns the parsed form, or nil for requests that are not multipart.
func multipartForm(c *fiber.Ctx) (*multipart.Form, error) {
	if !isMultipart(c) {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, models.NewValidationError("Invalid multipart form")
	}
	return form, nil
}

// formFile reads the first upload in field. A missing field yields nil.
func formFile(form *multipart.Form, field string) (*media.File, error) {
	if form == nil || len(form.File[field]) == 0 {
		return nil, nil
	}
	f, err := media.FromMultipart(form.File[field][0])
	if err != nil {
		return nil, models.NewValidationError("Could not read uploaded file")
	}
	return &f, nil
}

// formFiles reads every file sent under field.
func formFiles(form *multipart.Form, field string) ([]media.File, error) {
	if form == nil {
		return nil, nil
	}
	files := make([]media.File, 0, len(form.File[field]))
	for _, fh := range form.File[field] {
		f, err := media.FromMultipart(fh)
		if err != nil {
			return nil, models.NewValidationError("Could not read uploaded file")
		}
		files = append(files, f)
	}
	return files, nil
}

// formValue returns the first value of field, or nil when it was not sent.
func formValue(form *multipart.Form, field string) *string {
	if form == nil || len(form.Value[field]) == 0 {
		return nil
	}
	v := form.Value[field][0]
	return &v
}

func stringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// parseOptionalBool turns "true"/"false" style form values into a *bool.
// An empty value means unset.
func parseOptionalBool(raw string) (*bool, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return nil, models.NewValidationError("Invalid boolean value: " + raw)
	}
	return &v, nil
}
