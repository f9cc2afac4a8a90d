package handlers

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// bookPayload is the allow-list of fields accepted when creating a book. Anything else in the
// client's JSON, such as ids, owner or ratings, is dropped by decoding.
type bookPayload struct {
	Title  string `json:"title" validate:"required,max=200"`
	Author string `json:"author" validate:"required,max=200"`
	Year   int    `json:"year" validate:"gte=0,lte=9999"`
	Genre  string `json:"genre" validate:"max=100"`
}

// bookChangesPayload is the allow-list for updates. Absent fields stay nil and are left unchanged.
type bookChangesPayload struct {
	Title  *string `json:"title" validate:"omitnil,min=1,max=200"`
	Author *string `json:"author" validate:"omitnil,min=1,max=200"`
	Year   *int    `json:"year" validate:"omitnil,gte=0,lte=9999"`
	Genre  *string `json:"genre" validate:"omitnil,max=100"`
}

type ratingPayload struct {
	UserID string `json:"userId"`
	Rating *int   `json:"rating" validate:"required"`
}

type credentialsPayload struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// validationMessage flattens validator errors into a single client-facing message.
func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email address")
		case "min", "max", "gte", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
