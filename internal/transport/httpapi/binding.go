package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// errEmptyBody — тело запроса отсутствует.
var errEmptyBody = errors.New("request body is required")

func init() {
	// Ошибки валидации называют поля так же, как они выглядят в JSON или query.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(wireName)
	}
}

func wireName(field reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name, _, _ := strings.Cut(field.Tag.Get(tag), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return ""
}

// decodeJSON разбирает тело строго: неизвестные поля и данные после объекта отклоняются,
// затем проверяются теги binding.
func decodeJSON(body []byte, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errEmptyBody
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return binding.Validator.ValidateStruct(dst)
}

// describeBindingError переводит ошибку разбора в сообщение с именами полей из JSON.
func describeBindingError(err error) string {
	var (
		fieldErrs validator.ValidationErrors
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
	)
	switch {
	case errors.As(err, &fieldErrs):
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, describeFieldError(fe))
		}
		return strings.Join(msgs, "; ")
	case errors.As(err, &typeErr):
		if typeErr.Field == "" {
			return "request body has the wrong shape"
		}
		return fmt.Sprintf("%s has the wrong type", typeErr.Field)
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return "malformed JSON body"
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return strings.TrimPrefix(err.Error(), "json: ")
	case errors.Is(err, errEmptyBody):
		return errEmptyBody.Error()
	case strings.HasPrefix(err.Error(), "request body must"):
		return err.Error()
	default:
		return "request could not be decoded"
	}
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	// Первый сегмент — имя Go-типа запроса.
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max", "min":
		bound := "at most"
		if fe.Tag() == "min" {
			bound = "at least"
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be %s %s characters long", field, bound, fe.Param())
		}
		return fmt.Sprintf("%s must be %s %s", field, bound, fe.Param())
	default:
		return field + " is invalid"
	}
}
