package apperr

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	// FieldError.Field() を Go のフィールド名ではなく JSON 名で返させる
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonName)
	}
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// Validate は binding タグで検証する。ハンドラを通らない呼び出し（CLI など）用。
func Validate(obj any) error {
	if err := binding.Validator.ValidateStruct(obj); err != nil {
		return FromBinding(err)
	}
	return nil
}

// FromBinding は ShouldBindJSON / Validate のエラーをフィールド単位の APIError にする。
// タグ検証以外（JSON が壊れている等）は本文不正として返す。
func FromBinding(err error) *APIError {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return Invalid("invalid request body")
	}
	e := &APIError{Code: CodeInvalidArgument, Fields: make(map[string]string, len(ves))}
	for _, fe := range ves {
		msg := fieldMessage(fe)
		if e.Message == "" {
			e.Message = msg
		}
		e.Fields[fe.Field()] = msg
	}
	return e
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "min":
		return fmt.Sprintf("ensure this field has at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("ensure this field has at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed on the %q rule", fe.Tag())
	}
}
