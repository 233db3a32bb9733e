package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// maxBodyBytes caps the /predict request body.
const maxBodyBytes = 1 << 20

// TransactionRequest is the request body for POST /predict.
// Pointer fields distinguish a missing field from a zero value.
type TransactionRequest struct {
	Amount           *float64 `json:"amount" validate:"required,gt=0"`
	Hour             *int     `json:"hour" validate:"required,gte=0,lte=23"`
	DayOfWeek        *int     `json:"day_of_week" validate:"required,gte=0,lte=6"`
	Month            *int     `json:"month" validate:"required,gte=1,lte=12"`
	DistanceFromHome *float64 `json:"distance_from_home" validate:"required,gte=0"`
}

// Transaction converts a validated request.
func (r *TransactionRequest) Transaction() domain.TransactionInput {
	return domain.TransactionInput{
		Amount:           *r.Amount,
		Hour:             *r.Hour,
		DayOfWeek:        *r.DayOfWeek,
		Month:            *r.Month,
		DistanceFromHome: *r.DistanceFromHome,
	}
}

// errBodyTooLarge is returned when the body exceeds maxBodyBytes.
var errBodyTooLarge = errors.New("request body too large")

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeTransaction reads and validates the request body. Caller input
// problems are reported as *domain.ValidationError.
func decodeTransaction(w http.ResponseWriter, r *http.Request, v *validator.Validate) (domain.TransactionInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req TransactionRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return domain.TransactionInput{}, decodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.TransactionInput{}, errBodyTooLarge
		}
		return domain.TransactionInput{}, &domain.ValidationError{Fields: []domain.FieldError{{
			Message: "JSON decode error",
			Type:    "json_invalid",
		}}}
	}

	if err := v.Struct(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return domain.TransactionInput{}, validationError(verrs)
		}
		return domain.TransactionInput{}, err
	}

	return req.Transaction(), nil
}

func decodeError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errBodyTooLarge
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return &domain.ValidationError{Fields: []domain.FieldError{{
				Message: "Input should be a valid dictionary or object to extract fields from",
				Type:    "model_attributes_type",
			}}}
		}
		fe := domain.FieldError{Field: typeErr.Field}
		switch typeErr.Type.Kind() {
		case reflect.Int, reflect.Int64:
			fe.Message, fe.Type = "Input should be a valid integer", "int_parsing"
		default:
			fe.Message, fe.Type = "Input should be a valid number", "float_parsing"
		}
		return &domain.ValidationError{Fields: []domain.FieldError{fe}}
	}

	return &domain.ValidationError{Fields: []domain.FieldError{{
		Message: "JSON decode error",
		Type:    "json_invalid",
	}}}
}

// validationError maps validator failures onto field errors in
// declaration order.
func validationError(verrs validator.ValidationErrors) *domain.ValidationError {
	out := &domain.ValidationError{Fields: make([]domain.FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, fieldError(fe))
	}
	return out
}

func fieldError(fe validator.FieldError) domain.FieldError {
	f := domain.FieldError{Field: fe.Field()}
	switch fe.Tag() {
	case "required":
		f.Message, f.Type = "Field required", "missing"
	case "gt":
		f.Message, f.Type = "Input should be greater than "+fe.Param(), "greater_than"
	case "gte":
		f.Message, f.Type = "Input should be greater than or equal to "+fe.Param(), "greater_than_equal"
	case "lte":
		f.Message, f.Type = "Input should be less than or equal to "+fe.Param(), "less_than_equal"
	default:
		f.Message, f.Type = fmt.Sprintf("failed %s validation", fe.Tag()), fe.Tag()
	}
	return f
}

// errorDetail is one entry of a 422 response body.
type errorDetail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// errorResponse converts a handler error into the status and body sent to
// the client. Only validation detail is exposed; everything else becomes a
// generic failure.
func errorResponse(err error) (int, any) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		details := make([]errorDetail, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			loc := []string{"body"}
			if f.Field != "" {
				loc = append(loc, f.Field)
			}
			details = append(details, errorDetail{Loc: loc, Msg: f.Message, Type: f.Type})
		}
		return http.StatusUnprocessableEntity, map[string]any{"detail": details}

	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, map[string]string{"detail": "Request body too large"}

	default:
		return http.StatusInternalServerError, map[string]string{"detail": "Prediction failed"}
	}
}
