package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"membership-checkout/internal/domain"
	"membership-checkout/internal/domain/model"
	"membership-checkout/internal/domain/ports/adapter"
)

// Compile-time check
var _ CardCaptureForm = (*cardCaptureForm)(nil)

// CardFormInput is what the client submits: billing details plus the opaque
// reference to the processor-hosted card fields. Raw card data never appears
// here.
type CardFormInput struct {
	CardSession string `json:"cardSession" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
}

// CardCaptureForm turns a submitted form into a tokenized payment method.
// Locally-inspectable fields are validated here; card validity is delegated
// to the processor. Nothing leaves the process until Tokenize is called.
type CardCaptureForm interface {
	Tokenize(ctx context.Context, in CardFormInput) (*model.TokenizedPaymentMethod, error)
}

type cardCaptureForm struct {
	processor adapter.ProcessorGateway
	validate  *validator.Validate
	log       *zerolog.Logger
}

func NewCardCaptureForm(processor adapter.ProcessorGateway, logger *zerolog.Logger) *cardCaptureForm {
	return &cardCaptureForm{
		processor: processor,
		validate:  validator.New(),
		log:       logger,
	}
}

func (f *cardCaptureForm) Tokenize(ctx context.Context, in CardFormInput) (*model.TokenizedPaymentMethod, error) {
	if err := f.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[strings.ToLower(fe.Field())] = fieldMessage(fe)
			}
			return nil, &domain.ValidationError{Fields: fields}
		}
		return nil, err
	}

	method, err := f.processor.CreatePaymentMethod(ctx, in.CardSession, model.BillingDetails{
		Name:  in.Name,
		Email: in.Email,
	})
	if err != nil {
		return nil, err
	}
	f.log.Debug().Str("brand", method.Brand).Str("last4", method.Last4).Msg("payment method tokenized")
	return method, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "is not a valid email address"
	default:
		return "is invalid"
	}
}
