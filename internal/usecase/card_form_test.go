// File: internal/usecase/card_form_test.go
package usecase

import (
	"context"
	"errors"
	"testing"

	"membership-checkout/internal/domain"
)

func TestCardForm_LocalValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	proc := &fakeProcessor{}
	form := NewCardCaptureForm(proc, testLogger())

	cases := []struct {
		name  string
		in    CardFormInput
		field string
	}{
		{"missing card session", CardFormInput{Name: "Ada", Email: "ada@example.com"}, "cardsession"},
		{"missing name", CardFormInput{CardSession: "cs_1", Email: "ada@example.com"}, "name"},
		{"bad email", CardFormInput{CardSession: "cs_1", Name: "Ada", Email: "nope"}, "email"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := form.Tokenize(ctx, tc.in)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := verr.Fields[tc.field]; !ok {
				t.Fatalf("expected error on %q, got %v", tc.field, verr.Fields)
			}
		})
	}
	if proc.confirmCalls != 0 {
		t.Fatalf("local validation must not reach the processor")
	}
}

func TestCardForm_TokenizeSuccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	proc := &fakeProcessor{}
	form := NewCardCaptureForm(proc, testLogger())

	method, err := form.Tokenize(ctx, CardFormInput{CardSession: "cs_1", Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("Tokenize returned error: %v", err)
	}
	if method.ID != "pm_test" || method.Last4 != "4242" {
		t.Fatalf("unexpected method: %+v", method)
	}
}

func TestCardForm_ProcessorCardErrorPassesThrough(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	proc := &fakeProcessor{methodErr: &domain.ValidationError{Fields: map[string]string{"card": "card number is invalid"}}}
	form := NewCardCaptureForm(proc, testLogger())

	_, err := form.Tokenize(ctx, CardFormInput{CardSession: "cs_1", Name: "Ada", Email: "ada@example.com"})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error from processor, got %v", err)
	}
	if _, ok := verr.Fields["card"]; !ok {
		t.Fatalf("expected card field error, got %v", verr.Fields)
	}
}
