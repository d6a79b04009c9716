package models

import (
	"fmt"
	"strings"
)

type PaymentMethod string

const (
	PaymentMethodCOD      PaymentMethod = "cod"
	PaymentMethodRazorpay PaymentMethod = "razorpay"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case PaymentMethodCOD, PaymentMethodRazorpay:
		return m, nil
	}
	return "", &ValidationError{Field: "payment_method", Message: fmt.Sprintf("unsupported payment method %q", s)}
}

// IsCash reports whether payment is collected on delivery, in which case no
// payment record is written at checkout.
func (m PaymentMethod) IsCash() bool {
	return m == PaymentMethodCOD
}
