package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStruct(t *testing.T) {
	negative := int64(-1)

	tests := []struct {
		name    string
		input   interface{}
		wantErr string
	}{
		{"missing address", &CheckoutRequest{PaymentMethod: "cod"}, "address_id: is required"},
		{"negative address", &CheckoutRequest{AddressID: -4, PaymentMethod: "cod"}, "address_id: must be positive"},
		{"bad billing", &CheckoutRequest{AddressID: 1, BillingAddressID: &negative, PaymentMethod: "cod"}, "billing_address_id: must be positive"},
		{"missing payment", &CheckoutRequest{AddressID: 1}, "payment_method: is required"},
		{"long notes", &CheckoutRequest{AddressID: 1, PaymentMethod: "cod", Notes: strings.Repeat("n", 1001)}, "notes: must be at most 1000 characters"},
		{"bad email", RegisterRequest{Email: "nope", Name: "A", Password: "long-enough"}, "email: must be a valid email address"},
		{"short password", RegisterRequest{Email: "a@example.com", Name: "A", Password: "short"}, "password: must be at least 8 characters"},
		{"address line1", &Address{FullName: "A", City: "Pune", PostalCode: "411001"}, "line1: is required"},
		{"address country", &Address{FullName: "A", Line1: "1 Road", City: "Pune", PostalCode: "411001", Country: "IND"}, "country: must be exactly 2 characters"},
		{"valid checkout", &CheckoutRequest{AddressID: 1, PaymentMethod: "cod"}, ""},
		{"valid address", &Address{FullName: "A", Line1: "1 Road", City: "Pune", PostalCode: "411001"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantErr, verr.Error())
		})
	}
}

func TestCheckoutRequestValidateRejectsUnknownMethod(t *testing.T) {
	req := CheckoutRequest{AddressID: 1, PaymentMethod: "paypal"}
	_, err := req.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "payment_method", verr.Field)
}
