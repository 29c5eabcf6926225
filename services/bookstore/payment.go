package main

import (
	"strconv"
	"strings"
	"time"
)

const (
	cardNumberLength = 16
	cvvLength        = 3
)

// ValidatePayment faz a validação sintática do cartão antes do commit. Nenhuma
// cobrança externa é feita. As verificações seguem uma ordem fixa e a primeira
// falha vence: número do cartão, formato da validade, mês, data de validade e CVV.
func ValidatePayment(details PaymentDetails, now time.Time) error {
	if len(details.CardNumber) != cardNumberLength || !isASCIIDigits(details.CardNumber) {
		return &PaymentError{Reason: PaymentBadCardNumber}
	}

	month, year, err := parseExpiry(details.Expiry)
	if err != nil {
		return err
	}

	// O cartão vale até o primeiro dia do mês de validade.
	expiry := time.Date(2000+year, time.Month(month), 1, 0, 0, 0, 0, now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if expiry.Before(today) {
		return &PaymentError{Reason: PaymentExpired}
	}

	if len(details.CVV) != cvvLength || !isASCIIDigits(details.CVV) {
		return &PaymentError{Reason: PaymentBadCVV}
	}
	return nil
}

// parseExpiry separa uma string MM/YY. O mês pode ter um dígito só.
func parseExpiry(expiry string) (int, int, error) {
	parts := strings.Split(expiry, "/")
	if len(parts) != 2 {
		return 0, 0, &PaymentError{Reason: PaymentBadExpiry}
	}
	mm, yy := parts[0], parts[1]
	if len(mm) < 1 || len(mm) > 2 || len(yy) != 2 || !isASCIIDigits(mm) || !isASCIIDigits(yy) {
		return 0, 0, &PaymentError{Reason: PaymentBadExpiry}
	}

	month, err := strconv.Atoi(mm)
	if err != nil {
		return 0, 0, &PaymentError{Reason: PaymentBadExpiry}
	}
	year, err := strconv.Atoi(yy)
	if err != nil {
		return 0, 0, &PaymentError{Reason: PaymentBadExpiry}
	}
	if month < 1 || month > 12 {
		return 0, 0, &PaymentError{Reason: PaymentBadExpiryMonth}
	}
	return month, year, nil
}

func isASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
