package service

import (
	"context"
	"crypto/rand"
	"fmt"
)

const (
	referencePrefix = "PAY"
	receiptPrefix   = "RCP"
	codeLength      = 10
	maxCodeAttempts = 5
)

// 32 symbols, so a random byte masked to 5 bits maps onto it without bias.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type codeGenerator func(prefix string) (string, error)

func newCode(prefix string) (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i := range b {
		b[i] = codeAlphabet[b[i]&31]
	}
	return prefix + "-" + string(b), nil
}

// uniqueCode draws codes until exists reports one as unused.
func uniqueCode(ctx context.Context, gen codeGenerator, prefix string, exists func(context.Context, string) (bool, error)) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := gen(prefix)
		if err != nil {
			return "", err
		}

		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check %s code: %w", prefix, err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", errCodesExhausted
}
