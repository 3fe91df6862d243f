package service

import (
	"errors"
	"fmt"
)

// ValidationError means the request itself is malformed.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ConflictError means the request is well formed but the current state forbids it.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return e.Msg }

var (
	ErrInvalidQuantity = &ValidationError{Msg: fmt.Sprintf("quantity must be between 1 and %d", MaxLineQuantity)}
	ErrEmptyCart       = &ValidationError{Msg: "cart is empty"}
	ErrInvalidAmount   = &ValidationError{Msg: "amount must be positive"}
	ErrInvalidMethod   = &ValidationError{Msg: "payment method must be bank_transfer or cash"}
	ErrInvalidDecision = &ValidationError{Msg: "decision must be approve or reject"}
	ErrInvalidStatus   = &ValidationError{Msg: "unknown payment status"}
	ErrMissingProof    = &ValidationError{Msg: "proof image is required"}
	ErrMissingTitle    = &ValidationError{Msg: "title is required"}
	ErrMissingUser     = &ValidationError{Msg: "user id is required"}
	ErrInvalidStock    = &ValidationError{Msg: "stock must not be negative"}

	ErrProductNotFound      = &NotFoundError{Msg: "product not found"}
	ErrLineNotFound         = &NotFoundError{Msg: "product is not in the cart"}
	ErrPaymentNotFound      = &NotFoundError{Msg: "payment not found"}
	ErrNotificationNotFound = &NotFoundError{Msg: "notification not found"}

	ErrProductUnavailable = &ConflictError{Msg: "product is not available"}
	ErrInsufficientStock  = &ConflictError{Msg: "insufficient stock"}
	ErrInvalidTransition  = &ConflictError{Msg: "payment status does not allow this action"}
	ErrAlreadyVerified    = &ConflictError{Msg: "payment has already been verified"}
	ErrStockChanged       = &ConflictError{Msg: "stock changed since it was read"}
	ErrDuplicateRequest   = &ConflictError{Msg: "duplicate request"}
	ErrDuplicateProduct   = &ConflictError{Msg: "product already exists"}

	ErrNotOwner      = &AuthorizationError{Msg: "payment belongs to another user"}
	ErrAdminRequired = &AuthorizationError{Msg: "admin access required"}

	errCodesExhausted = errors.New("could not generate a unique code")
)

func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsConflictError(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsAuthorizationError(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}
