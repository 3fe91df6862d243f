package domain

// Principal is the authenticated caller of a request.
type Principal struct {
	ID      string
	Email   string
	IsAdmin bool
}
