package auth

// LoginInput represents the request body for account holder authentication.
type LoginInput struct {
	Contact    string `json:"contact" validate:"required"`
	Credential string `json:"credential" validate:"required"`
}
