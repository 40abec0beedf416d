// Package apitypes provides request and response types for the reelvault
// HTTP API.
package apitypes

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse represents a confirmation response.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CreateDownloadRequest is the body of POST /api/downloads.
type CreateDownloadRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	FirstName      string `json:"firstName" validate:"required"`
	LastName       string `json:"lastName" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	Auth0ID        string `json:"auth0Id" validate:"required"`
	Phone          string `json:"phone"`
	ProfilePicture string `json:"profilePicture" validate:"omitempty,url"`
	Role           string `json:"role" validate:"omitempty,oneof=admin user"`
}

// UpdateUserRequest is the body of PATCH /api/users/:id.
// Nil fields are left untouched.
type UpdateUserRequest struct {
	FirstName      *string `json:"firstName"`
	LastName       *string `json:"lastName"`
	Email          *string `json:"email" validate:"omitempty,email"`
	Phone          *string `json:"phone"`
	ProfilePicture *string `json:"profilePicture" validate:"omitempty,url"`
	Role           *string `json:"role" validate:"omitempty,oneof=admin user"`
}
