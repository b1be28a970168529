package models

// Routine is a named training plan. Exercises is only populated by the
// detail endpoint; list and search endpoints return summaries.
type Routine struct {
	ID          int        `json:"id"`
	Name        string     `json:"nombre"`
	Description *string    `json:"descripcion"`
	CreatedAt   *Timestamp `json:"fecha_creacion,omitempty"`
	Exercises   []Exercise `json:"ejercicios,omitempty"`
}

// DescriptionText returns the description or "" when unset.
func (r Routine) DescriptionText() string {
	if r.Description == nil {
		return ""
	}
	return *r.Description
}

// RoutineInput is the body accepted by create and update.
type RoutineInput struct {
	Name        string  `json:"nombre"`
	Description *string `json:"descripcion"`
}

// Page is one page of the paginated routine listing.
type Page struct {
	Items      []Routine `json:"items"`
	TotalItems int       `json:"total_items"`
	Number     int       `json:"pagina"`
	PageSize   int       `json:"tamano_pagina"`
	TotalPages int       `json:"total_paginas"`
}

// Profile is the registration payload.
type Profile struct {
	Name     string `json:"nombre"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PublicUser is the account as returned by the service, without credentials.
type PublicUser struct {
	ID    int    `json:"id"`
	Name  string `json:"nombre"`
	Email string `json:"email"`
}

// Token is the login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
