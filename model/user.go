package model

// Credentials is the body of both /login and /register.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisteredUser is returned by /register.
type RegisteredUser struct {
	ID       int64  `json:"user_id"`
	Username string `json:"username"`
}
