package model

type AuthenticateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ResetPasswordRequest struct {
	Email string `json:"email"`
}

type SetPasswordRequest struct {
	Email      string `json:"email"`
	ResetToken string `json:"reset_token"`
	Password   string `json:"password"`
}
