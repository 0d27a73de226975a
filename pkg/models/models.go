package models

const TokenTypeBearer = "Bearer"

// TokenRequest is the body of POST /auth/token.
type TokenRequest struct {
	CiphertextB64 string `json:"ciphertext_b64"`
}

// AuthPayload is the plaintext a client encrypts under the server's public
// key before base64-encoding it into TokenRequest.
type AuthPayload struct {
	Username  string  `json:"username"`
	Password  string  `json:"password"`
	TS        int64   `json:"ts"`
	SSHPubKey *string `json:"ssh_pubkey,omitempty"`
}

type TokenResponse struct {
	AccessToken    string  `json:"access_token"`
	TokenType      string  `json:"token_type"`
	ExpiresIn      int64   `json:"expires_in"`
	SSHUserCert    *string `json:"ssh_user_cert,omitempty"`
	SSHUserCertExp *int64  `json:"ssh_user_cert_exp,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
