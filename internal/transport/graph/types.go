// Package graph implements a Transport that delivers MIME messages through
// the Microsoft Graph sendMail endpoint.
package graph

// tokenResponse represents the OAuth2 token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// errorResponse represents an error response from the Graph API.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

// errorDetail represents the error detail in a Graph API error response.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
