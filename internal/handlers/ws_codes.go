package handlers

// Custom WebSocket close codes for the connect endpoint. These give clients
// a more specific reason for closure than the standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Provided player token was invalid or expired.
	ConnectionReplaced    = 3002 // A newer connection for the same player superseded this one.
)
