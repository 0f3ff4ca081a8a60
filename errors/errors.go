package errors

import "fmt"

var (
	ErrEmptyContent     = fmt.Errorf("message content is empty")
	ErrMessageNotFound  = fmt.Errorf("message not found")
	ErrNotOwner         = fmt.Errorf("message belongs to another sender")
	ErrNotJoined        = fmt.Errorf("no room joined")
	ErrInvalidToken     = fmt.Errorf("invalid or expired token")
	ErrMalformedPayload = fmt.Errorf("malformed event payload")
)
