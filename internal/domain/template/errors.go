package template

import (
	"errors"
)

// ErrNoCredentials is returned when a string references {{ username }} or
// {{ password }} and the target has no credentials.
var ErrNoCredentials = errors.New("no creds")
