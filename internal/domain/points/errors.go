package points

import "errors"

var (
	ErrSelfCompliment = errors.New("cannot compliment yourself")
	ErrOutOfScope     = errors.New("account belongs to another company")
	ErrNoCompany      = errors.New("caller has no company")
)
