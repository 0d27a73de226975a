package pipeline

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func jwtClock(at time.Time) jwt.ParserOption {
	return jwt.WithTimeFunc(func() time.Time { return at })
}
