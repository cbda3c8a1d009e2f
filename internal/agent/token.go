package agent

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// SubjectFromToken extracts the user identity from the bearer token's
// claims. The token is NOT validated here - validation is the server's job
// and the agent treats it as an opaque credential; it only needs the
// subject to announce itself on the event channel.
func SubjectFromToken(tokenString string) (string, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims type in token")
	}

	for _, key := range []string{"user_id", "userId", "id"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, nil
		}
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}

	return "", errors.New("token carries no subject identity")
}
