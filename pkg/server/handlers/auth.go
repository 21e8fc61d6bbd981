package handlers

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mnohosten/flamestore/pkg/value"
)

// ownerToken is the emulator's admin bearer token. Requests carrying it
// bypass security rules entirely, matching client SDK test helpers.
const ownerToken = "owner"

// callerIdentity is the decoded authentication state of one request
type callerIdentity struct {
	// Owner is true for the admin bypass token.
	Owner bool
	// Auth is the request.auth record, or nil for anonymous callers.
	Auth *value.Value
}

// identityFromRequest decodes the Authorization header. Tokens are
// parsed without signature verification, the emulator trusts any
// well-formed JWT.
func identityFromRequest(r *http.Request) callerIdentity {
	header := r.Header.Get("Authorization")
	if header == "" {
		return callerIdentity{}
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return callerIdentity{}
	}
	raw = strings.TrimSpace(raw)
	if raw == ownerToken {
		return callerIdentity{Owner: true}
	}

	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return callerIdentity{}
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return callerIdentity{}
	}
	return callerIdentity{Auth: authRecord(claims)}
}

// authRecord builds the request.auth value: the caller uid plus the
// full token claims.
func authRecord(claims jwt.MapClaims) *value.Value {
	uid := ""
	if s, ok := claims["user_id"].(string); ok {
		uid = s
	} else if s, ok := claims["sub"].(string); ok {
		uid = s
	}
	return value.MapVal(map[string]*value.Value{
		"uid":   value.String(uid),
		"token": claimValue(map[string]interface{}(claims)),
	})
}

// claimValue converts a decoded JSON claim into a rules value
func claimValue(v interface{}) *value.Value {
	switch c := v.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Boolean(c)
	case string:
		return value.String(c)
	case float64:
		if c == float64(int64(c)) {
			return value.Integer(int64(c))
		}
		return value.Double(c)
	case []interface{}:
		elems := make([]*value.Value, 0, len(c))
		for _, e := range c {
			elems = append(elems, claimValue(e))
		}
		return value.ArrayVal(elems...)
	case map[string]interface{}:
		fields := make(map[string]*value.Value, len(c))
		for k, e := range c {
			fields[k] = claimValue(e)
		}
		return value.MapVal(fields)
	default:
		return value.Null()
	}
}
