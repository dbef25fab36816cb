package infra

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier("secret")
	raw, err := v.Sign("driver-1", "driver")
	require.NoError(t, err)

	tok, err := v.VerifyIDToken(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "driver-1", tok.UID)
	assert.Equal(t, "driver", tok.Claims["role"])
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier("secret")

	other, err := NewJWTVerifier("other").Sign("u", "passenger")
	require.NoError(t, err)
	_, err = v.VerifyIDToken(context.Background(), other)
	assert.Error(t, err, "wrong secret")

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "driver"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.VerifyIDToken(context.Background(), noSub)
	assert.ErrorIs(t, err, errNoSubject)

	_, err = v.VerifyIDToken(context.Background(), "not-a-token")
	assert.Error(t, err)
}

func TestSQLSplitting(t *testing.T) {
	in := "-- header\nCREATE TABLE a (x INT);\n\n  -- note\nCREATE INDEX i ON a (x);\n"
	stmts := splitSQL(stripSQLComments(in))
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, stmts)
}

func TestNewLogger_Level(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger("shouting").GetLevel())
}
