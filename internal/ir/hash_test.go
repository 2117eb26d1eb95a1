package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterminism(t *testing.T) {
	v := IRObject{
		"kind":   IRString("member"),
		"member": IRString("Name"),
	}

	fp1, err := Fingerprint(DomainExpression, v)
	require.NoError(t, err)
	fp2, err := Fingerprint(DomainExpression, v)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2, "Fingerprint must be deterministic")
	assert.Len(t, fp1, 64, "SHA-256 hex is 64 characters")
}

func TestFingerprintDomainSeparation(t *testing.T) {
	v := IRArray{IRString("q")}

	expr, err := Fingerprint(DomainExpression, v)
	require.NoError(t, err)
	query, err := Fingerprint(DomainQuery, v)
	require.NoError(t, err)

	assert.NotEqual(t, expr, query, "Different domains should produce different fingerprints")
}

func TestFingerprintKeyOrderIrrelevant(t *testing.T) {
	a := IRObject{"a": IRInt(1), "b": IRInt(2)}
	b := IRObject{"b": IRInt(2), "a": IRInt(1)}

	fa, err := Fingerprint(DomainExpression, a)
	require.NoError(t, err)
	fb, err := Fingerprint(DomainExpression, b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestFingerprintRejectsNull(t *testing.T) {
	_, err := Fingerprint(DomainExpression, IRNull{})
	assert.Error(t, err)
}
