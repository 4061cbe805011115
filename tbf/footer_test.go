package tbf_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/tbf"
)

func TestFooterEncodeParseRoundTrip(t *testing.T) {
	f := &tbf.Footer{Credentials: []tbf.Credential{
		{Kind: tbf.CredentialSha256, Data: make([]byte, 32)},
		{Kind: tbf.CredentialCleartextId, Data: []byte{1, 2, 3, 4}},
	}}
	raw := f.Encode()
	require.Len(t, raw, f.Size())

	got, err := tbf.ParseFooter(raw, 0, len(raw))
	require.NoError(t, err)
	require.Len(t, got.Credentials, 2)
	require.Equal(t, tbf.CredentialSha256, got.Credentials[0].Kind)
}

func TestParseFooterLeftoverBytesIsError(t *testing.T) {
	f := &tbf.Footer{Credentials: []tbf.Credential{{Kind: tbf.CredentialSha256, Data: make([]byte, 32)}}}
	raw := f.Encode()
	raw = append(raw, 0x00) // one stray trailing byte

	_, err := tbf.ParseFooter(raw, 0, len(raw))
	require.Error(t, err)
}

func TestParseFooterWrongLengthForFixedKind(t *testing.T) {
	raw := append([]byte{byte(tbf.CredentialSha256), 0, 16, 0}, make([]byte, 16)...)
	_, err := tbf.ParseFooter(raw, 0, len(raw))
	require.Error(t, err)
}

func TestFindAndDeleteCredential(t *testing.T) {
	f := &tbf.Footer{Credentials: []tbf.Credential{
		{Kind: tbf.CredentialSha256, Data: make([]byte, 32)},
	}}
	require.NotNil(t, f.FindCredential(tbf.CredentialSha256))
	require.True(t, f.DeleteCredential(tbf.CredentialSha256))
	require.Nil(t, f.FindCredential(tbf.CredentialSha256))
	require.False(t, f.DeleteCredential(tbf.CredentialSha256))
}

func TestIntegrityBlob(t *testing.T) {
	app := make([]byte, 100)
	blob, err := tbf.IntegrityBlob(app, 80)
	require.NoError(t, err)
	require.Len(t, blob, 80)

	_, err = tbf.IntegrityBlob(app, 200)
	require.Error(t, err)
}
