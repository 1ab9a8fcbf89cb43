package email

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plainEML = "From: Jennifer Lee <jennifer@company.com>\r\n" +
	"To: team@company.com\r\n" +
	"Subject: Q1 Deliverables\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Sarah - please finalize the report by March 20th.\r\n"

const multipartEML = `From: ops@company.com
Subject: =?utf-8?q?Server_migration?=
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="XYZ"

--XYZ
Content-Type: text/html; charset=utf-8

<p>Ignore <b>this</b></p>
--XYZ
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

Mike, please migrate the server by Friday.=20
--XYZ--
`

func TestParseEML(t *testing.T) {
	msg, err := Parse(strings.NewReader(plainEML))
	require.NoError(t, err)
	assert.Equal(t, "Q1 Deliverables", msg.Subject)
	assert.Equal(t, "jennifer@company.com", msg.From)
	assert.Equal(t, "Sarah - please finalize the report by March 20th.", msg.Body)
	assert.Equal(t, "Subject: Q1 Deliverables\n\nSarah - please finalize the report by March 20th.", msg.Text())
}

func TestParseMultipartPrefersPlainText(t *testing.T) {
	msg, err := Parse(strings.NewReader(multipartEML))
	require.NoError(t, err)
	assert.Equal(t, "Server migration", msg.Subject)
	assert.Equal(t, "ops@company.com", msg.From)
	assert.Equal(t, "Mike, please migrate the server by Friday.", msg.Body)
}

func TestParsePlainText(t *testing.T) {
	msg, err := Parse(strings.NewReader("\n  Hi team,\nplease send the deck.\n"))
	require.NoError(t, err)
	assert.Empty(t, msg.Subject)
	assert.Empty(t, msg.From)
	assert.Equal(t, "Hi team,\nplease send the deck.", msg.Body)
	assert.Equal(t, msg.Body, msg.Text())
}

func TestParseSampleStaysPlainText(t *testing.T) {
	msg, err := Parse(strings.NewReader(SampleBody))
	require.NoError(t, err)
	assert.Equal(t, SampleBody, msg.Body)
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse(strings.NewReader("   \n"))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.eml")
	require.NoError(t, os.WriteFile(path, []byte(plainEML), 0o600))
	msg, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jennifer@company.com", msg.From)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.eml"))
	assert.Error(t, err)
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("note.TXT"))
	assert.True(t, IsSupported("mail.eml"))
	assert.False(t, IsSupported("mail.pdf"))
}

func TestSample(t *testing.T) {
	sample := Sample()
	assert.Equal(t, SampleSender, sample.From)
	assert.Contains(t, sample.Body, "Q1 Deliverables")
}

func TestParseHTMLOnly(t *testing.T) {
	raw := "From: tom@company.com\r\n" +
		"Subject: Report\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><head><title>Weekly</title><style>p{color:red}</style></head><body>" +
		"<p>Tom &amp; Jerry: please send the Q1 report&nbsp;by Friday</p>" +
		"<script>track()</script><p>Thanks</p></body></html>\r\n"
	msg, err := Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Tom & Jerry: please send the Q1 report by Friday\nThanks", msg.Body)
}

func TestParseMultipartHTMLFallback(t *testing.T) {
	raw := "From: ops@company.com\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"B\"\r\n" +
		"\r\n" +
		"--B\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<style>.x{}</style><div>Rotate the keys &lt;today&gt;</div>\r\n" +
		"--B--\r\n"
	msg, err := Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Rotate the keys <today>", msg.Body)
}

func TestParseLatin1(t *testing.T) {
	raw := "From: chef@company.com\r\n" +
		"Subject: Menu\r\n" +
		"Content-Type: text/plain; charset=ISO-8859-1\r\n" +
		"Content-Transfer-Encoding: 8bit\r\n" +
		"\r\n" +
		"Please review the caf\xe9 menu\r\n"
	msg, err := Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Please review the café menu", msg.Body)

	qp := strings.Replace(raw, "8bit", "quoted-printable", 1)
	qp = strings.Replace(qp, "caf\xe9", "caf=E9", 1)
	msg, err = Parse(strings.NewReader(qp))
	require.NoError(t, err)
	assert.Equal(t, "Please review the café menu", msg.Body)
}

func TestParseBase64WrappedLines(t *testing.T) {
	raw := "From: a@company.com\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"UGxlYXNlIHNoaXAg\r\n" +
		"dGhlIGJ1aWxkLg==\r\n"
	msg, err := Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Please ship the build.", msg.Body)
}
