package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractForm_HiddenFields(t *testing.T) {
	html := `<html><body>
		<form method="post" action="/x">
			<input type="hidden" name="a" value="1"/>
			<input type="hidden" name="b" value="2"/>
			<input type="text" name="visible" value="ignored"/>
		</form>
	</body></html>`

	form := ExtractForm(html)

	assert.Equal(t, "/x", form.Action)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, form.Fields)
}

func TestExtractForm_NoForm(t *testing.T) {
	form := ExtractForm(`<html><body><p>nothing here</p></body></html>`)

	assert.Empty(t, form.Action)
	assert.Empty(t, form.Fields)
}

func TestExtractForm_FormWithoutAction(t *testing.T) {
	form := ExtractForm(`<form><input type="hidden" name="code" value="abc"/></form>`)

	assert.Empty(t, form.Action)
	assert.Equal(t, map[string]string{"code": "abc"}, form.Fields)
}

func TestExtractForm_FirstFormWins(t *testing.T) {
	html := `
		<form action="/first"><input type="hidden" name="code" value="abc"/></form>
		<form action="/second"><input type="hidden" name="other" value="def"/></form>`

	form := ExtractForm(html)

	assert.Equal(t, "/first", form.Action)
	assert.Equal(t, map[string]string{"code": "abc"}, form.Fields)
}

func TestExtractForm_NamelessHiddenInputSkipped(t *testing.T) {
	html := `<form action="/x"><input type="hidden" value="orphan"/><input type="hidden" name="ok" value="1"/></form>`

	form := ExtractForm(html)

	assert.Equal(t, map[string]string{"ok": "1"}, form.Fields)
}

func TestExtractForm_MalformedHTML(t *testing.T) {
	// The HTML parser drops the unterminated input tag; extraction still
	// yields the form action and an empty field map instead of failing.
	form := ExtractForm(`<form action="/x"><input type="hidden" name="a" value="1"`)

	assert.Equal(t, "/x", form.Action)
	assert.Empty(t, form.Fields)
}
