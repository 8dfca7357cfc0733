package session

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Form is the submission target and hidden fields of an HTML form, as found
// in the identity provider's auto-submit authorization-code page.
type Form struct {
	Action string
	Fields map[string]string
}

// ExtractForm locates the first form element in the document and collects
// its hidden inputs. Missing form or action yields an empty Action, never an
// error; the caller decides whether that is fatal.
func ExtractForm(htmlBody string) Form {
	form := Form{Fields: make(map[string]string)}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return form
	}

	formSel := doc.Find("form").First()
	if formSel.Length() == 0 {
		return form
	}

	if action, ok := formSel.Attr("action"); ok {
		form.Action = action
	}

	formSel.Find(`input[type="hidden"]`).Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := input.Attr("value")
		form.Fields[name] = value
	})

	return form
}
