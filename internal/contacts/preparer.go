package contacts

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
	"github.com/notifyhub/whatsapp-dispatcher/internal/template"
)

// TitleCase trims s and capitalises the first letter of every run of
// letters, lower-casing the rest ("maria SILVA " → "Maria Silva"). Any
// non-letter starts a new word, so "d'ávila s.a." becomes "D'Ávila S.A.".
func TitleCase(s string) string {
	s = strings.TrimSpace(s)
	// A Caser keeps state between calls, so each call gets its own.
	caser := cases.Title(language.BrazilianPortuguese)

	var b strings.Builder
	b.Grow(len(s))
	start, inWord := 0, false
	flush := func(end int) {
		if inWord {
			b.WriteString(caser.String(s[start:end]))
		} else {
			b.WriteString(s[start:end])
		}
	}
	for i, r := range s {
		letter := unicode.IsLetter(r) || unicode.Is(unicode.Mn, r)
		if letter != inWord {
			flush(i)
			start, inWord = i, letter
		}
	}
	flush(len(s))
	return b.String()
}

// Prepare renders one message per complete row, in input order.
// Rows missing a name, phone or company are skipped without error.
// Name, company and sender name are trimmed and title-cased; the phone is
// passed through untouched and normalised only at send time.
func Prepare(rows []domain.Contact, rc domain.RenderContext, tmpl string) []domain.PreparedMessage {
	rc.SenderName = TitleCase(rc.SenderName)
	shared := template.SharedValues(rc)

	out := make([]domain.PreparedMessage, 0, len(rows))
	for _, row := range rows {
		if !row.Complete() {
			continue
		}

		name := TitleCase(row.Name)
		company := TitleCase(row.Company)

		values := make(map[string]string, len(shared)+2)
		for k, v := range shared {
			values[k] = v
		}
		values[template.PersonName] = name
		values[template.Company] = company

		out = append(out, domain.PreparedMessage{
			Name:  name,
			Phone: row.Phone,
			Text:  template.Render(tmpl, values),
		})
	}
	return out
}

// CountEligible returns how many rows Prepare would emit.
func CountEligible(rows []domain.Contact) int {
	n := 0
	for _, row := range rows {
		if row.Complete() {
			n++
		}
	}
	return n
}

// Preview renders the run-wide values into tmpl and leaves the per-contact
// placeholders visible. A blank sender keeps its placeholder too.
func Preview(tmpl string, rc domain.RenderContext) string {
	values := template.SharedValues(rc)
	if sender := TitleCase(rc.SenderName); sender != "" {
		values[template.SenderName] = sender
	} else {
		delete(values, template.SenderName)
	}
	return template.Render(tmpl, values)
}
