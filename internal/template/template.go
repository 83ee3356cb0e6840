// Package template fills the outreach message with per-run and per-contact values.
//
// Placeholders are written as $NAME$. Rendering is a single pass over the
// template, so the order in which keys are supplied never changes the result.
package template

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
)

// Placeholder names understood by the default message.
const (
	PersonName = "NOME_PESSOA"
	SenderName = "NOME_REMETENTE"
	Company    = "EMPRESA"
	Greeting   = "SAUDACAO"
	RoleNoun   = "GENERO_ESTAGIARIO"
	Ending     = "GENERO_O_A"
)

//go:embed default.txt
var DefaultTemplate string

var placeholderRe = regexp.MustCompile(`\$([A-Z_]+)\$`)

// Marker returns the literal text that stands for key inside a template.
func Marker(key string) string {
	return "$" + key + "$"
}

// Render replaces every marker whose key is present in values.
// Markers without a value are left untouched.
func Render(tmpl string, values map[string]string) string {
	if len(values) == 0 {
		return tmpl
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, Marker(k), values[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Unresolved lists the distinct placeholder keys still present in text.
func Unresolved(text string) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		keys = append(keys, m[1])
	}
	return keys
}

// Load reads a custom template from path. An empty path yields DefaultTemplate.
func Load(path string) (string, error) {
	if path == "" {
		return DefaultTemplate, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", fmt.Errorf("template %s is empty", path)
	}
	return string(b), nil
}

// GreetingFor maps a wall-clock hour to the salutation in use at that time.
//
//	05:00-11:59 → Bom dia
//	12:00-17:59 → Boa tarde
//	otherwise   → Boa noite
func GreetingFor(hour int) domain.Greeting {
	switch {
	case hour >= 5 && hour < 12:
		return domain.GreetingMorning
	case hour >= 12 && hour < 18:
		return domain.GreetingAfternoon
	default:
		return domain.GreetingEvening
	}
}

// GenderForms are the words that change with the sender's gender.
type GenderForms struct {
	RoleNoun string
	Ending   string
}

// FormsFor returns the gendered forms for g. Anything other than masculine
// gets the feminine forms.
func FormsFor(g domain.Gender) GenderForms {
	if g == domain.GenderMasculine {
		return GenderForms{RoleNoun: "Estagiário", Ending: "o"}
	}
	return GenderForms{RoleNoun: "Estagiária", Ending: "a"}
}

// ParseGender accepts "M", "masculine", "masculino" (any case) as masculine
// and falls back to feminine for everything else.
func ParseGender(s string) domain.Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "masculine", "masculino":
		return domain.GenderMasculine
	default:
		return domain.GenderFeminine
	}
}

// SharedValues returns the placeholder values common to every contact of a run.
// senderName is used as given; callers normalise it first.
func SharedValues(rc domain.RenderContext) map[string]string {
	forms := FormsFor(rc.Gender)
	return map[string]string{
		SenderName: rc.SenderName,
		Greeting:   string(rc.Greeting),
		RoleNoun:   forms.RoleNoun,
		Ending:     forms.Ending,
	}
}
