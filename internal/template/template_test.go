package template_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
	"github.com/notifyhub/whatsapp-dispatcher/internal/template"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		tmpl   string
		values map[string]string
		want   string
	}{
		{
			name:   "replaces every occurrence",
			tmpl:   "$A$ and $A$",
			values: map[string]string{"A": "x"},
			want:   "x and x",
		},
		{
			name:   "unknown placeholders stay",
			tmpl:   "$A$ $B$",
			values: map[string]string{"A": "x"},
			want:   "x $B$",
		},
		{
			name:   "nil values leave template unchanged",
			tmpl:   "Hello $NOME_PESSOA$",
			values: nil,
			want:   "Hello $NOME_PESSOA$",
		},
		{
			name:   "bare key without markers is not replaced",
			tmpl:   "EMPRESA $EMPRESA$",
			values: map[string]string{"EMPRESA": "Acme"},
			want:   "EMPRESA Acme",
		},
		{
			name:   "empty value removes marker",
			tmpl:   "a$X$b",
			values: map[string]string{"X": ""},
			want:   "ab",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, template.Render(tc.tmpl, tc.values))
		})
	}
}

func TestRender_IdempotentAfterFullSubstitution(t *testing.T) {
	values := map[string]string{
		template.PersonName: "Maria Silva",
		template.SenderName: "João",
		template.Company:    "Acme Corp",
		template.Greeting:   "Bom dia",
		template.RoleNoun:   "Estagiária",
		template.Ending:     "a",
	}

	once := template.Render(template.DefaultTemplate, values)
	twice := template.Render(once, values)

	assert.Equal(t, once, twice)
	assert.Empty(t, template.Unresolved(once))
}

func TestRender_OrderIndependent(t *testing.T) {
	tmpl := "$SAUDACAO$, $NOME_PESSOA$ from $EMPRESA$"
	a := template.Render(tmpl, map[string]string{"SAUDACAO": "Oi", "NOME_PESSOA": "Ana", "EMPRESA": "X"})
	b := template.Render(tmpl, map[string]string{"EMPRESA": "X", "NOME_PESSOA": "Ana", "SAUDACAO": "Oi"})
	assert.Equal(t, a, b)
	assert.Equal(t, "Oi, Ana from X", a)
}

func TestUnresolved(t *testing.T) {
	got := template.Unresolved("$A$ $B$ $A$ plain $ text")
	assert.Equal(t, []string{"A", "B"}, got)
}

func TestGreetingFor(t *testing.T) {
	tests := []struct {
		hour int
		want domain.Greeting
	}{
		{0, domain.GreetingEvening},
		{4, domain.GreetingEvening},
		{5, domain.GreetingMorning},
		{9, domain.GreetingMorning},
		{11, domain.GreetingMorning},
		{12, domain.GreetingAfternoon},
		{14, domain.GreetingAfternoon},
		{17, domain.GreetingAfternoon},
		{18, domain.GreetingEvening},
		{20, domain.GreetingEvening},
		{23, domain.GreetingEvening},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, template.GreetingFor(tc.hour), "hour %d", tc.hour)
	}
}

func TestFormsFor(t *testing.T) {
	assert.Equal(t, template.GenderForms{RoleNoun: "Estagiário", Ending: "o"}, template.FormsFor(domain.GenderMasculine))
	assert.Equal(t, template.GenderForms{RoleNoun: "Estagiária", Ending: "a"}, template.FormsFor(domain.GenderFeminine))
	assert.Equal(t, template.GenderForms{RoleNoun: "Estagiária", Ending: "a"}, template.FormsFor(""))
}

func TestParseGender(t *testing.T) {
	for _, s := range []string{"M", "m", " masculino ", "Masculine"} {
		assert.Equal(t, domain.GenderMasculine, template.ParseGender(s), s)
	}
	for _, s := range []string{"F", "", "feminino", "other"} {
		assert.Equal(t, domain.GenderFeminine, template.ParseGender(s), s)
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path yields default", func(t *testing.T) {
		got, err := template.Load("")
		require.NoError(t, err)
		assert.Equal(t, template.DefaultTemplate, got)
	})

	t.Run("reads custom file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "msg.txt")
		require.NoError(t, os.WriteFile(path, []byte("Olá $NOME_PESSOA$"), 0o600))

		got, err := template.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "Olá $NOME_PESSOA$", got)
	})

	t.Run("empty file rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.txt")
		require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

		_, err := template.Load(path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := template.Load(filepath.Join(t.TempDir(), "nope.txt"))
		require.Error(t, err)
	})
}

func TestDefaultTemplate_HasAllPlaceholders(t *testing.T) {
	got := template.Unresolved(template.DefaultTemplate)
	assert.ElementsMatch(t, []string{
		template.Greeting, template.PersonName, template.SenderName,
		template.RoleNoun, template.Ending, template.Company,
	}, got)
}
