package spreadsheet_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
	"github.com/notifyhub/whatsapp-dispatcher/internal/spreadsheet"
)

func writeXLSX(t *testing.T, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cellRef, &r))
	}

	path := filepath.Join(t.TempDir(), "contatos.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoad_XLSX(t *testing.T) {
	path := writeXLSX(t, [][]any{
		{" nome ", "TELEFONE", "empresa", "Observação"},
		{"maria silva", 11999998888, "acme corp", "vip"},
		{"joão", "(21) 98888-7777", "", ""},
	})

	sheet, err := spreadsheet.Load(path)
	require.NoError(t, err)

	require.Len(t, sheet.Contacts, 2)
	assert.Equal(t, domain.Contact{Name: "maria silva", Phone: "11999998888", Company: "acme corp"}, sheet.Contacts[0])
	assert.Equal(t, "(21) 98888-7777", sheet.Contacts[1].Phone)
	assert.Empty(t, sheet.Contacts[1].Company)
	assert.Equal(t, 1, sheet.Eligible())
	assert.Equal(t, []string{"Nome", "Telefone", "Empresa", "Observação"}, sheet.Headers)
}

func TestLoad_XLSX_MissingColumns(t *testing.T) {
	path := writeXLSX(t, [][]any{
		{"Nome", "Cidade"},
		{"maria", "SP"},
	})

	_, err := spreadsheet.Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingColumns))

	var mce *domain.MissingColumnsError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, []string{"Telefone", "Empresa"}, mce.Columns)
}

func TestLoadReader_CSV(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"comma separated", "Nome,Telefone,Empresa\nmaria silva,11999998888,acme corp\n"},
		{"semicolon separated", "Nome;Telefone;Empresa\nmaria silva;11999998888;acme corp\n"},
		{"utf-8 bom", "\ufeffNome,Telefone,Empresa\nmaria silva,11999998888,acme corp\n"},
		{"reordered columns", "empresa,nome,telefone\nacme corp,maria silva,11999998888\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sheet, err := spreadsheet.LoadReader(strings.NewReader(tc.data), ".csv")
			require.NoError(t, err)
			require.Len(t, sheet.Contacts, 1)
			assert.Equal(t, domain.Contact{Name: "maria silva", Phone: "11999998888", Company: "acme corp"}, sheet.Contacts[0])
		})
	}
}

func TestLoadReader_CSV_ShortRowsAndBlankLines(t *testing.T) {
	data := "Nome,Telefone,Empresa\nana,1199\n,,\nbeto,2198,beta\n"

	sheet, err := spreadsheet.LoadReader(strings.NewReader(data), ".CSV")
	require.NoError(t, err)
	require.Len(t, sheet.Contacts, 2)
	assert.Empty(t, sheet.Contacts[0].Company)
	assert.Equal(t, 1, sheet.Eligible())
}

func TestLoadReader_Errors(t *testing.T) {
	t.Run("unsupported extension", func(t *testing.T) {
		_, err := spreadsheet.LoadReader(strings.NewReader(""), ".ods")
		assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	})

	t.Run("corrupt xlsx", func(t *testing.T) {
		_, err := spreadsheet.LoadReader(strings.NewReader("not a zip"), ".xlsx")
		assert.ErrorIs(t, err, domain.ErrUnreadableSpreadsheet)
	})

	t.Run("empty csv", func(t *testing.T) {
		_, err := spreadsheet.LoadReader(strings.NewReader(""), ".csv")
		assert.ErrorIs(t, err, domain.ErrMissingColumns)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := spreadsheet.Load(filepath.Join(t.TempDir(), "nope.xlsx"))
		assert.ErrorIs(t, err, domain.ErrUnreadableSpreadsheet)
		assert.True(t, domain.IsValidation(err))
	})
}
