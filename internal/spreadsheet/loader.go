// Package spreadsheet reads contact lists from .xlsx and .csv files.
//
// The first row is the header. Header cells are trimmed and title-cased
// before matching, so "nome", " NOME " and "Nome" all satisfy the Nome
// column. Extra columns are ignored.
package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/notifyhub/whatsapp-dispatcher/internal/contacts"
	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
)

// Required header names after normalisation.
const (
	ColumnName    = "Nome"
	ColumnPhone   = "Telefone"
	ColumnCompany = "Empresa"
)

var requiredColumns = []string{ColumnName, ColumnPhone, ColumnCompany}

// Sheet is the parsed content of one spreadsheet.
type Sheet struct {
	// Contacts holds one entry per data row, including incomplete ones.
	Contacts []domain.Contact
	// Headers are the normalised header names in file order.
	Headers []string
}

// Eligible counts the rows that carry all required fields.
func (s *Sheet) Eligible() int {
	return contacts.CountEligible(s.Contacts)
}

// Load opens path and parses it according to its extension.
func Load(path string) (*Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreadableSpreadsheet, err)
	}
	defer f.Close()

	return LoadReader(f, filepath.Ext(path))
}

// LoadReader parses r as the format named by ext (".xlsx" or ".csv").
func LoadReader(r io.Reader, ext string) (*Sheet, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(ext) {
	case ".xlsx":
		rows, err = readXLSX(r)
	case ".csv":
		rows, err = readCSV(r)
	default:
		return nil, fmt.Errorf("%w (got %q)", domain.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreadableSpreadsheet, err)
	}
	return parseRows(rows)
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	// Raw values keep long phone numbers from being rendered in
	// scientific notation by the cell's number format.
	return f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
}

func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if first, _, _ := bytes.Cut(data, []byte("\n")); bytes.Count(first, []byte(";")) > bytes.Count(first, []byte(",")) {
		cr.Comma = ';'
	}
	return cr.ReadAll()
}

func parseRows(rows [][]string) (*Sheet, error) {
	if len(rows) == 0 {
		return nil, &domain.MissingColumnsError{Columns: append([]string(nil), requiredColumns...)}
	}

	headers := make([]string, len(rows[0]))
	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = contacts.TitleCase(h)
		if _, dup := index[headers[i]]; !dup {
			index[headers[i]] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.MissingColumnsError{Columns: missing}
	}

	sheet := &Sheet{Headers: headers, Contacts: make([]domain.Contact, 0, len(rows)-1)}
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		sheet.Contacts = append(sheet.Contacts, domain.Contact{
			Name:    cell(row, index[ColumnName]),
			Phone:   cell(row, index[ColumnPhone]),
			Company: cell(row, index[ColumnCompany]),
		})
	}
	return sheet, nil
}

// cell tolerates short rows: trailing empty cells are often omitted.
func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
