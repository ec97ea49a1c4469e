// Package export renders flat rosters and reports for download.
package export

import (
	"encoding/csv"
	"io"

	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
)

// utf8BOM makes spreadsheet tools detect UTF-8 so non-ASCII names survive.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a header plus rows of equal width.
type Table struct {
	Header []string
	Rows   [][]string
}

// WriteCSV writes the table as RFC 4180 CSV prefixed with a UTF-8 BOM.
func WriteCSV(w io.Writer, t Table) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// CredentialRoster lists freshly issued passwords for distribution.
func CredentialRoster(creds []userdomain.Credential) Table {
	t := Table{Header: []string{"name", "username", "password", "role", "department"}}
	for _, c := range creds {
		t.Rows = append(t.Rows, []string{c.Name, c.Username, c.Password, string(c.Role), c.Department})
	}
	return t
}
