package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notifyhub/whatsapp-dispatcher/internal/spreadsheet"
)

var checkFile string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a contacts spreadsheet",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkFile, "file", "f", "", "contacts spreadsheet (.xlsx or .csv)")
	_ = checkCmd.MarkFlagRequired("file")
}

func runCheck(cmd *cobra.Command, args []string) error {
	sheet, err := spreadsheet.Load(checkFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Colunas: %s\n", strings.Join(sheet.Headers, ", "))
	fmt.Fprintf(out, "Total de registros: %d\n", len(sheet.Contacts))
	fmt.Fprintf(out, "Registros válidos: %d\n", sheet.Eligible())
	if skipped := len(sheet.Contacts) - sheet.Eligible(); skipped > 0 {
		fmt.Fprintf(out, "Registros incompletos (ignorados): %d\n", skipped)
	}
	return nil
}
