package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
	"github.com/notifyhub/whatsapp-dispatcher/internal/service"
	"github.com/notifyhub/whatsapp-dispatcher/internal/spreadsheet"
	"github.com/notifyhub/whatsapp-dispatcher/internal/template"
)

var sendFlags struct {
	file   string
	sender string
	gender string
	dryRun bool
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send the message to every contact of a spreadsheet",
	Long: `Send loads the spreadsheet, opens one WhatsApp session and sends the
personalised message to each eligible contact in order, printing progress.
Ctrl+C stops after the message being sent; a second Ctrl+C aborts it.`,
	RunE: runSend,
}

func init() {
	f := sendCmd.Flags()
	f.StringVarP(&sendFlags.file, "file", "f", "", "contacts spreadsheet (.xlsx or .csv)")
	f.StringVarP(&sendFlags.sender, "sender", "s", "", "sender name used in the message")
	f.StringVarP(&sendFlags.gender, "gender", "g", "F", "sender gender: F or M")
	f.BoolVar(&sendFlags.dryRun, "dry-run", false, "render and pace messages without sending them")
	_ = sendCmd.MarkFlagRequired("file")
	_ = sendCmd.MarkFlagRequired("sender")
}

func runSend(cmd *cobra.Command, args []string) error {
	sheet, err := spreadsheet.Load(sendFlags.file)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, sendFlags.dryRun)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Total de registros: %d (válidos: %d)\n", len(sheet.Contacts), sheet.Eligible())

	run, err := a.svc.Start(ctx, service.StartRunRequest{
		Contacts:   sheet.Contacts,
		SenderName: sendFlags.sender,
		Gender:     template.ParseGender(sendFlags.gender),
	})
	if err != nil {
		return err
	}

	events, unsubscribe, err := a.svc.Subscribe(run.ID)
	if err != nil {
		return err
	}
	defer unsubscribe()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	interrupts := 0
	for events != nil {
		select {
		case p, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			printProgress(out, p)
		case <-sigs:
			interrupts++
			if interrupts == 1 {
				fmt.Fprintln(out, "Cancelando após o envio atual... (Ctrl+C novamente para interromper)")
				if err := a.svc.Cancel(ctx, run.ID); err != nil {
					a.logger.Sugar().Warnw("cancel failed", "error", err)
				}
				continue
			}
			fmt.Fprintln(out, "Interrompendo o envio atual...")
			aborted, abort := context.WithCancel(ctx)
			abort()
			go func() { _ = a.svc.Shutdown(aborted) }()
		}
	}

	final, err := a.svc.Wait(ctx, run.ID)
	if err != nil {
		return err
	}
	if final.Status == domain.RunFailed {
		if final.Error != nil {
			return fmt.Errorf("envio falhou: %s", *final.Error)
		}
		return fmt.Errorf("envio falhou")
	}
	return nil
}

func printProgress(w io.Writer, p domain.Progress) {
	mark := " "
	if !p.OK {
		mark = "!"
	}
	fmt.Fprintf(w, "%s [%3.0f%%] %d/%d %s\n", mark, p.Fraction()*100, p.Current, p.Total, p.Message)
}
