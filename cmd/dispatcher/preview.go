package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/notifyhub/whatsapp-dispatcher/internal/contacts"
	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
	"github.com/notifyhub/whatsapp-dispatcher/internal/template"
)

var previewFlags struct {
	sender string
	gender string
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the message as it would be sent right now",
	RunE:  runPreview,
}

func init() {
	previewCmd.Flags().StringVarP(&previewFlags.sender, "sender", "s", "", "sender name used in the message")
	previewCmd.Flags().StringVarP(&previewFlags.gender, "gender", "g", "F", "sender gender: F or M")
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tmpl, err := template.Load(cfg.TemplateFile)
	if err != nil {
		return fmt.Errorf("load message template: %w", err)
	}

	rc := domain.RenderContext{
		Greeting:   template.GreetingFor(time.Now().Hour()),
		SenderName: previewFlags.sender,
		Gender:     template.ParseGender(previewFlags.gender),
	}
	fmt.Fprintln(cmd.OutOrStdout(), contacts.Preview(tmpl, rc))
	return nil
}
