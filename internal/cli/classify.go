package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/classify"
	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

func newClassifyCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify [message...]",
		Short: "Classify a dev server error message",
		Long:  "classify maps a raw dev server error to a failure kind and a suggested fix. The message is read from stdin when no arguments are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				raw = string(data)
			}
			if strings.TrimSpace(raw) == "" {
				return errors.New("no error message given")
			}
			return a.printFailure(classify.Classify(raw), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the classification as JSON")
	return cmd
}

func (a *app) printFailure(f classify.Failure, asJSON bool) error {
	if asJSON {
		data, err := sonic.MarshalIndent(f, "", "  ")
		if err != nil {
			return fmt.Errorf("encode failure: %w", err)
		}
		a.printf("%s\n", data)
		return nil
	}

	a.printf("Kind:    %s\n", f.Kind)
	a.printf("Message: %s\n", f.UserMessage)
	if f.SuggestedAction != "" {
		a.printf("Action:  %s\n", f.SuggestedAction)
	}
	switch {
	case f.Module != "":
		a.printf("Module:  %s\n", f.Module)
	case f.ImportPath != "":
		a.printf("Import:  %s\n", f.ImportPath)
	}
	if f.Location != "" {
		a.printf("At:      %s\n", f.Location)
	}
	return nil
}
