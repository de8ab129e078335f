package cli

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/classify"
	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/storage"
	"github.com/spf13/cobra"
)

func newLastErrorCommand(a *app) *cobra.Command {
	var (
		asJSON bool
		reset  bool
	)
	cmd := &cobra.Command{
		Use:   "last-error",
		Short: "Show the last persisted dev server failure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			slot := storage.NewFailureSlot(store)
			if reset {
				return slot.Clear(ctx)
			}
			rec, err := slot.Load(ctx)
			if err != nil {
				return err
			}
			if rec == nil {
				a.printf("No failure recorded.\n")
				return nil
			}
			if !asJSON {
				a.printf("Project: %s (%s)\n", rec.ProjectID, rec.At.Format(time.RFC3339))
			}
			return a.printFailure(classify.Failure{
				Kind:            classify.Kind(rec.Kind),
				UserMessage:     rec.UserMessage,
				SuggestedAction: rec.SuggestedAction,
				Raw:             rec.Raw,
			}, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the record as JSON")
	cmd.Flags().BoolVar(&reset, "clear", false, "Clear the slot instead of printing it")
	return cmd
}
