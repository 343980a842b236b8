package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ensembleworks/ensemble/internal/config"
	"github.com/ensembleworks/ensemble/internal/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the event log of the most recent run",
	Long: `Events reads the JSONL event log written under the working directory and
prints one line per event, optionally filtered by movement or type.`,
	RunE: showEvents,
}

func init() {
	eventsCmd.Flags().String("workdir", "", "working directory of the run (default: current directory)")
	eventsCmd.Flags().String("movement", "", "only show events for this movement")
	eventsCmd.Flags().String("type", "", "only show events of this type (e.g. movement:complete)")
	rootCmd.AddCommand(eventsCmd)
}

func showEvents(cmd *cobra.Command, args []string) error {
	global, err := config.LoadFile(globalConfigPath())
	if err != nil {
		return err
	}
	project, err := config.LoadFile(projectConfigPath())
	if err != nil {
		return err
	}
	cfg := config.Merge(global, project)

	workDir, _ := cmd.Flags().GetString("workdir")
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
	}

	path := filepath.Join(resolveUnder(workDir, cfg.Run.EventsDir), events.DefaultFilename)
	evs, err := events.ReadEvents(path)
	if err != nil {
		return fmt.Errorf("failed to read event log: %w", err)
	}

	if movement, _ := cmd.Flags().GetString("movement"); movement != "" {
		evs = events.FilterByMovement(evs, movement)
	}
	if typ, _ := cmd.Flags().GetString("type"); typ != "" {
		evs = events.FilterByType(evs, events.EventType(typ))
	}

	if len(evs) == 0 {
		fmt.Println("No events found")
		return nil
	}

	for _, ev := range evs {
		line := fmt.Sprintf("%s  %-18s", ev.Timestamp.Format("15:04:05"), ev.Type)
		if ev.Movement != "" {
			line += "  " + ev.Movement
		}
		if ev.Detail != "" {
			line += "  " + ev.Detail
		}
		fmt.Println(line)
	}
	return nil
}
