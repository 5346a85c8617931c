package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var (
		project string
		sample  int
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Report a project collection's size, schema, and a payload sample",
		RunE: func(cmd *cobra.Command, args []string) error {
			correlationID := newCorrelationID()
			defer fmt.Println(correlationID)

			log := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			proj, ok := cfg.Project[project]
			if !ok {
				return fmt.Errorf("citeloom: no [project.%s] section in configuration", project)
			}

			gateway, err := openGateway(cfg, log)
			if err != nil {
				return err
			}
			defer gateway.Close()

			info, err := gateway.Inspect(cmd.Context(), proj.Collection, sample)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().IntVar(&sample, "sample", 0, "number of payload samples to include (0-5)")
	cmd.MarkFlagRequired("project")

	return cmd
}
