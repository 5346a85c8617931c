package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sims2k/citeloom-sub000/internal/retrieve"
)

func newQueryCmd() *cobra.Command {
	var (
		project string
		topK    int
		hybrid  bool
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a retrieval query against a project's index",
		Args:  cobra.ExactArgs(1),
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

			pool := newEmbedderPool()
			projects := staticProjectResolver{id: project, binding: bindingFor(project, proj)}
			svc := retrieve.NewService(projects, pool, gateway, retrieve.NewHashingSparseEncoder(0), retrieve.DefaultPolicy(), log)
			svc.SetMetrics(newMetrics())

			req := retrieve.Request{ProjectID: project, Query: args[0], TopK: topK}

			var resp retrieve.Response
			if hybrid {
				resp, err = svc.QueryHybrid(cmd.Context(), req)
			} else {
				resp, err = svc.Find(cmd.Context(), req)
			}
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().IntVar(&topK, "top-k", 6, "number of results to return")
	cmd.Flags().BoolVar(&hybrid, "hybrid", false, "use hybrid (dense+sparse) search")
	cmd.MarkFlagRequired("project")

	return cmd
}
