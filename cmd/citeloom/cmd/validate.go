package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and connectivity to Zotero and the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			correlationID := newCorrelationID()
			defer fmt.Println(correlationID)

			log := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				fmt.Printf("config: FAIL (%v)\n", err)
				return err
			}
			fmt.Println("config: OK")

			if len(cfg.Project) == 0 {
				fmt.Println("projects: WARN (no [project.<id>] sections configured)")
			} else {
				fmt.Printf("projects: OK (%d configured)\n", len(cfg.Project))
			}

			gateway, err := openGateway(cfg, log)
			if err != nil {
				fmt.Printf("qdrant: FAIL (%v)\n", err)
			} else {
				defer gateway.Close()
				ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
				defer cancel()
				probed := false
				for _, proj := range cfg.Project {
					if _, inspectErr := gateway.Inspect(ctx, proj.Collection, 0); inspectErr != nil {
						fmt.Printf("qdrant: WARN (collection %q: %v)\n", proj.Collection, inspectErr)
					} else {
						fmt.Printf("qdrant: OK (collection %q reachable)\n", proj.Collection)
					}
					probed = true
				}
				if !probed {
					fmt.Println("qdrant: OK (connection opened, no projects to probe)")
				}
			}

			router, err := buildRouter(cfg, log)
			if err != nil {
				fmt.Printf("zotero: FAIL (%v)\n", err)
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if _, listErr := router.ListCollections(ctx); listErr != nil {
				fmt.Printf("zotero: FAIL (%v)\n", listErr)
				return listErr
			}
			fmt.Println("zotero: OK")

			return nil
		},
	}

	return cmd
}
