package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/model"
	"github.com/ggonzalez94/nft-cli/internal/session"
)

func (s *runtimeState) newSessionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "sessions", Short: "Inspect saved wizard sessions"}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := s.sessions.List(cmd.Context(), limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list sessions", err)
			}
			out := make([]model.SessionSummary, 0, len(records))
			for _, rec := range records {
				out = append(out, model.SessionSummary{
					ID:        rec.ID,
					Command:   rec.Command,
					State:     rec.State,
					UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339),
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, nil, cacheMetaBypass(), nil)
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to return")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved session and its flow snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := s.sessions.Load(cmd.Context(), args[0])
			if err != nil {
				return sessionError(args[0], err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rec, nil, cacheMetaBypass(), nil)
		},
	}

	del := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.sessions.Delete(cmd.Context(), args[0]); err != nil {
				return sessionError(args[0], err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{"id": args[0], "deleted": true}, nil, cacheMetaBypass(), nil)
		},
	}

	root.AddCommand(list, show, del)
	return root
}

func sessionError(id string, err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return clierr.New(clierr.CodeNotFound, fmt.Sprintf("session %s not found", id))
	}
	return clierr.Wrap(clierr.CodeInternal, "session store", err)
}
