package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "nft"}
	root.PersistentFlags().Bool("json", false, "Output JSON")
	list := &cobra.Command{
		Use:         "list",
		Short:       "List an NFT",
		Annotations: map[string]string{AnnotationInteractive: "true"},
		RunE:        func(*cobra.Command, []string) error { return nil },
	}
	list.Flags().String("token-id", "", "Token id")
	list.Flags().String("collection", "", "Collection slug")
	_ = list.MarkFlagRequired("collection")
	sessions := &cobra.Command{Use: "sessions", Short: "Session commands"}
	sessions.AddCommand(&cobra.Command{Use: "show <id>", Aliases: []string{"get"}, RunE: func(*cobra.Command, []string) error { return nil }})
	root.AddCommand(list, sessions)
	return root
}

func TestBuildSchemaForLeaf(t *testing.T) {
	s, err := Build(testTree(), "list")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "nft list" || !s.Interactive {
		t.Fatalf("unexpected schema: %+v", s)
	}
	if len(s.Flags) != 2 || s.Flags[0].Name != "collection" || !s.Flags[0].Required || s.Flags[1].Required {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
	if len(s.Global) != 1 || s.Global[0].Name != "json" {
		t.Fatalf("unexpected global flags: %+v", s.Global)
	}
}

func TestBuildSchemaResolvesAliases(t *testing.T) {
	s, err := Build(testTree(), "sessions get")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "nft sessions show" {
		t.Fatalf("unexpected path: %s", s.Path)
	}
}

func TestBuildSchemaUnknownCommand(t *testing.T) {
	if _, err := Build(testTree(), "sessions purge"); err == nil {
		t.Fatal("expected unknown command error")
	}
}

func TestBuildSchemaRootListsSubcommands(t *testing.T) {
	s, err := Build(testTree(), "")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(s.Subcommands) != 2 {
		t.Fatalf("expected two subcommands, got %+v", s.Subcommands)
	}
}
