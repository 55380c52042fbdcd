package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stacklok/repo-activity-sync/internal/app/storage"
	"github.com/stacklok/repo-activity-sync/internal/config"
)

var registerCmdLong = `Register a repository for activity sync.

The repository link is canonicalized, so registering the same repository twice
returns the existing entry. With --token-stdin an access token is read from
standard input (or from the terminal without echo) and associated with the
repository. Tokens are never accepted as command line arguments.

The registered repository is printed to standard output as JSON.`

// registration is the command output
type registration struct {
	ID               string `json:"id"`
	CanonicalLink    string `json:"canonical_link"`
	CredentialLinked bool   `json:"credential_linked"`
}

func newRegisterCmd() *cobra.Command {
	registerCmd := &cobra.Command{
		Use:   "register [repository-link]",
		Short: "Register a repository and optionally associate an access token",
		Long:  registerCmdLong,
		Args:  cobra.ExactArgs(1),
		RunE:  runRegister,
	}

	registerCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	registerCmd.Flags().Bool("token-stdin", false, "Read an access token for the repository from standard input")
	if err := registerCmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}

	return registerCmd
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	link := strings.TrimSpace(args[0])
	if link == "" {
		return fmt.Errorf("repository link cannot be empty")
	}
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	tokenStdin, err := cmd.Flags().GetBool("token-stdin")
	if err != nil {
		return fmt.Errorf("failed to get token-stdin flag: %w", err)
	}

	var token string
	if tokenStdin {
		token, err = readToken(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := registerRepository(ctx, cfg.Database, link, token)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// registerRepository registers link and associates token with it when given
func registerRepository(
	ctx context.Context,
	dbConfig *config.DatabaseConfig,
	link, token string,
) (*registration, error) {
	factory, err := storage.NewDatabaseFactory(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer factory.Cleanup()

	store, err := factory.CreateRepositoryStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository store: %w", err)
	}

	repo, err := store.RegisterOrGet(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("failed to register repository: %w", err)
	}
	slog.Info("Repository registered", "id", repo.ID, "link", repo.CanonicalLink)

	result := &registration{
		ID:            repo.ID.String(),
		CanonicalLink: repo.CanonicalLink,
	}
	if token == "" {
		return result, nil
	}

	if err := store.AssociateCredential(ctx, token, repo.ID); err != nil {
		return nil, fmt.Errorf("failed to associate credential: %w", err)
	}
	slog.Info("Credential associated with repository", "id", repo.ID)
	result.CredentialLinked = true

	return result, nil
}

// readToken reads an access token from the terminal without echo, or from in
// when standard input is not a terminal
func readToken(in io.Reader) (string, error) {
	var raw []byte
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		slog.Info("Reading token from terminal...")
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		raw = b
	} else {
		b, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		raw = b
	}

	// Piped tokens usually end with a newline
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("token cannot be empty")
	}
	return token, nil
}
