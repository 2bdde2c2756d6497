package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/store"
	"github.com/roach88/dinnermatch/internal/testutil"
	"github.com/roach88/dinnermatch/internal/workflow"
)

// envelope decodes a JSON CLIResponse with a typed payload.
type envelope[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

type cliRun struct {
	code   int
	stdout string
	stderr string
}

// run executes the CLI against db with the given arguments.
func run(t *testing.T, db string, args ...string) cliRun {
	t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"--db", db}, args...)
	code := Execute(context.Background(), full, &out, &errOut)
	return cliRun{code: code, stdout: out.String(), stderr: errOut.String()}
}

// runJSON executes the CLI in JSON mode and decodes the response.
func runJSON[T any](t *testing.T, db string, args ...string) (envelope[T], int) {
	t.Helper()
	r := run(t, db, append([]string{"--format", "json"}, args...)...)
	var env envelope[T]
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &env), "stdout: %s\nstderr: %s", r.stdout, r.stderr)
	return env, r.code
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "cli.db")
}

// requestedMatch seeds one guest and one host, proposes and requests the
// match directly through the workflow, and returns the match id and the
// raw token emailed to the host. The store is closed before returning.
func requestedMatch(t *testing.T, db string) (matchID, rawToken string) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.UpsertHost(ctx, testutil.Host("h1")))
	require.NoError(t, st.UpsertGuest(ctx, testutil.Guest("g1")))

	svc := workflow.New(st, workflow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	gen, err := svc.GenerateMatches(ctx, workflow.GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, gen.Created, 1)
	matchID = gen.Created[0].ID

	_, err = svc.SendRequest(ctx, matchID)
	require.NoError(t, err)

	ns, err := st.ListNotifications(ctx, store.NotificationFilter{Template: domain.TemplateMatchRequest, MatchID: matchID})
	require.NoError(t, err)
	require.Len(t, ns, 1)
	require.NotEmpty(t, ns[0].ActionToken)
	return matchID, ns[0].ActionToken
}
