package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bloodcheck/internal/graph"
	"github.com/roach88/bloodcheck/internal/prompt"
	"github.com/roach88/bloodcheck/internal/service"
	"github.com/roach88/bloodcheck/internal/testutil"
)

type fakeController struct {
	stopped   bool
	statusErr error
	restarts  int
}

func (f *fakeController) Status(context.Context) (service.Status, error) {
	if f.statusErr != nil {
		return service.Status{}, f.statusErr
	}
	if f.stopped {
		return service.Status{State: service.StateStopped}, nil
	}
	return service.Status{State: service.StateRunning}, nil
}

func (f *fakeController) Restart(context.Context) error {
	f.restarts++
	f.stopped = false
	return nil
}

func (f *fakeController) ReassignOwnership(string) error {
	return service.ErrUnsupported
}

// fixture is a local installation with instances alpha (active) and beta,
// a scripted session and controller, and a config file pointing at them.
type fixture struct {
	dir     string
	opts    *RootOptions
	session *testutil.FakeSession
	ctrl    *fakeController
	opened  int
}

type configOption func(map[string]string)

func withURI(uri, instanceType string) configOption {
	return func(v map[string]string) {
		v["uri"] = uri
		v["instance_type"] = instanceType
	}
}

func withoutJournal() configOption {
	return func(v map[string]string) { v["journal"] = "" }
}

func newFixture(t *testing.T, options ...configOption) *fixture {
	t.Helper()
	dir := t.TempDir()
	for _, d := range []string{"conf", "data/databases/graph.db", "data/databases/alpha", "data/databases/beta", "queries"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0755))
	}
	conf := "dbms.directories.data=/var/lib/neo4j/data\ndbms.active_database=alpha\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf", "neo4j.conf"), []byte(conf), 0644))

	values := map[string]string{
		"uri":           "bolt://localhost:7687",
		"instance_type": "local",
		"journal":       filepath.Join(dir, "journal.db"),
	}
	for _, o := range options {
		o(values)
	}
	cfg := fmt.Sprintf(`neo4j:
  uri: %s
  username: neo4j
  password: secret
  conf_path: %s
  data_path: %s
  instance_type: %s
service:
  restart_wait: 0s
output:
  directory: %s
journal:
  path: "%s"
`, values["uri"], filepath.Join(dir, "conf"), filepath.Join(dir, "data"), values["instance_type"],
		filepath.Join(dir, "out"), values["journal"])
	configPath := filepath.Join(dir, "bloodcheck.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0644))

	f := &fixture{
		dir:     dir,
		session: testutil.NewFakeSession(),
		ctrl:    &fakeController{},
	}
	f.opts = &RootOptions{
		Format:     "text",
		ConfigPath: configPath,
		Controller: f.ctrl,
		Now:        testutil.NewFixedClock(2024, time.March, 5, 14, 30, 0).Now,
		Suffixes:   testutil.NewFixedGenerator("aaa111", "bbb222", "ccc333", "ddd444"),
		RunIDs:     testutil.NewFixedGenerator("run-1", "run-2", "run-3"),
		OpenSession: func(ctx context.Context, creds graph.Credentials) (graph.Session, error) {
			f.opened++
			return f.session, nil
		},
	}
	return f
}

func (f *fixture) answer(answers ...string) {
	f.opts.Prompter = prompt.NewScripted(answers...)
}

func (f *fixture) writeQuery(t *testing.T, rel, description, header, cypher string) string {
	t.Helper()
	path := filepath.Join(f.dir, "queries", rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	content := fmt.Sprintf("Description: %s\nHeaders:\n  - %s\nQuery: %s\n", description, header, cypher)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (f *fixture) activeDatabase(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.dir, "conf", "neo4j.conf"))
	require.NoError(t, err)
	for _, line := range strings.Split(string(data), "\n") {
		if name, ok := strings.CutPrefix(line, "dbms.active_database="); ok {
			return name
		}
	}
	return ""
}

// execute runs cmd with args and returns stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
