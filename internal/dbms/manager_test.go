package dbms

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bloodcheck/internal/prompt"
	"github.com/roach88/bloodcheck/internal/service"
)

type fakeController struct {
	owned     []string
	restarts  int
	ownership error
	status    error
}

func (f *fakeController) Status(context.Context) (service.Status, error) {
	if f.status != nil {
		return service.Status{}, f.status
	}
	return service.Status{State: service.StateRunning}, nil
}

func (f *fakeController) Restart(context.Context) error {
	f.restarts++
	return nil
}

func (f *fakeController) ReassignOwnership(path string) error {
	f.owned = append(f.owned, path)
	return f.ownership
}

var templateFiles = map[string]string{
	"neostore":                  "store",
	"schema/index/lucene.idx":   "index",
	"neostore.transaction.db.0": "tx",
}

func writeTemplate(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "Clean.graphdb.zip")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

type fixture struct {
	manager *Manager
	out     *bytes.Buffer
	ctrl    *fakeController
}

// newFixture builds a root with the given instances, graph.db and a conf
// file pointing at active.
func newFixture(t *testing.T, active string, instances []string, answers ...string) *fixture {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "databases")
	for _, name := range append([]string{ReservedInstance}, instances...) {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0755))
	}
	conf := filepath.Join(base, "neo4j.conf")
	require.NoError(t, os.WriteFile(conf, []byte("dbms.mode=SINGLE\n"+PointerKey+active+"\n"), 0644))

	out := &bytes.Buffer{}
	ctrl := &fakeController{}
	return &fixture{
		manager: &Manager{
			Root:            root,
			ConfFile:        conf,
			TemplateArchive: writeTemplate(t, base, templateFiles),
			Prompter:        prompt.NewScripted(answers...),
			Service:         ctrl,
			Out:             out,
		},
		out:  out,
		ctrl: ctrl,
	}
}

func TestInstancesExcludeReservedAndFiles(t *testing.T) {
	f := newFixture(t, "bravo", []string{"bravo", "alpha"})
	require.NoError(t, os.WriteFile(filepath.Join(f.manager.Root, "stray.txt"), nil, 0644))

	names, err := f.manager.Instances()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo"}, names)
}

func TestListMarksActive(t *testing.T) {
	f := newFixture(t, "bravo", []string{"alpha", "bravo"})
	_, err := f.manager.List()
	require.NoError(t, err)
	assert.Equal(t, "[+] Available Databases:\n   [0]: alpha\n-> [1]: bravo\n", f.out.String())
}

func TestSwitchRewritesPointer(t *testing.T) {
	f := newFixture(t, "alpha", []string{"alpha", "bravo"}, "x", "5", "1")

	chosen, err := f.manager.Switch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bravo", chosen)

	active, err := f.manager.Active()
	require.NoError(t, err)
	assert.Equal(t, "bravo", active)

	data, err := os.ReadFile(f.manager.ConfFile)
	require.NoError(t, err)
	assert.Equal(t, "dbms.mode=SINGLE\n"+PointerKey+"bravo\n", string(data))
	// the manager never restarts on its own
	assert.Zero(t, f.ctrl.restarts)
}

func TestSwitchAbortedLeavesPointer(t *testing.T) {
	f := newFixture(t, "alpha", []string{"alpha", "bravo"})
	_, err := f.manager.Switch(context.Background())
	assert.True(t, errors.Is(err, prompt.ErrAborted))

	active, err := f.manager.Active()
	require.NoError(t, err)
	assert.Equal(t, "alpha", active)
}

func TestGenerateRejectsInvalidNames(t *testing.T) {
	f := newFixture(t, "alpha", []string{"alpha"}, "", "a.b", "alpha", "../escape", "new/sub", "engagement2")

	name, err := f.manager.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "engagement2", name)
	assert.Equal(t, 5, bytes.Count(f.out.Bytes(), []byte("Database name not valid")))

	for rel, content := range templateFiles {
		data, err := os.ReadFile(filepath.Join(f.manager.Root, "engagement2", filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.Equal(t, content, string(data))
	}
	assert.Equal(t, []string{filepath.Join(f.manager.Root, "engagement2")}, f.ctrl.owned)

	_, err = os.Stat(filepath.Join(filepath.Dir(f.manager.Root), "escape"))
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateOwnershipUnsupported(t *testing.T) {
	f := newFixture(t, "alpha", []string{"alpha"}, "fresh")
	f.ctrl.ownership = service.ErrUnsupported

	name, err := f.manager.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", name)
	assert.NotContains(t, f.out.String(), "ownership")
}

func TestGenerateMissingTemplate(t *testing.T) {
	f := newFixture(t, "alpha", []string{"alpha"}, "fresh")
	f.manager.TemplateArchive = filepath.Join(t.TempDir(), "missing.zip")

	_, err := f.manager.Generate(context.Background())
	assert.True(t, errors.Is(err, ErrTemplateMissing))
	_, statErr := os.Stat(filepath.Join(f.manager.Root, "fresh"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPurgeDeletesAfterConfirmation(t *testing.T) {
	f := newFixture(t, "alpha", []string{"alpha", "bravo"}, "1", "y")

	deleted, err := f.manager.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bravo", deleted)
	_, err = os.Stat(filepath.Join(f.manager.Root, "bravo"))
	assert.True(t, os.IsNotExist(err))
}

func TestPurgeDeclined(t *testing.T) {
	f := newFixture(t, "alpha", []string{"alpha", "bravo"}, "1", "n")

	deleted, err := f.manager.Purge(context.Background())
	require.NoError(t, err)
	assert.Empty(t, deleted)
	assert.DirExists(t, filepath.Join(f.manager.Root, "bravo"))
	assert.Contains(t, f.out.String(), "Action aborted")
}

func TestPurgeActiveForcesSwitchFirst(t *testing.T) {
	// purge alpha (active), forced switch offers [bravo, charlie], pick charlie
	f := newFixture(t, "alpha", []string{"alpha", "bravo", "charlie"}, "0", "1", "y")

	deleted, err := f.manager.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alpha", deleted)

	active, err := f.manager.Active()
	require.NoError(t, err)
	assert.Equal(t, "charlie", active)
	_, err = os.Stat(filepath.Join(f.manager.Root, "alpha"))
	assert.True(t, os.IsNotExist(err))

	out := f.out.String()
	assert.Less(t, bytes.Index([]byte(out), []byte("Switching to database 'charlie'")),
		bytes.Index([]byte(out), []byte("deleted!")))
}

func TestPurgeOnlyActiveRefused(t *testing.T) {
	f := newFixture(t, "alpha", []string{"alpha"}, "0")

	_, err := f.manager.Purge(context.Background())
	assert.True(t, errors.Is(err, ErrActiveDatabase))
	assert.DirExists(t, filepath.Join(f.manager.Root, "alpha"))
}

func TestPurgeAbortedDuringForcedSwitch(t *testing.T) {
	f := newFixture(t, "alpha", []string{"alpha", "bravo"}, "0")

	_, err := f.manager.Purge(context.Background())
	assert.True(t, errors.Is(err, prompt.ErrAborted))
	assert.DirExists(t, filepath.Join(f.manager.Root, "alpha"))
}

func TestRestart(t *testing.T) {
	f := newFixture(t, "alpha", []string{"alpha"})
	require.NoError(t, f.manager.Restart(context.Background()))
	assert.Equal(t, 1, f.ctrl.restarts)

	f.manager.Service = nil
	assert.True(t, errors.Is(f.manager.Restart(context.Background()), ErrUnmanaged))

	missing := &fakeController{status: service.ErrNotFound}
	f.manager.Service = missing
	assert.True(t, errors.Is(f.manager.Restart(context.Background()), service.ErrNotFound))
	assert.Zero(t, missing.restarts)
}

func TestExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := writeTemplate(t, dir, map[string]string{"ok": "x", "../../evil": "y"})
	dest := filepath.Join(dir, "out")

	err := Extract(archive, dest)
	assert.True(t, errors.Is(err, ErrUnsafeArchive))
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestValidateName(t *testing.T) {
	root := t.TempDir()
	existing := []string{"alpha"}
	for _, bad := range []string{"", "a.b", "alpha", "..", "../x", "a/b", `a\b`, "/abs", ReservedInstance} {
		assert.True(t, errors.Is(ValidateName(root, bad, existing), ErrInvalidName), "name %q", bad)
	}
	assert.NoError(t, ValidateName(root, "engagement2", existing))
}

// TestProperty_ValidNamesStayUnderRoot: every accepted name is a direct
// child of the root.
func TestProperty_ValidNamesStayUnderRoot(t *testing.T) {
	root := t.TempDir()
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("accepted names resolve to a child of root", prop.ForAll(
		func(name string) bool {
			if ValidateName(root, name, nil) != nil {
				return true
			}
			return filepath.Dir(filepath.Join(root, name)) == filepath.Clean(root)
		},
		gen.OneGenOf(
			gen.AnyString(),
			gen.AlphaString().Map(func(s string) string { return "../" + s }),
			gen.AlphaString().Map(func(s string) string { return s + "/.." }),
		),
	))

	properties.Property("alphanumeric names are accepted", prop.ForAll(
		func(name string) bool {
			return ValidateName(root, name, nil) == nil
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
