package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner scripts CLI behavior per command prefix.
type fakeRunner struct {
	missing map[string]bool   // binaries absent from PATH
	outputs map[string]string // command prefix -> output
	fail    map[string]error  // command prefix -> error
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		missing: map[string]bool{},
		outputs: map[string]string{},
		fail:    map[string]error{},
	}
}

func (r *fakeRunner) LookPath(name string) (string, error) {
	if r.missing[name] {
		return "", errors.New("not found")
	}
	return "/usr/bin/" + name, nil
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	call := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, call)
	for prefix, err := range r.fail {
		if strings.HasPrefix(call, prefix) {
			return "", err
		}
	}
	for prefix, out := range r.outputs {
		if strings.HasPrefix(call, prefix) {
			return out, nil
		}
	}
	return "", nil
}

func (r *fakeRunner) called(prefix string) bool {
	return r.callIndex(prefix) >= 0
}

func (r *fakeRunner) callIndex(prefix string) int {
	for i, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func provisionedStatus() string {
	return `{"name":"podcastfy","services":{"edges":[
		{"node":{"name":"web"}},
		{"node":{"name":"worker"}},
		{"node":{"name":"Postgres"}}
	]}}`
}

func testDesired() Desired {
	return Desired{
		WebService:    "web",
		WorkerService: "worker",
		Postgres:      true,
		// no required files, no secrets: keep reconcile non-interactive
	}
}

func newTestProvisioner(r Runner) (*Provisioner, *bytes.Buffer) {
	var out bytes.Buffer
	p := New(r, testDesired(), strings.NewReader(""), &out, nil)
	return p, &out
}

func TestDiff_EmptyState_CreatesProjectAndDatabase(t *testing.T) {
	actions := Diff(testDesired(), State{Services: map[string]bool{}})

	var descs []string
	for _, a := range actions {
		descs = append(descs, a.Desc)
		assert.True(t, a.Fatal, "%s must be fatal", a.Desc)
	}
	assert.Equal(t, []string{"create project", "add postgres database"}, descs)
}

func TestDiff_ProvisionedState_IsEmpty(t *testing.T) {
	state := State{
		ProjectLinked: true,
		HasPostgres:   true,
		Services:      map[string]bool{"web": true, "worker": true, "postgres": true},
	}
	assert.Empty(t, Diff(testDesired(), state), "second run must not create duplicate services")
}

func TestWorkerActions_AllNonFatal(t *testing.T) {
	secrets := []Secret{{Name: "OPENAI_API_KEY", Value: "sk-test"}}
	actions := workerActions(testDesired(), State{Services: map[string]bool{}}, secrets)

	var descs []string
	for _, a := range actions {
		descs = append(descs, a.Desc)
		assert.False(t, a.Fatal, "%s must not be fatal", a.Desc)
		assert.NotEmpty(t, a.RetryHint, "%s needs a retry hint", a.Desc)
	}
	assert.Equal(t, []string{"create worker service", "set OPENAI_API_KEY on worker", "deploy worker service"}, descs)
}

func TestWorkerActions_ExistingServiceNotRecreated(t *testing.T) {
	state := State{Services: map[string]bool{"worker": true}}
	actions := workerActions(testDesired(), state, nil)

	require.Len(t, actions, 1)
	assert.Equal(t, "deploy worker service", actions[0].Desc)
}

func TestReconcile_ProvisionedProject_OnlyDeploys(t *testing.T) {
	r := newFakeRunner()
	r.outputs["railway status --json"] = provisionedStatus()
	r.outputs["railway whoami"] = "dev@example.com"

	p, _ := newTestProvisioner(r)
	require.NoError(t, p.Reconcile(context.Background()))

	assert.False(t, r.called("railway init"), "must not re-create the project")
	assert.False(t, r.called("railway add"), "must not re-create services")
	assert.True(t, r.called("railway up --service web"))
	assert.True(t, r.called("railway up --service worker"))
}

func TestReconcile_WebDeployFailureIsFatal(t *testing.T) {
	r := newFakeRunner()
	r.outputs["railway status --json"] = provisionedStatus()
	r.fail["railway up --service web"] = errors.New("build failed")

	p, _ := newTestProvisioner(r)
	err := p.Reconcile(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deploy web service")

	assert.False(t, r.called("railway up --service worker"), "run aborts before the worker deploy")
}

func TestReconcile_WorkerDeployFailureIsWarning(t *testing.T) {
	r := newFakeRunner()
	r.outputs["railway status --json"] = provisionedStatus()
	r.fail["railway up --service worker"] = errors.New("build failed")

	p, out := newTestProvisioner(r)
	require.NoError(t, p.Reconcile(context.Background()), "worker deploy failure must not abort the run")
	assert.Contains(t, out.String(), "railway up --service worker", "warning should carry the retry hint")
}

func TestReconcile_MissingCLIAndNpmIsFatal(t *testing.T) {
	r := newFakeRunner()
	r.missing["railway"] = true
	r.missing["npm"] = true

	p, _ := newTestProvisioner(r)
	err := p.Reconcile(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "npm")
}

func TestReconcile_InstallsCLIThroughNpm(t *testing.T) {
	r := newFakeRunner()
	r.missing["railway"] = true
	r.outputs["railway status --json"] = provisionedStatus()

	p, _ := newTestProvisioner(r)
	require.NoError(t, p.Reconcile(context.Background()))
	assert.True(t, r.called("npm install -g @railway/cli"))
}

func TestReconcile_AuthFailureIsFatal(t *testing.T) {
	r := newFakeRunner()
	r.fail["railway whoami"] = errors.New("unauthorized")

	p, _ := newTestProvisioner(r)
	err := p.Reconcile(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "railway login")
}

func TestReconcile_SecretsSetOnBothServices(t *testing.T) {
	r := newFakeRunner()
	r.outputs["railway status --json"] = provisionedStatus()

	desired := testDesired()
	desired.Secrets = []Secret{{Name: "OPENAI_API_KEY", Value: "sk-test"}}
	p := New(r, desired, strings.NewReader(""), &bytes.Buffer{}, nil)

	require.NoError(t, p.Reconcile(context.Background()))
	assert.True(t, r.called("railway variables --service web --set OPENAI_API_KEY=sk-test"))
	assert.True(t, r.called("railway variables --service worker --set OPENAI_API_KEY=sk-test"))
}

func TestResolveSecrets_BlankInputSkips(t *testing.T) {
	desired := testDesired()
	desired.Secrets = []Secret{{Name: "OPENAI_API_KEY"}}

	var out bytes.Buffer
	p := New(newFakeRunner(), desired, strings.NewReader("\n"), &out, nil)

	assert.Empty(t, p.resolveSecrets())
	assert.Contains(t, out.String(), "OPENAI_API_KEY")
}

func TestResolveSecrets_PromptedValueUsed(t *testing.T) {
	desired := testDesired()
	desired.Secrets = []Secret{{Name: "OPENAI_API_KEY"}}

	p := New(newFakeRunner(), desired, strings.NewReader("sk-typed\n"), &bytes.Buffer{}, nil)

	secrets := p.resolveSecrets()
	require.Len(t, secrets, 1)
	assert.Equal(t, "sk-typed", secrets[0].Value)
}

// Web availability is the priority: even when every worker-side step fails
// (service creation, secret set, deploy), the web service must already be
// deployed and the run must finish without error.
func TestReconcile_WorkerFailuresNeverBlockWebDeploy(t *testing.T) {
	r := newFakeRunner()
	r.outputs["railway status --json"] = `{"name":"podcastfy","services":{"edges":[
		{"node":{"name":"web"}},
		{"node":{"name":"Postgres"}}
	]}}`
	r.fail["railway add --service worker"] = errors.New("quota exceeded")
	r.fail["railway variables --service worker"] = errors.New("service not found")
	r.fail["railway up --service worker"] = errors.New("service not found")

	desired := testDesired()
	desired.Secrets = []Secret{{Name: "OPENAI_API_KEY", Value: "sk-test"}}
	var out bytes.Buffer
	p := New(r, desired, strings.NewReader(""), &out, nil)

	require.NoError(t, p.Reconcile(context.Background()))

	webDeploy := r.callIndex("railway up --service web")
	require.GreaterOrEqual(t, webDeploy, 0, "web service must be deployed")
	for _, prefix := range []string{
		"railway add --service worker",
		"railway variables --service worker",
		"railway up --service worker",
	} {
		if i := r.callIndex(prefix); i >= 0 {
			assert.Greater(t, i, webDeploy, "%s must run after the web deploy", prefix)
		}
	}
	assert.Contains(t, out.String(), "WARNING")
}

func TestReport_FallsBackToPlaceholder(t *testing.T) {
	r := newFakeRunner()
	r.fail["railway domain"] = errors.New("no domain")
	r.outputs["railway status --json"] = provisionedStatus()

	p, out := newTestProvisioner(r)
	require.NoError(t, p.Reconcile(context.Background()))
	assert.Contains(t, out.String(), placeholderURL)
}

func TestReport_PrintsServiceURL(t *testing.T) {
	r := newFakeRunner()
	r.outputs["railway status --json"] = provisionedStatus()
	r.outputs["railway domain"] = "podcastfy-web.up.railway.app"

	p, out := newTestProvisioner(r)
	require.NoError(t, p.Reconcile(context.Background()))
	assert.Contains(t, out.String(), fmt.Sprintf("Web service: %s", "podcastfy-web.up.railway.app"))
}
