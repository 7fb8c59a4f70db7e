// Package provision reconciles the Railway deployment topology: one
// project with a web service, a worker service and a PostgreSQL database,
// all sharing the generation API keys.
//
// Rather than a linear check-then-create script, provisioning observes the
// actual platform state, diffs it against the desired topology and applies
// only the missing pieces, so a second run against a provisioned project is
// a no-op for creation steps.
package provision

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const placeholderURL = "https://<your-service>.up.railway.app"

// Desired is the target topology.
type Desired struct {
	WebService    string
	WorkerService string
	Postgres      bool
	// RequiredFiles must exist in the working directory; their absence means
	// the provisioner is running from the wrong place.
	RequiredFiles []string
	// Secrets are prompted for (or taken from the environment) and set on
	// both compute services. A blank value means "already configured".
	Secrets []Secret
}

type Secret struct {
	Name     string
	Value    string // pre-seeded from the environment; prompted when empty
	Optional bool
}

func DefaultDesired() Desired {
	return Desired{
		WebService:    "web",
		WorkerService: "worker",
		Postgres:      true,
		RequiredFiles: []string{"go.mod"},
		Secrets: []Secret{
			{Name: "OPENAI_API_KEY", Value: os.Getenv("OPENAI_API_KEY")},
			{Name: "GEMINI_API_KEY", Value: os.Getenv("GEMINI_API_KEY"), Optional: true},
		},
	}
}

// State is the observed platform topology.
type State struct {
	ProjectLinked bool
	Services      map[string]bool // lowercased service names
	HasPostgres   bool
}

// Action is one reconciliation step. Non-fatal actions degrade to a warning
// with a manual retry hint instead of aborting the run.
type Action struct {
	Desc      string
	Args      []string // railway CLI arguments
	Fatal     bool
	RetryHint string
}

type Provisioner struct {
	runner  Runner
	desired Desired
	stdin   io.Reader
	stdout  io.Writer
	log     *slog.Logger
}

func New(runner Runner, desired Desired, stdin io.Reader, stdout io.Writer, log *slog.Logger) *Provisioner {
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{
		runner:  runner,
		desired: desired,
		stdin:   stdin,
		stdout:  stdout,
		log:     log,
	}
}

// Reconcile drives the topology to the desired state. The web service is
// fully provisioned and deployed before any worker-targeted action runs, so
// no worker-side failure can ever cost web availability: everything on the
// worker side degrades to a warning with a manual retry hint.
func (p *Provisioner) Reconcile(ctx context.Context) error {
	if err := p.ensureCLI(ctx); err != nil {
		return err
	}
	if err := p.checkContext(); err != nil {
		return err
	}
	if err := p.checkAuth(ctx); err != nil {
		return err
	}

	state := p.Observe(ctx)
	secrets := p.resolveSecrets()

	webActions := Diff(p.desired, state)
	webActions = append(webActions, secretActions(p.desired.WebService, secrets, true)...)
	webActions = append(webActions, Action{
		Desc:  "deploy web service",
		Args:  []string{"up", "--service", p.desired.WebService, "--detach"},
		Fatal: true,
	})
	if err := p.apply(ctx, webActions); err != nil {
		return err
	}

	if err := p.apply(ctx, workerActions(p.desired, state, secrets)); err != nil {
		return err
	}

	p.report(ctx)
	return nil
}

// ensureCLI verifies the railway CLI is installed, installing it through
// npm when missing. A missing npm is fatal.
func (p *Provisioner) ensureCLI(ctx context.Context) error {
	if _, err := p.runner.LookPath("railway"); err == nil {
		return nil
	}

	if _, err := p.runner.LookPath("npm"); err != nil {
		return errors.New("railway CLI not found and npm is unavailable; install npm, then run: npm install -g @railway/cli")
	}

	p.log.Info("installing railway CLI")
	if out, err := p.runner.Run(ctx, "npm", "install", "-g", "@railway/cli"); err != nil {
		return fmt.Errorf("railway CLI install failed: %w: %s", err, out)
	}
	return nil
}

func (p *Provisioner) checkContext() error {
	for _, f := range p.desired.RequiredFiles {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("required file %q not found; run the provisioner from the project root", f)
		}
	}
	return nil
}

func (p *Provisioner) checkAuth(ctx context.Context) error {
	out, err := p.runner.Run(ctx, "railway", "whoami")
	if err != nil {
		return fmt.Errorf("not authenticated with railway (run: railway login): %w", err)
	}
	p.log.Info("authenticated", "account", out)
	return nil
}

// Observe queries the platform for the current topology. An unlinked
// project simply yields an empty state.
func (p *Provisioner) Observe(ctx context.Context) State {
	state := State{Services: map[string]bool{}}

	out, err := p.runner.Run(ctx, "railway", "status", "--json")
	if err != nil {
		return state
	}

	var status struct {
		Name     string `json:"name"`
		Services struct {
			Edges []struct {
				Node struct {
					Name string `json:"name"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"services"`
	}
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		p.log.Warn("could not parse railway status output", "error", err)
		return state
	}

	state.ProjectLinked = status.Name != ""
	for _, e := range status.Services.Edges {
		name := strings.ToLower(e.Node.Name)
		state.Services[name] = true
		if strings.Contains(name, "postgres") {
			state.HasPostgres = true
		}
	}
	return state
}

// Diff computes the fatal creation actions missing from the observed state:
// the project and its database. Worker-side topology is reconciled after the
// web deploy, see workerActions.
func Diff(desired Desired, actual State) []Action {
	var actions []Action

	if !actual.ProjectLinked {
		actions = append(actions, Action{
			Desc:  "create project",
			Args:  []string{"init", "--name", "podcastfy"},
			Fatal: true,
		})
	}
	if desired.Postgres && !actual.HasPostgres {
		actions = append(actions, Action{
			Desc:  "add postgres database",
			Args:  []string{"add", "--database", "postgres"},
			Fatal: true,
		})
	}
	return actions
}

// workerActions covers everything worker-sided: service creation, secrets
// and the deploy. None of it is fatal.
func workerActions(desired Desired, actual State, secrets []Secret) []Action {
	var actions []Action
	if !actual.Services[desired.WorkerService] {
		actions = append(actions, Action{
			Desc:      "create worker service",
			Args:      []string{"add", "--service", desired.WorkerService},
			RetryHint: "railway add --service " + desired.WorkerService,
		})
	}
	actions = append(actions, secretActions(desired.WorkerService, secrets, false)...)
	actions = append(actions, Action{
		Desc:      "deploy worker service",
		Args:      []string{"up", "--service", desired.WorkerService, "--detach"},
		RetryHint: "railway up --service " + desired.WorkerService + " --detach",
	})
	return actions
}

// resolveSecrets prompts for each secret not already present in the
// environment. Blank input means the secret is already configured and is
// dropped from the set.
func (p *Provisioner) resolveSecrets() []Secret {
	var resolved []Secret
	reader := bufio.NewReader(p.stdin)

	for _, s := range p.desired.Secrets {
		if s.Value == "" {
			label := s.Name
			if s.Optional {
				label += " (optional)"
			}
			fmt.Fprintf(p.stdout, "Enter %s (leave blank to keep existing): ", label)
			line, _ := reader.ReadString('\n')
			s.Value = strings.TrimSpace(line)
		}
		if s.Value == "" {
			p.log.Info("skipping secret, assumed already configured", "name", s.Name)
			continue
		}
		resolved = append(resolved, s)
	}
	return resolved
}

// secretActions emits one set-variable action per resolved secret for the
// given service.
func secretActions(service string, secrets []Secret, fatal bool) []Action {
	var actions []Action
	for _, s := range secrets {
		a := Action{
			Desc:  fmt.Sprintf("set %s on %s", s.Name, service),
			Args:  []string{"variables", "--service", service, "--set", s.Name + "=" + s.Value},
			Fatal: fatal,
		}
		if !fatal {
			a.RetryHint = fmt.Sprintf("railway variables --service %s --set %s=<value>", service, s.Name)
		}
		actions = append(actions, a)
	}
	return actions
}

func (p *Provisioner) apply(ctx context.Context, actions []Action) error {
	for _, a := range actions {
		p.log.Info("applying", "action", a.Desc)
		out, err := p.runner.Run(ctx, "railway", a.Args...)
		if err == nil {
			continue
		}
		if a.Fatal {
			return fmt.Errorf("%s failed: %w: %s", a.Desc, err, out)
		}
		p.log.Warn(a.Desc+" failed", "error", err, "retry_with", a.RetryHint)
		fmt.Fprintf(p.stdout, "WARNING: %s failed; retry manually with: %s\n", a.Desc, a.RetryHint)
	}
	return nil
}

// report prints the final state and the web service URL, falling back to a
// placeholder when the domain cannot be determined.
func (p *Provisioner) report(ctx context.Context) {
	url := placeholderURL
	if out, err := p.runner.Run(ctx, "railway", "domain", "--service", p.desired.WebService); err == nil {
		for _, field := range strings.Fields(out) {
			if strings.Contains(field, ".up.railway.app") || strings.HasPrefix(field, "https://") {
				url = field
				break
			}
		}
	}
	fmt.Fprintf(p.stdout, "Provisioning complete.\nWeb service: %s\n", url)
}
