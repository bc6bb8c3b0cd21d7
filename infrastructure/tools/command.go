package tools

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/ahrav/go-sqm/internal/ports"
)

// CommandTemplate is a compiled CommandConfig. It is immutable and safe for
// concurrent rendering.
type CommandTemplate struct {
	name    string
	command string
	args    []*template.Template
	env     []string
}

// NewCommandTemplate compiles every argument of cfg.
func NewCommandTemplate(name string, cfg CommandConfig) (*CommandTemplate, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%s: command is required", name)
	}
	ct := &CommandTemplate{name: name, command: cfg.Command}
	for i, arg := range cfg.Args {
		tmpl, err := template.New(fmt.Sprintf("%s.args[%d]", name, i)).
			Funcs(GetTemplateFuncMap()).
			Option("missingkey=error").
			Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", name, i, err)
		}
		ct.args = append(ct.args, tmpl)
	}

	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ct.env = append(ct.env, k+"="+cfg.Env[k])
	}
	return ct, nil
}

// Command returns the executable.
func (c *CommandTemplate) Command() string { return c.command }

// Env returns the extra environment in KEY=VALUE form.
func (c *CommandTemplate) Env() []string { return c.env }

// Render executes every argument template against inv. Arguments that
// render to the empty string are dropped so that optional arguments can be
// expressed with {{if}}.
func (c *CommandTemplate) Render(inv ports.Invocation) ([]string, error) {
	out := make([]string, 0, len(c.args))
	var sb strings.Builder
	for _, tmpl := range c.args {
		sb.Reset()
		if err := tmpl.Execute(&sb, inv); err != nil {
			return nil, fmt.Errorf("render %s: %w", tmpl.Name(), err)
		}
		if arg := sb.String(); arg != "" {
			out = append(out, arg)
		}
	}
	return out, nil
}

// String returns the command line rendered for inv, for logging.
func (c *CommandTemplate) String(inv ports.Invocation) string {
	args, err := c.Render(inv)
	if err != nil {
		return c.command + " <unrenderable>"
	}
	return strings.Join(append([]string{c.command}, args...), " ")
}
