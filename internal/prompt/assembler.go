// Package prompt builds the system prompt sent with every model call.
package prompt

import (
	"fmt"
	"slices"
	"strings"
	"text/template"

	"github.com/ent0n29/maxai/internal/memory"
	"github.com/ent0n29/maxai/internal/skills"
)

const systemTemplate = `You are {{.Name}}, a capable voice assistant. Help the user with precision and efficiency.

PERSONALITY:
Name: {{.Name}}
Style: {{.Style}}
- Keep replies short enough to be spoken aloud.
- Be proactive and precise.

AVAILABLE SKILLS:
{{- range .Skills}}
- {{.Name}}: {{.Description}}{{if .Params}} (params: {{.Params}}){{end}}
{{- else}}
- none
{{- end}}

MEMORY:
{{.Memory}}

INSTRUCTIONS:
1. Respond naturally and concisely.
2. If the user asks for something an available skill can do, reply with ONLY this JSON object:
{"message": "Spoken response to the user.", "action": {"name": "skill_name", "params": {"param1": "value1"}, "needs_confirmation": false}}
3. If no action is needed, reply with plain text.
4. Lines starting with "Observation from" are results of a skill you requested; answer the user from them.
5. If the user corrects you or states a new fact about themselves, use the learn skill.
6. For current events, weather or facts you do not know, use the search or weather skill. Do not guess.
`

type skillView struct {
	Name        string
	Description string
	Params      string
}

type view struct {
	Name   string
	Style  string
	Skills []skillView
	Memory string
}

// Assembler renders the system prompt.
type Assembler struct {
	tmpl *template.Template
}

func NewAssembler() *Assembler {
	return &Assembler{tmpl: template.Must(template.New("system").Parse(systemTemplate))}
}

// Build renders persona, skills and memory context. Skills absent from a
// non-empty allow list are left out.
func (a *Assembler) Build(prefs memory.Preferences, memoryContext string, defs []skills.Definition) string {
	allowed := allowSet(prefs.AllowedSkills)
	v := view{
		Name:   orDefault(prefs.PersonaName, "Assistant"),
		Style:  orDefault(prefs.PersonaStyle, "helpful"),
		Memory: orDefault(strings.TrimSpace(memoryContext), "(none)"),
	}
	for _, d := range defs {
		if allowed != nil && !allowed[d.Name] {
			continue
		}
		v.Skills = append(v.Skills, skillView{
			Name:        d.Name,
			Description: d.Description,
			Params:      paramNames(d.Parameters),
		})
	}

	var b strings.Builder
	if err := a.tmpl.Execute(&b, v); err != nil {
		// The template is static; only a programming error lands here.
		return fmt.Sprintf("You are %s. %s", v.Name, v.Memory)
	}
	return b.String()
}

func allowSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.TrimSpace(n)] = true
	}
	return set
}

func paramNames(schema map[string]any) string {
	props, ok := schema["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return ""
	}
	required := map[string]bool{}
	if req, ok := schema["required"].([]string); ok {
		for _, r := range req {
			required[r] = true
		}
	}
	names := make([]string, 0, len(props))
	for name := range props {
		if required[name] {
			names = append(names, name+"*")
		} else {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
