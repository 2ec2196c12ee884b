package skills

import (
	"context"
	"fmt"
)

// deviceSkill is a client-resolvable skill: it performs nothing itself and
// describes what the caller's device should do.
type deviceSkill struct {
	def     Definition
	execute func(params map[string]any) (Result, error)
}

func (d *deviceSkill) Definition() Definition { return d.def }

func (d *deviceSkill) Execute(_ context.Context, params map[string]any) (Result, error) {
	if params == nil {
		params = map[string]any{}
	}
	return d.execute(params)
}

func NewCall() Skill {
	return &deviceSkill{
		def: Definition{
			Name:        "call",
			Description: "Initiate a phone call to a contact or number.",
			Parameters:  objectSchema([]string{"target"}, map[string]string{"target": "Contact name or phone number."}),
		},
		execute: func(p map[string]any) (Result, error) {
			target := stringParam(p, "target")
			if target == "" {
				return Result{}, missing("target")
			}
			return Result{
				Status:     StatusSuccess,
				Message:    fmt.Sprintf("Calling %s...", target),
				ActionData: map[string]any{"type": "call", "number": target},
			}, nil
		},
	}
}

func NewSMS() Skill {
	return &deviceSkill{
		def: Definition{
			Name:        "sms",
			Description: "Send an SMS message.",
			Parameters: objectSchema([]string{"target", "message"}, map[string]string{
				"target":  "Contact name or phone number.",
				"message": "Text to send.",
			}),
		},
		execute: func(p map[string]any) (Result, error) {
			target, body := stringParam(p, "target"), stringParam(p, "message")
			if target == "" {
				return Result{}, missing("target")
			}
			return Result{
				Status:     StatusSuccess,
				Message:    fmt.Sprintf("Sending SMS to %s: %s", target, body),
				ActionData: map[string]any{"type": "sms", "target": target, "body": body},
			}, nil
		},
	}
}

func NewSystem() Skill {
	return &deviceSkill{
		def: Definition{
			Name:        "system",
			Description: "System level controls (volume, brightness, etc).",
			Parameters: objectSchema([]string{"setting"}, map[string]string{
				"setting": "Setting to change, e.g. volume or brightness.",
				"value":   "New value for the setting.",
			}),
		},
		execute: func(p map[string]any) (Result, error) {
			setting := stringParam(p, "setting")
			if setting == "" {
				return Result{}, missing("setting")
			}
			return Result{
				Status:     StatusSuccess,
				Message:    fmt.Sprintf("Setting %s to %s", setting, stringParam(p, "value")),
				ActionData: map[string]any{"type": "system", "setting": setting, "value": p["value"]},
			}, nil
		},
	}
}

func NewMedia() Skill {
	return &deviceSkill{
		def: Definition{
			Name:        "media",
			Description: "Control media playback.",
			Parameters:  objectSchema([]string{"command"}, map[string]string{"command": "One of play, pause, next, previous."}),
		},
		execute: func(p map[string]any) (Result, error) {
			command := stringParam(p, "command")
			if command == "" {
				return Result{}, missing("command")
			}
			return Result{
				Status:     StatusSuccess,
				Message:    "Media command: " + command,
				ActionData: map[string]any{"type": "media", "command": command},
			}, nil
		},
	}
}

func NewNavigation() Skill {
	return &deviceSkill{
		def: Definition{
			Name:        "navigation",
			Description: "Navigate to a destination.",
			Parameters:  objectSchema([]string{"destination"}, map[string]string{"destination": "Address or place name."}),
		},
		execute: func(p map[string]any) (Result, error) {
			dest := stringParam(p, "destination")
			if dest == "" {
				return Result{}, missing("destination")
			}
			return Result{
				Status:     StatusSuccess,
				Message:    fmt.Sprintf("Navigating to %s...", dest),
				ActionData: map[string]any{"type": "navigation", "destination": dest},
			}, nil
		},
	}
}

func NewCalendar() Skill {
	return &deviceSkill{
		def: Definition{
			Name:        "calendar",
			Description: "Manage calendar events.",
			Parameters: objectSchema(nil, map[string]string{
				"action": "One of view, add, delete. Defaults to view.",
				"title":  "Event title.",
				"when":   "Event date and time.",
			}),
		},
		execute: func(p map[string]any) (Result, error) {
			action := stringParam(p, "action")
			if action == "" {
				action = "view"
			}
			return Result{
				Status:     StatusSuccess,
				Message:    "Performing calendar action: " + action,
				ActionData: map[string]any{"type": "calendar", "action": action, "details": p},
			}, nil
		},
	}
}

func NewTimer() Skill {
	return &deviceSkill{
		def: Definition{
			Name:        "timer",
			Description: "Set a timer for a specified duration. Use this when the user asks to set a timer or reminder.",
			Parameters: objectSchema([]string{"duration"}, map[string]string{
				"duration": "Duration in natural language, e.g. '5 minutes'.",
				"label":    "Optional label for the timer.",
			}),
		},
		execute: func(p map[string]any) (Result, error) {
			duration, label := stringParam(p, "duration"), stringParam(p, "label")
			if duration == "" {
				return Result{}, missing("duration")
			}
			msg := "Setting timer for " + duration
			if label != "" {
				msg += " (" + label + ")"
			}
			return Result{
				Status:     StatusSuccess,
				Message:    msg,
				ActionData: map[string]any{"type": "set_timer", "duration": duration, "label": label},
			}, nil
		},
	}
}
