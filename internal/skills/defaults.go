package skills

import "time"

// Deps are the collaborators needed by the built-in server-side skills.
type Deps struct {
	Memory      MemoryWriter
	SearchURL   string
	WeatherURL  string
	HTTPTimeout time.Duration
}

// NewDefaultRegistry registers the built-in skills in a fixed order. The
// memory skills are only registered when a MemoryWriter is supplied.
func NewDefaultRegistry(deps Deps) (*Registry, error) {
	r := NewRegistry()
	list := []Skill{
		NewCall(),
		NewSMS(),
		NewSystem(),
		NewMedia(),
		NewNavigation(),
		NewCalendar(),
		NewTimer(),
		NewSearch(deps.SearchURL, deps.HTTPTimeout),
		NewWeather(deps.WeatherURL, deps.HTTPTimeout),
	}
	if deps.Memory != nil {
		list = append(list, NewLearn(deps.Memory), NewIngest(deps.Memory, deps.HTTPTimeout))
	}
	for _, s := range list {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}
