package tracking

import "time"

// Metric describes one tracked quantity and where the API keeps it.
type Metric struct {
	Name   string  `json:"name"`
	Prefix string  `json:"-"`
	Noun   string  `json:"-"`
	Field  string  `json:"field"`
	Unit   string  `json:"unit"`
	Max    float64 `json:"max"`
}

var (
	Water = Metric{Name: "water", Prefix: "/watertrack", Noun: "water", Field: "amountInMilliliters", Unit: "ml", Max: 10000}
	Sleep = Metric{Name: "sleep", Prefix: "/sleeptrack", Noun: "sleep", Field: "durationInHrs", Unit: "h", Max: 24}
	Steps = Metric{Name: "steps", Prefix: "/steptrack", Noun: "step", Field: "steps", Unit: "steps", Max: 100000}
)

var metrics = map[string]Metric{
	Water.Name: Water,
	Sleep.Name: Sleep,
	Steps.Name: Steps,
}

// Lookup finds a metric by its route name.
func Lookup(name string) (Metric, bool) {
	m, ok := metrics[name]
	return m, ok
}

func (m Metric) goalPath() string   { return m.Prefix + "/getusergoal" + m.Noun }
func (m Metric) byDatePath() string { return m.Prefix + "/get" + m.Noun + "bydate" }
func (m Metric) addPath() string    { return m.Prefix + "/add" + m.Noun + "entry" }
func (m Metric) deletePath() string { return m.Prefix + "/delete" + m.Noun + "entry" }

type Entry struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type Progress struct {
	// Raw is current/goal*100 and may exceed 100.
	Raw      float64 `json:"raw"`
	Display  float64 `json:"display"`
	Achieved bool    `json:"achieved"`
}

// Day is the view model of one metric page for one date.
type Day struct {
	Metric   Metric    `json:"metric"`
	Date     string    `json:"date"`
	Goal     float64   `json:"goal"`
	Entries  []Entry   `json:"entries"`
	Total    float64   `json:"total"`
	Progress Progress  `json:"progress"`
	LoadedAt time.Time `json:"loadedAt"`
}
