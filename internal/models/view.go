package models

// View is the output of one reduction pass. Every field is populated, with
// empty slices rather than nil, so a degenerate snapshot still renders.
type View struct {
	Signal      []SignalSeries   `json:"signal"`
	Categories  []CategorySlice  `json:"categories"`
	Persistence []PersistenceBar `json:"persistence"`
	Channels    ChannelHistogram `json:"channels"`
	Heap        Gauge            `json:"heap"`
	Uptime      Gauge            `json:"uptime"`
}

func EmptyView() View {
	return View{
		Signal:      []SignalSeries{},
		Categories:  []CategorySlice{},
		Persistence: []PersistenceBar{},
		Channels:    ChannelHistogram{Bins: []ChannelBin{}},
	}
}

type Point struct {
	X int64 `json:"x"`
	Y int   `json:"y"`
}

type SignalSeries struct {
	Label  string  `json:"label"`
	Color  string  `json:"border_color"`
	Points []Point `json:"data"`
}

type CategorySlice struct {
	Label  string `json:"label"`
	Count  int    `json:"count"`
	Fill   string `json:"background_color"`
	Border string `json:"border_color"`
}

type PersistenceBar struct {
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
	Class  string  `json:"class"`
	Fill   string  `json:"background_color"`
	Border string  `json:"border_color"`
}

type ChannelBin struct {
	Channel int `json:"channel"`
	Count   int `json:"count"`
}

type ChannelHistogram struct {
	Bins   []ChannelBin `json:"bins"`
	Fill   string       `json:"background_color"`
	Border string       `json:"border_color"`
}

// Gauge is a two-segment radial gauge: the filled part and what is left.
type Gauge struct {
	Filled    int64 `json:"filled"`
	Remaining int64 `json:"remaining"`
}
