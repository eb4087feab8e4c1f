// Package template describes the fixed 8-slot edit template: which scene and
// camera feeds each slot, how long each slot plays, and which slots form
// seamless pairs that must play back-to-back.
package template

import (
	"fmt"
	"sort"
	"strings"
)

type SceneType string

const (
	SceneCruising SceneType = "cruising"
	SceneChase    SceneType = "chase"
	SceneArrival  SceneType = "arrival"
)

// DefaultSlotDuration is the uniform slot length used before per-slot
// durations were introduced.
const DefaultSlotDuration = 3.0

// SlotCount is the number of output clips in the template.
const SlotCount = 8

// Scenes returns the scenes in recording order.
func Scenes() []SceneType {
	return []SceneType{SceneCruising, SceneChase, SceneArrival}
}

// Index returns the scene's position in recording order, or -1.
func (s SceneType) Index() int {
	for i, sc := range Scenes() {
		if sc == s {
			return i
		}
	}
	return -1
}

func (s SceneType) Valid() bool {
	return s.Index() >= 0
}

func ParseScene(s string) (SceneType, error) {
	st := SceneType(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown scene type %q", s)
	}
	return st, nil
}

// Slot is one fixed output clip position.
type Slot struct {
	Number   int       `json:"slotNumber"`
	Scene    SceneType `json:"sceneType"`
	Camera   int       `json:"cameraAngle"`
	Color    string    `json:"color"`
	Duration float64   `json:"duration"`
}

// Pair links a lead slot to the follow slot that starts where the lead ends.
type Pair struct {
	Lead   int `json:"lead"`
	Follow int `json:"follow"`
}

// Template is an immutable slot layout.
type Template struct {
	slots map[int]Slot
	pairs []Pair
}

var defaultSlots = []Slot{
	{Number: 1, Scene: SceneCruising, Camera: 1, Color: "#FF6B35", Duration: 3.0},
	{Number: 2, Scene: SceneCruising, Camera: 2, Color: "#F7931E", Duration: 3.0},
	{Number: 3, Scene: SceneCruising, Camera: 1, Color: "#FFD23F", Duration: 3.0},
	{Number: 4, Scene: SceneChase, Camera: 1, Color: "#06D6A0", Duration: 3.0},
	{Number: 5, Scene: SceneChase, Camera: 2, Color: "#118AB2", Duration: 2.5},
	{Number: 6, Scene: SceneChase, Camera: 2, Color: "#073B4C", Duration: 2.0},
	{Number: 7, Scene: SceneArrival, Camera: 1, Color: "#8338EC", Duration: 3.0},
	{Number: 8, Scene: SceneArrival, Camera: 2, Color: "#3A86FF", Duration: 2.0},
}

var defaultPairs = []Pair{
	{Lead: 1, Follow: 2},
	{Lead: 5, Follow: 6},
	{Lead: 7, Follow: 8},
}

// Default returns the current template with per-slot durations.
func Default() *Template {
	return New(defaultSlots, defaultPairs)
}

// Uniform returns the template with every slot at DefaultSlotDuration.
func Uniform() *Template {
	slots := make([]Slot, len(defaultSlots))
	copy(slots, defaultSlots)
	for i := range slots {
		slots[i].Duration = DefaultSlotDuration
	}
	return New(slots, defaultPairs)
}

// New builds a template. Pairs referencing unknown slots or crossing scenes
// are ignored.
func New(slots []Slot, pairs []Pair) *Template {
	t := &Template{slots: make(map[int]Slot, len(slots))}
	for _, s := range slots {
		if s.Duration <= 0 {
			s.Duration = DefaultSlotDuration
		}
		t.slots[s.Number] = s
	}
	for _, p := range pairs {
		lead, ok1 := t.slots[p.Lead]
		follow, ok2 := t.slots[p.Follow]
		if !ok1 || !ok2 || lead.Scene != follow.Scene {
			continue
		}
		t.pairs = append(t.pairs, p)
	}
	return t
}

func (t *Template) Lookup(number int) (Slot, bool) {
	s, ok := t.slots[number]
	return s, ok
}

// Slots returns every slot ordered by number.
func (t *Template) Slots() []Slot {
	out := make([]Slot, 0, len(t.slots))
	for _, s := range t.slots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (t *Template) SlotsForScene(scene SceneType) []Slot {
	var out []Slot
	for _, s := range t.Slots() {
		if s.Scene == scene {
			out = append(out, s)
		}
	}
	return out
}

func (t *Template) Pairs() []Pair {
	out := make([]Pair, len(t.pairs))
	copy(out, t.pairs)
	return out
}

// FollowOf returns the follow slot of a lead.
func (t *Template) FollowOf(lead int) (int, bool) {
	for _, p := range t.pairs {
		if p.Lead == lead {
			return p.Follow, true
		}
	}
	return 0, false
}

// LeadOf returns the lead slot of a follow.
func (t *Template) LeadOf(follow int) (int, bool) {
	for _, p := range t.pairs {
		if p.Follow == follow {
			return p.Lead, true
		}
	}
	return 0, false
}

func (t *Template) IsLead(number int) bool {
	_, ok := t.FollowOf(number)
	return ok
}

func (t *Template) IsFollow(number int) bool {
	_, ok := t.LeadOf(number)
	return ok
}

// AssetName is the file name of the reference clip shown next to a slot in
// the editor, e.g. CRUISING_1.mov.
func AssetName(scene SceneType, n int) string {
	return fmt.Sprintf("%s_%d.mov", strings.ToUpper(string(scene)), n)
}
