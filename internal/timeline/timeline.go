// Package timeline maps a continuously recorded scene onto the fixed-length
// clip windows of the slot template.
//
// A window is described by its start offset into the scene. Every window
// satisfies start+duration <= sceneDuration, and the follow slot of a
// seamless pair always starts exactly where its lead ends.
package timeline

import (
	"errors"
	"math"

	"github.com/magnumstream/studio-agent/internal/template"
)

// Unpositioned marks a slot whose window start has never been chosen.
const Unpositioned = -1.0

// UsableFraction is the share of a scene that initial placement spreads
// slots across; the tail is usually the camera being put down.
const UsableFraction = 0.85

var (
	ErrFollowLocked = errors.New("follow slot of a seamless pair is computed from its lead")
	ErrUnknownSlot  = errors.New("unknown slot")
)

// MaxStart is the latest start that still fits the slot inside the scene.
func MaxStart(sceneDuration, slotDuration float64) float64 {
	return math.Max(0, sceneDuration-slotDuration)
}

// Clamp bounds start to [0, MaxStart].
func Clamp(start, sceneDuration, slotDuration float64) float64 {
	if math.IsNaN(start) || start < 0 {
		return 0
	}
	return math.Min(start, MaxStart(sceneDuration, slotDuration))
}

// ClampSlot clamps a proposed start for a template slot. A lead slot is
// clamped so that its follow also fits inside the scene.
func ClampSlot(tpl *template.Template, number int, start, sceneDuration float64) (float64, error) {
	slot, ok := tpl.Lookup(number)
	if !ok {
		return 0, ErrUnknownSlot
	}
	span := slot.Duration
	if f, ok := tpl.FollowOf(number); ok {
		follow, _ := tpl.Lookup(f)
		span += follow.Duration
	}
	return Clamp(start, sceneDuration, span), nil
}

// FollowStart returns where the follow slot of a pair starts, clamped so
// the follow window never runs past the scene end.
func FollowStart(lead template.Slot, leadStart float64, follow template.Slot, sceneDuration float64) float64 {
	return Clamp(leadStart+lead.Duration, sceneDuration, follow.Duration)
}

// InitialPlacement spreads the lead and independent slots of a scene evenly
// over the usable part of the recording and puts every follow slot right
// after its lead.
func InitialPlacement(tpl *template.Template, scene template.SceneType, sceneDuration float64) map[int]float64 {
	slots := tpl.SlotsForScene(scene)
	positions := make(map[int]float64, len(slots))

	var anchors []template.Slot
	for _, s := range slots {
		if !tpl.IsFollow(s.Number) {
			anchors = append(anchors, s)
		}
	}
	if len(anchors) == 0 {
		return positions
	}

	usable := sceneDuration * UsableFraction
	spacing := usable / float64(len(anchors))

	for i, s := range anchors {
		start, _ := ClampSlot(tpl, s.Number, float64(i)*spacing, sceneDuration)
		positions[s.Number] = start
	}

	for _, s := range slots {
		lead, ok := tpl.LeadOf(s.Number)
		if !ok {
			continue
		}
		leadSlot, _ := tpl.Lookup(lead)
		positions[s.Number] = FollowStart(leadSlot, positions[lead], s, sceneDuration)
	}

	return positions
}

// Propagate applies a user-driven window change. It returns every slot whose
// start changed as a consequence: the slot itself (clamped) and, for a
// lead, its follow.
func Propagate(tpl *template.Template, number int, start, sceneDuration float64) (map[int]float64, error) {
	if tpl.IsFollow(number) {
		return nil, ErrFollowLocked
	}
	clamped, err := ClampSlot(tpl, number, start, sceneDuration)
	if err != nil {
		return nil, err
	}

	changes := map[int]float64{number: clamped}
	if f, ok := tpl.FollowOf(number); ok {
		lead, _ := tpl.Lookup(number)
		follow, _ := tpl.Lookup(f)
		changes[f] = FollowStart(lead, clamped, follow, sceneDuration)
	}
	return changes, nil
}

// LoopPosition keeps a preview inside the selected window. When the play
// head has left [windowStart, windowStart+slotDuration) it returns
// windowStart and true so the player seeks back instead of stopping.
func LoopPosition(playhead, windowStart, slotDuration float64) (float64, bool) {
	if playhead >= windowStart+slotDuration || playhead < windowStart {
		return windowStart, true
	}
	return playhead, false
}
